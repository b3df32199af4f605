package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchOutcomes(t *testing.T) {
	m := New(Options{})
	reg := prometheus.NewRegistry()
	m.Register(reg)

	done := m.StartBatch()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.currentBatches))
	done("ok")
	m.StartBatch()("oversize")
	m.StartBatch()("ok")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.currentBatches))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("oversize")))
}

func TestCounters(t *testing.T) {
	m := New(Options{Labels: prometheus.Labels{"instance": "test"}})
	m.FileProcessed("image")
	m.FileProcessed("image")
	m.FileProcessed("pdf")
	m.PagesRendered(3)
	m.BytesReceived(100)
	m.BytesSent(40)
	m.Stage(StageResize)()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesProcessed.WithLabelValues("image")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pagesRendered))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytesReceived))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.bytesSent))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestNilInstanceIsNoop(t *testing.T) {
	var m *Instance
	m.Register(prometheus.NewRegistry())
	m.StartBatch()("ok")
	m.Stage(StageDecode)()
	m.FileProcessed("image")
	m.PagesRendered(1)
	m.BytesReceived(1)
	m.BytesSent(1)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(Options{})
	reg := prometheus.NewRegistry()
	m.Register(reg)
	m.StartBatch()("ok")

	app := fiber.New()
	app.Get("/metrics", Handler(reg))

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "imgpack_batches_total"))
}
