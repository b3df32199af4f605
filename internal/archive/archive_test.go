package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(b)
	}
	return out
}

func TestWriterKeepsOrder(t *testing.T) {
	w := NewWriter()
	for _, name := range []string{"b.jpg", "a.jpg", "c.jpg"} {
		_, err := w.Add(name, []byte(name))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"b.jpg", "a.jpg", "c.jpg"}, w.Entries())

	data, err := w.Bytes()
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, "b.jpg", zr.File[0].Name)
	assert.Equal(t, "c.jpg", zr.File[2].Name)
}

func TestWriterDeduplicatesNames(t *testing.T) {
	w := NewWriter()
	var got []string
	for _, content := range []string{"one", "two", "three"} {
		name, err := w.Add("photo.jpg", []byte(content))
		require.NoError(t, err)
		got = append(got, name)
	}
	name, err := w.Add("photo_2.jpg", []byte("four"))
	require.NoError(t, err)
	got = append(got, name)

	assert.Equal(t, []string{"photo.jpg", "photo_2.jpg", "photo_3.jpg", "photo_2_2.jpg"}, got)

	data, err := w.Bytes()
	require.NoError(t, err)
	files := readZip(t, data)
	assert.Equal(t, "one", files["photo.jpg"])
	assert.Equal(t, "two", files["photo_2.jpg"])
	assert.Equal(t, "three", files["photo_3.jpg"])
	assert.Equal(t, "four", files["photo_2_2.jpg"])
}

func TestWriterNameWithoutExtension(t *testing.T) {
	w := NewWriter()
	_, err := w.Add("README", nil)
	require.NoError(t, err)
	name, err := w.Add("README", nil)
	require.NoError(t, err)
	assert.Equal(t, "README_2", name)
}

func TestWriterRejectsAddAfterBytes(t *testing.T) {
	w := NewWriter()
	_, err := w.Bytes()
	require.NoError(t, err)
	_, err = w.Add("late.png", []byte("x"))
	assert.Error(t, err)

	again, err := w.Bytes()
	require.NoError(t, err)
	assert.NotEmpty(t, again)
}
