package auth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgpack/internal/config"
)

func TestStoreNotReadyUntilLoaded(t *testing.T) {
	var s Store
	assert.False(t, s.Ready())
	assert.ErrorIs(t, s.Validate("a"), ErrStoreNotReady)
	assert.Equal(t, 0, s.RateLimit("a"))

	s.LoadMap(map[string]int{})
	assert.True(t, s.Ready())
	assert.ErrorIs(t, s.Validate("a"), ErrInvalidAPIKey)
}

func TestStoreLoadMapReplacesCache(t *testing.T) {
	s := NewStore(config.PostgresConfig{})
	src := map[string]int{"a": 5, "b": 10}
	s.LoadMap(src)
	src["c"] = 1

	assert.NoError(t, s.Validate("a"))
	assert.Equal(t, 10, s.RateLimit("b"))
	assert.ErrorIs(t, s.Validate("c"), ErrInvalidAPIKey)

	s.LoadMap(map[string]int{"a": 7, "c": 12})
	assert.Equal(t, 7, s.RateLimit("a"))
	assert.ErrorIs(t, s.Validate("b"), ErrInvalidAPIKey)
	assert.Equal(t, 12, s.RateLimit("c"))
}

func TestDSNBuildsURL(t *testing.T) {
	dsn, err := DSN(config.PostgresConfig{
		Host:     "localhost",
		Database: "imgpack",
		User:     "user",
		Password: "p@ss word",
		SSLMode:  "disable",
	})
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "localhost:5432", u.Host)
	assert.Equal(t, "/imgpack", u.Path)
	assert.Equal(t, "user", u.User.Username())
	pw, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestDSNHostForms(t *testing.T) {
	cases := map[string]string{
		"db:6543": "db:6543",
		"::1":     "[::1]:5433",
		"[::1]":   "[::1]:5433",
	}
	for host, want := range cases {
		dsn, err := DSN(config.PostgresConfig{Host: host, Port: 5433, Database: "d", User: "u"})
		require.NoError(t, err, host)
		u, err := url.Parse(dsn)
		require.NoError(t, err, host)
		assert.Equal(t, want, u.Host, host)
	}
}

func TestDSNPassthroughAndErrors(t *testing.T) {
	raw := "postgres://u:p@localhost:5432/db?sslmode=disable"
	dsn, err := DSN(config.PostgresConfig{Host: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, dsn)

	_, err = DSN(config.PostgresConfig{})
	assert.Error(t, err)
	_, err = DSN(config.PostgresConfig{Host: "h"})
	assert.Error(t, err)
	_, err = DSN(config.PostgresConfig{Host: "h", Database: "d"})
	assert.Error(t, err)
}

func TestRefreshStopsOnCancel(t *testing.T) {
	s := NewStore(config.PostgresConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		s.Refresh(ctx, time.Hour)
		close(finished)
	}()
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop")
	}
	assert.NoError(t, s.Close())
}
