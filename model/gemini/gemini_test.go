package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGenerator(context.Background(), func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
		o.Model = "gemini-test"
	})
	require.NoError(t, err)

	return g
}

func TestGenerator_GenerateText(t *testing.T) {
	var path string

	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"1. Open the editor\n2. Save"}]}}]}`)
	})

	text, err := g.GenerateText(context.Background(), "narrate")
	require.NoError(t, err)
	assert.Equal(t, "1. Open the editor\n2. Save", text)
	assert.True(t, strings.HasSuffix(path, "models/gemini-test:generateContent"), path)
}

func TestGenerator_EmptyText(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	})

	_, err := g.GenerateText(context.Background(), "narrate")
	require.Error(t, err)
}

func TestGenerator_Info(t *testing.T) {
	g := newTestGenerator(t, func(http.ResponseWriter, *http.Request) {})

	assert.Equal(t, "gemini", g.Info().Provider)
	assert.Equal(t, "gemini-test", g.Info().Name)
}
