package pollinations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiverse/internal/providers"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestURLEscapesPrompt(t *testing.T) {
	c := NewClient(Options{BaseURL: "https://img.example.com/"})
	got := c.URL("cat / dog?")
	assert.Equal(t, "https://img.example.com/prompt/cat%20%2F%20dog%3F?height=1024&model=turbo&nologo=true&width=1024", got)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prompt/a castle", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("nologo"))
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	out := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()}).Generate(context.Background(), "a castle")
	require.True(t, out.OK(), "%+v", out)
	assert.Equal(t, "image/png", out.Image.MIME)
}

func TestGenerateFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	assert.Equal(t, providers.ReasonBadStatus, c.Generate(context.Background(), "x").Reason)
	assert.Equal(t, providers.ReasonEmpty, c.Generate(context.Background(), "  ").Reason)
}
