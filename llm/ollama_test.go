package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(generateResponse{Response: "the answer\n"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	answer, err := c.Generate(context.Background(), "why is the sky blue?", "", "")
	require.NoError(t, err)

	assert.Equal(t, "the answer", answer)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, defaultSystem, got.System)
	assert.False(t, got.Stream)
}

func Test_Generate_ModelOverride(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	_, err := c.Generate(context.Background(), "q", "be terse", "mistral")
	require.NoError(t, err)

	assert.Equal(t, "mistral", got.Model)
	assert.Equal(t, "be terse", got.System)
}

func Test_Generate_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	_, err := c.Generate(context.Background(), "q", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func Test_Generate_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "  "})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3")
	_, err := c.Generate(context.Background(), "q", "", "")
	assert.Error(t, err)
}

func Test_Generate_Unreachable(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:1", "llama3")
	_, err := c.Generate(context.Background(), "q", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach ollama")
}
