package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/auditor/internal/config"
)

func embeddingServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-ada-002",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
}

func TestNewOpenAIEmbedder_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewOpenAIEmbedder("", "text-embedding-ada-002", 1536)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOpenAIEmbedder_EmptyTexts(t *testing.T) {
	e, err := NewOpenAIEmbedder("sk-test", "text-embedding-ada-002", 1536)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{})
	assert.ErrorIs(t, err, ErrEmptyTexts)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var body map[string]any
	srv := embeddingServer(t, &body)
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", "text-embedding-ada-002", 2, option.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	records, err := e.Embed(context.Background(), []string{"มาตรา 98", "ประกาศ"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "ประกาศ", records[0].Text, "text follows the returned index")
	assert.Equal(t, []float32{0.5, 0.25}, records[0].Embedding)
	assert.Equal(t, "มาตรา 98", records[1].Text)
	assert.Equal(t, "text-embedding-ada-002", records[1].Model)

	_, hasDims := body["dimensions"]
	assert.False(t, hasDims, "ada-002 must not receive dimensions")
}

func TestOpenAIEmbedder_DimensionsForV3(t *testing.T) {
	var body map[string]any
	srv := embeddingServer(t, &body)
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", "text-embedding-3-small", 2, option.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, body["dimensions"])
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	var body map[string]any
	srv := embeddingServer(t, &body)
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", "text-embedding-ada-002", 2, option.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"only one"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestOpenAIEmbedder_Live(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	e, err := NewOpenAIEmbedder("", "text-embedding-ada-002", 1536)
	require.NoError(t, err)

	records, err := e.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Embedding, 1536)
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), config.EmbeddingConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestIndex_Valid(t *testing.T) {
	assert.True(t, IndexChunk.Valid())
	assert.True(t, IndexSection.Valid())
	assert.False(t, Index("law").Valid())
}
