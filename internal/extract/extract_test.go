package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/auditor/internal/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"empty", "", ErrEmptyText},
		{"whitespace", " \n\t ", ErrEmptyText},
		{"nine words", "one two three four five six seven eight nine", ErrTooShort},
		{"ten words", "one two three four five six seven eight nine ten", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.text, DefaultMinWords)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFile_Ext(t *testing.T) {
	assert.Equal(t, "pdf", File{Name: "Minutes.PDF"}.Ext())
	assert.Equal(t, "", File{Name: "minutes"}.Ext())
}

func TestLocalExtractor(t *testing.T) {
	l := NewLocalExtractor()
	ctx := context.Background()

	text, err := l.Extract(ctx, File{Name: "minutes.txt", Data: []byte("  ที่ประชุมอนุมัติงบประมาณ \n")})
	require.NoError(t, err)
	assert.Equal(t, "ที่ประชุมอนุมัติงบประมาณ", text)

	_, err = l.Extract(ctx, File{Name: "minutes.docx", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = l.Extract(ctx, File{Name: "bad.txt", Data: []byte{0xff, 0xfe}})
	assert.ErrorIs(t, err, ErrExtractionFailed)

	_, err = l.Extract(ctx, File{Name: "broken.pdf", Data: []byte("not a pdf")})
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

// fakeAzure serves the analyze and operation endpoints; the operation
// reports running for the first pending polls.
func fakeAzure(t *testing.T, pending int32, final map[string]any) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-document:analyze", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "2023-07-31", r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get(subscriptionHeader))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-fake", string(body))

		w.Header().Set("Operation-Location", srv.URL+"/operations/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get(subscriptionHeader))
		n := atomic.AddInt32(&polls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n <= pending {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "running"})
			return
		}
		_ = json.NewEncoder(w).Encode(final)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newTestAzure(t *testing.T, endpoint string) *AzureExtractor {
	t.Helper()
	a, err := NewAzureExtractor(AzureConfig{
		Endpoint:     endpoint + "/",
		Key:          "secret",
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return a
}

func TestAzureExtractor_Success(t *testing.T) {
	srv, polls := fakeAzure(t, 2, map[string]any{
		"status": "succeeded",
		"analyzeResult": map[string]any{
			"pages": []map[string]any{
				{"pageNumber": 1, "lines": []map[string]any{{"content": "รายงานการประชุม"}, {"content": "ครั้งที่ 1/2567"}}},
				{"pageNumber": 2, "lines": []map[string]any{{"content": "ปิดประชุม"}}},
			},
		},
	})

	a := newTestAzure(t, srv.URL)
	text, err := a.Extract(context.Background(), File{Name: "m.pdf", Data: []byte("%PDF-fake")})
	require.NoError(t, err)
	assert.Equal(t, "รายงานการประชุม\nครั้งที่ 1/2567\n\nปิดประชุม", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(polls))
}

func TestAzureExtractor_Failed(t *testing.T) {
	srv, _ := fakeAzure(t, 0, map[string]any{
		"status": "failed",
		"error":  map[string]any{"code": "InvalidContent", "message": "corrupt"},
	})

	a := newTestAzure(t, srv.URL)
	_, err := a.Extract(context.Background(), File{Name: "m.pdf", Data: []byte("%PDF-fake")})
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "InvalidContent")
}

func TestAzureExtractor_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"401"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newTestAzure(t, srv.URL)
	_, err := a.Extract(context.Background(), File{Name: "m.pdf", Data: []byte("x")})
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "401")
}

func TestAzureExtractor_ContextCancelled(t *testing.T) {
	srv, _ := fakeAzure(t, 1<<30, nil)

	a, err := NewAzureExtractor(AzureConfig{Endpoint: srv.URL, Key: "secret", PollInterval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = a.Extract(ctx, File{Name: "m.pdf", Data: []byte("%PDF-fake")})
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestAzureExtractor_EmptyFile(t *testing.T) {
	a := newTestAzure(t, "http://unused")
	_, err := a.Extract(context.Background(), File{Name: "m.pdf"})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNew(t *testing.T) {
	cfg := config.Default().Extraction

	_, err := New(cfg, Credentials{})
	assert.ErrorIs(t, err, ErrMissingCredential)

	ex, err := New(cfg, Credentials{Endpoint: "https://example.cognitiveservices.azure.com", Key: "k"})
	require.NoError(t, err)
	az, ok := ex.(*AzureExtractor)
	require.True(t, ok)
	assert.Equal(t, "https://example.cognitiveservices.azure.com", az.config.Endpoint)

	cfg.Provider = "local"
	ex, err = New(cfg, Credentials{})
	require.NoError(t, err)
	assert.IsType(t, &LocalExtractor{}, ex)

	cfg.Provider = "textract"
	_, err = New(cfg, Credentials{})
	assert.Error(t, err)
}
