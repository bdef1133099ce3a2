package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCompletion("classify", nil)
	m.ObserveEmbedding(errors.New("boom"))
	m.ObserveRetrieval("chunk", true)
	m.ObserveChatTurn("law_query")
	m.ObserveMinutesRun("completed")
	m.ObserveStage("match", time.Now())
	assert.Nil(t, m.Registry())
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveCompletion("judge", nil)
	m.ObserveCompletion("judge", nil)
	m.ObserveCompletion("judge", errors.New("quota"))
	m.ObserveChatTurn("general_question")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.completions.WithLabelValues("judge", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("judge", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatTurns.WithLabelValues("general_question")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveMinutesRun("validation_failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `auditor_minutes_runs_total{status="validation_failed"} 1`))
}
