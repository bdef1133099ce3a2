// Package minutes runs uploaded meeting minutes through the compliance
// pipeline: summarize, decompose, match, retrieve and judge, then assemble
// the report.
package minutes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/extract"
	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/rag"
	"github.com/Yates-Labs/auditor/internal/telemetry"
)

// Run statuses.
const (
	StatusCompleted           = "completed"
	StatusValidationFailed    = "validation_failed"
	StatusExtractionFailed    = "extraction_failed"
	StatusSummarizationFailed = "summarization_failed"
)

// ValidationError stops a run whose source text cannot be analyzed.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Err, extract.ErrEmptyText):
		return "The uploaded file does not contain readable text."
	case errors.Is(e.Err, extract.ErrTooShort):
		return "The content appears too short or invalid for analysis."
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Config holds pipeline parameters.
type Config struct {
	MinWords     int
	EvidenceTopN int
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		MinWords:     extract.DefaultMinWords,
		EvidenceTopN: 5,
	}
}

// Result carries every intermediate artifact of a run.
type Result struct {
	RunID       string       `json:"run_id"`
	Status      string       `json:"status"`
	Text        string       `json:"text"`
	Analysis    string       `json:"analysis"`
	Subtopics   []Subtopic   `json:"subtopics"`
	Assignments []Assignment `json:"assignments"`
	Report      Report       `json:"report"`
	Diagnostics []string     `json:"diagnostics,omitempty"`
}

// Export renders the offline markdown document for the run.
func (r *Result) Export(at time.Time) string {
	return Export("Meeting Minutes Compliance Report", r.Analysis, r.Report, at)
}

// Pipeline wires the stages together.
type Pipeline struct {
	summarizer *Summarizer
	matcher    *Matcher
	detector   *Detector
	config     Config
	logger     *zap.Logger
	metrics    *telemetry.Metrics
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records runs, stages and completion calls on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a Pipeline.
func NewPipeline(model llm.LLM, retriever *rag.Retriever, config Config, opts ...Option) (*Pipeline, error) {
	if model == nil {
		return nil, fmt.Errorf("llm cannot be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if config.EvidenceTopN <= 0 {
		return nil, fmt.Errorf("%w: evidence top-N must be positive", rag.ErrInvalidTopK)
	}

	p := &Pipeline{config: config, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	p.summarizer = NewSummarizer(llm.Instrument(model, p.metrics, "summarize"))
	p.matcher = NewMatcher(llm.Instrument(model, p.metrics, "match"), retriever.Store(), p.logger)
	p.detector = NewDetector(llm.Instrument(model, p.metrics, "judge"), retriever, config.EvidenceTopN, p.logger, p.metrics)
	return p, nil
}

// Run extracts text from file with ex and analyzes it. The returned Result
// is never nil. A non-nil error means the run halted early: a
// *ValidationError, or an extraction or summarization failure.
func (p *Pipeline) Run(ctx context.Context, ex extract.Extractor, file extract.File) (*Result, error) {
	res := p.newResult()
	logger := p.logger.With(zap.String("run_id", res.RunID), zap.String("file", file.Name))

	logger.Info("minutes pipeline stage", zap.Int("stage", 1), zap.String("name", "extract"))
	start := time.Now()
	text, err := ex.Extract(ctx, file)
	p.metrics.ObserveStage("extract", start)
	if err != nil {
		if errors.Is(err, extract.ErrEmptyText) {
			verr := &ValidationError{Err: err}
			res.Diagnostics = append(res.Diagnostics, verr.Error())
			return p.finish(res, StatusValidationFailed, verr, logger)
		}
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("An error occurred during minutes processing: %v", err))
		return p.finish(res, StatusExtractionFailed, err, logger)
	}

	return p.analyze(ctx, res, text, logger)
}

// RunText analyzes already extracted minutes text.
func (p *Pipeline) RunText(ctx context.Context, text string) (*Result, error) {
	res := p.newResult()
	return p.analyze(ctx, res, text, p.logger.With(zap.String("run_id", res.RunID)))
}

func (p *Pipeline) newResult() *Result {
	return &Result{
		RunID:       uuid.NewString(),
		Subtopics:   []Subtopic{},
		Assignments: []Assignment{},
		Report:      Report{Findings: []Finding{}},
	}
}

func (p *Pipeline) analyze(ctx context.Context, res *Result, text string, logger *zap.Logger) (*Result, error) {
	res.Text = text
	if err := extract.Validate(text, p.config.MinWords); err != nil {
		verr := &ValidationError{Err: err}
		res.Diagnostics = append(res.Diagnostics, verr.Error())
		return p.finish(res, StatusValidationFailed, verr, logger)
	}

	logger.Info("minutes pipeline stage", zap.Int("stage", 2), zap.String("name", "summarize"))
	start := time.Now()
	analysis, err := p.summarizer.Summarize(ctx, text)
	p.metrics.ObserveStage("summarize", start)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("An error occurred during minutes processing: %v", err))
		return p.finish(res, StatusSummarizationFailed, err, logger)
	}
	res.Analysis = analysis

	logger.Info("minutes pipeline stage", zap.Int("stage", 3), zap.String("name", "decompose"))
	d := Decompose(analysis)
	for _, w := range d.Warnings {
		logger.Warn("decomposition warning", zap.String("warning", w))
	}
	res.Subtopics = d.Subtopics
	res.Diagnostics = append(res.Diagnostics, d.Warnings...)
	logger.Info("decomposed analysis", zap.Int("subtopics", len(d.Subtopics)))

	logger.Info("minutes pipeline stage", zap.Int("stage", 4), zap.String("name", "match"))
	start = time.Now()
	assignments, diags := p.matcher.Match(ctx, d.Subtopics)
	p.metrics.ObserveStage("match", start)
	res.Assignments = assignments
	res.Diagnostics = append(res.Diagnostics, diags...)

	logger.Info("minutes pipeline stage", zap.Int("stage", 5), zap.String("name", "detect"))
	findings := p.detector.Detect(ctx, assignments)
	for _, f := range findings {
		if f.Error != "" {
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s / %s: %s", f.Subtopic.Name, f.Document, f.Error))
		}
	}

	res.Report = Assemble(findings, res.Diagnostics)
	logger.Info("minutes pipeline stage", zap.Int("stage", 6), zap.String("name", "report"),
		zap.Int("findings", len(findings)),
		zap.Int("diagnostics", len(res.Diagnostics)),
	)
	return p.finish(res, StatusCompleted, nil, logger)
}

func (p *Pipeline) finish(res *Result, status string, err error, logger *zap.Logger) (*Result, error) {
	res.Status = status
	p.metrics.ObserveMinutesRun(status)
	if err != nil {
		logger.Warn("minutes run halted", zap.String("status", status), zap.Error(err))
	}
	return res, err
}
