package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	azureModel         = "prebuilt-document"
	defaultAPIVersion  = "2023-07-31"
	subscriptionHeader = "Ocp-Apim-Subscription-Key"
)

// AzureConfig configures the Document Intelligence client.
type AzureConfig struct {
	Endpoint     string
	Key          string
	APIVersion   string
	PollInterval time.Duration
}

// AzureExtractor calls the Azure Document Intelligence analyze API and
// joins the recognised lines of every page.
type AzureExtractor struct {
	config AzureConfig
	client *http.Client
	logger *zap.Logger
}

// AzureOption customizes an AzureExtractor.
type AzureOption func(*AzureExtractor)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) AzureOption {
	return func(a *AzureExtractor) {
		if c != nil {
			a.client = c
		}
	}
}

// WithAzureLogger sets the extractor's logger.
func WithAzureLogger(l *zap.Logger) AzureOption {
	return func(a *AzureExtractor) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAzureExtractor validates credentials and returns an extractor.
func NewAzureExtractor(config AzureConfig, opts ...AzureOption) (*AzureExtractor, error) {
	if strings.TrimSpace(config.Endpoint) == "" || strings.TrimSpace(config.Key) == "" {
		return nil, ErrMissingCredential
	}
	config.Endpoint = strings.TrimRight(strings.TrimSpace(config.Endpoint), "/")
	if config.APIVersion == "" {
		config.APIVersion = defaultAPIVersion
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}

	a := &AzureExtractor{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type analyzeOperation struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		Pages []struct {
			PageNumber int `json:"pageNumber"`
			Lines      []struct {
				Content string `json:"content"`
			} `json:"lines"`
		} `json:"pages"`
	} `json:"analyzeResult"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Extract submits the file and polls the operation until it finishes or
// ctx is done.
func (a *AzureExtractor) Extract(ctx context.Context, file File) (string, error) {
	if len(file.Data) == 0 {
		return "", ErrEmptyText
	}

	opURL, err := a.submit(ctx, file)
	if err != nil {
		return "", err
	}
	a.logger.Debug("analyze submitted", zap.String("file", file.Name), zap.Int("bytes", len(file.Data)))

	for {
		op, err := a.poll(ctx, opURL)
		if err != nil {
			return "", err
		}

		switch op.Status {
		case "succeeded":
			text := pagesText(op)
			a.logger.Info("document analyzed",
				zap.String("file", file.Name),
				zap.Int("chars", len(text)),
			)
			return text, nil
		case "failed", "canceled":
			msg := op.Status
			if op.Error != nil {
				msg = fmt.Sprintf("%s: %s", op.Error.Code, op.Error.Message)
			}
			return "", fmt.Errorf("%w: %s", ErrExtractionFailed, msg)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrExtractionFailed, ctx.Err())
		case <-time.After(a.config.PollInterval):
		}
	}
}

func (a *AzureExtractor) submit(ctx context.Context, file File) (string, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		a.config.Endpoint, azureModel, a.config.APIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(file.Data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(subscriptionHeader, a.config.Key)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("%w: analyze returned %s: %s", ErrExtractionFailed, resp.Status, readSnippet(resp.Body))
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("%w: analyze response has no Operation-Location", ErrExtractionFailed)
	}
	return opURL, nil
}

func (a *AzureExtractor) poll(ctx context.Context, opURL string) (*analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	req.Header.Set(subscriptionHeader, a.config.Key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: poll returned %s: %s", ErrExtractionFailed, resp.Status, readSnippet(resp.Body))
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("%w: decode operation: %v", ErrExtractionFailed, err)
	}
	return &op, nil
}

// pagesText joins lines with newlines and pages with blank lines.
func pagesText(op *analyzeOperation) string {
	if op.AnalyzeResult == nil {
		return ""
	}
	pages := make([]string, 0, len(op.AnalyzeResult.Pages))
	for _, p := range op.AnalyzeResult.Pages {
		lines := make([]string, 0, len(p.Lines))
		for _, l := range p.Lines {
			lines = append(lines, l.Content)
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return strings.TrimSpace(strings.Join(pages, "\n\n"))
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
