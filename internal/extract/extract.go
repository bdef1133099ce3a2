// Package extract turns uploaded minutes files into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Yates-Labs/auditor/internal/config"
)

var (
	ErrEmptyText         = errors.New("extracted text is empty")
	ErrTooShort          = errors.New("extracted text is too short")
	ErrExtractionFailed  = errors.New("text extraction failed")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingCredential = errors.New("extraction endpoint and key are required")
)

// DefaultMinWords is the shortest text accepted for analysis.
const DefaultMinWords = 10

// File is one uploaded document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Ext returns the lower-cased file extension without the dot.
func (f File) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// Extractor reads the text content of a file.
type Extractor interface {
	Extract(ctx context.Context, file File) (string, error)
}

// Credentials override the configured extraction service for one run.
type Credentials struct {
	Endpoint string
	Key      string
}

// New builds the extractor selected by cfg. Non-empty creds take precedence
// over the configured endpoint and key.
func New(cfg config.ExtractionConfig, creds Credentials, opts ...AzureOption) (Extractor, error) {
	switch cfg.Provider {
	case "azure":
		endpoint, key := cfg.Endpoint, cfg.Key
		if creds.Endpoint != "" {
			endpoint = creds.Endpoint
		}
		if creds.Key != "" {
			key = creds.Key
		}
		return NewAzureExtractor(AzureConfig{
			Endpoint:     endpoint,
			Key:          key,
			APIVersion:   cfg.APIVersion,
			PollInterval: cfg.PollInterval,
		}, opts...)
	case "local":
		return NewLocalExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: unknown extraction provider %q", ErrExtractionFailed, cfg.Provider)
	}
}

// Validate rejects text that is empty after trimming or has fewer than
// minWords whitespace-separated words.
func Validate(text string, minWords int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if n := len(strings.Fields(text)); n < minWords {
		return fmt.Errorf("%w: %d words, need at least %d", ErrTooShort, n, minWords)
	}
	return nil
}
