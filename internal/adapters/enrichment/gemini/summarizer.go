// Package gemini summarizes documents with Gemini through the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/jbctechsolutions/docsync/internal/adapters/enrichment"
	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

const (
	Name         = "gemini"
	DefaultModel = "gemini-2.5-flash"

	// APIVersion is appended to the base URL by the SDK.
	APIVersion = "v1beta"
)

// Summarizer calls generateContent to produce one-sentence summaries.
type Summarizer struct {
	client *genai.Client
	model  string
}

var _ ports.Summarizer = (*Summarizer)(nil)

// New creates a Gemini summarizer. settings.BaseURL replaces the API host.
func New(ctx context.Context, settings enrichment.Settings) (*Summarizer, error) {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = enrichment.DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     settings.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    settings.BaseURL,
			APIVersion: APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	model := settings.Model
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{client: client, model: model}, nil
}

// Factory adapts New to the enrichment registry.
func Factory(settings enrichment.Settings) (ports.Summarizer, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	return New(context.Background(), settings)
}

// Name returns the provider name.
func (s *Summarizer) Name() string { return Name }

// Summarize returns a one-sentence summary of text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(enrichment.BuildPrompt(text)), nil)
	if err != nil {
		return "", requestError(err)
	}

	summary := enrichment.CleanSummary(resp.Text())
	if summary == "" {
		return "", domainErrors.NewError(domainErrors.CodeEnrichment, "gemini returned no text", domainErrors.ErrEnrichmentFailure)
	}
	return summary, nil
}

func requestError(err error) error {
	cause := fmt.Errorf("%w: %w", domainErrors.ErrEnrichmentFailure, err)

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return domainErrors.NewError(domainErrors.CodeEnrichment, "gemini request failed", cause)
	}

	message := fmt.Sprintf("HTTP %d", apiErr.Code)
	if apiErr.Message != "" {
		message += ": " + apiErr.Message
	}
	// Leaked or revoked keys answer 403 PERMISSION_DENIED.
	if apiErr.Code == http.StatusForbidden || apiErr.Status == "PERMISSION_DENIED" {
		message = "gemini key blocked or invalid, check the enrichment settings: " + message
	} else {
		message = "gemini: " + message
	}

	e := domainErrors.NewError(domainErrors.CodeEnrichment, message, cause)
	return domainErrors.WithContext(e, "status", apiErr.Code)
}
