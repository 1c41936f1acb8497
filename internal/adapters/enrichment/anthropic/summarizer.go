// Package anthropic summarizes documents with Claude through the Anthropic SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jbctechsolutions/docsync/internal/adapters/enrichment"
	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

const (
	Name         = "anthropic"
	DefaultModel = "claude-3-5-haiku-latest"

	// maxTokens leaves room for a 40 word sentence.
	maxTokens = 128
)

// Summarizer calls the Messages API to produce one-sentence summaries.
type Summarizer struct {
	client sdk.Client
	model  string
}

var _ ports.Summarizer = (*Summarizer)(nil)

// New creates an Anthropic summarizer.
func New(settings enrichment.Settings) *Summarizer {
	opts := []option.RequestOption{
		option.WithAPIKey(settings.APIKey),
		// Summaries are best effort.
		option.WithMaxRetries(0),
	}
	if settings.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(settings.BaseURL))
	}
	if settings.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(settings.Timeout))
	}

	model := settings.Model
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{client: sdk.NewClient(opts...), model: model}
}

// Factory adapts New to the enrichment registry.
func Factory(settings enrichment.Settings) (ports.Summarizer, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	return New(settings), nil
}

// Name returns the provider name.
func (s *Summarizer) Name() string { return Name }

// Summarize returns a one-sentence summary of text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	msg, err := s.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(enrichment.BuildPrompt(text))),
		},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			e := domainErrors.NewError(domainErrors.CodeEnrichment,
				fmt.Sprintf("anthropic: HTTP %d", apiErr.StatusCode),
				fmt.Errorf("%w: %w", domainErrors.ErrEnrichmentFailure, err))
			return "", domainErrors.WithContext(e, "status", apiErr.StatusCode)
		}
		return "", domainErrors.NewError(domainErrors.CodeEnrichment, "anthropic request failed",
			fmt.Errorf("%w: %w", domainErrors.ErrEnrichmentFailure, err))
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	summary := enrichment.CleanSummary(sb.String())
	if summary == "" {
		return "", domainErrors.NewError(domainErrors.CodeEnrichment, "anthropic returned no text", domainErrors.ErrEnrichmentFailure)
	}
	return summary, nil
}
