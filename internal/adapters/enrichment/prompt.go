// Package enrichment builds the one-sentence summaries attached to pushed
// documents and selects the summarization backend.
package enrichment

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxInputChars bounds the document text sent for summarization.
const MaxInputChars = 10000

// DefaultTimeout bounds a single summarization call.
const DefaultTimeout = 20 * time.Second

const promptPreamble = "You are a knowledge management assistant. Write a very brief, single-sentence " +
	"summary (at most 40 words) of the following document content. It will be stored as " +
	"metadata in a Dify knowledge base. Reply with the sentence only.\n\n"

// Truncate returns at most MaxInputChars characters of text without splitting a rune.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxInputChars {
		return text
	}
	n := 0
	for i := range text {
		if n == MaxInputChars {
			return text[:i]
		}
		n++
	}
	return text
}

// BuildPrompt returns the summarization prompt for text.
func BuildPrompt(text string) string {
	return promptPreamble + Truncate(text)
}

// CleanSummary collapses whitespace so the summary fits on one envelope line.
func CleanSummary(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Settings configures a summarization backend.
type Settings struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}
