package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jbctechsolutions/docsync/internal/adapters/enrichment"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

func TestSummarizer_Summarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "key" {
			t.Errorf("api key header = %q", r.Header.Get("X-Api-Key"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != DefaultModel {
			t.Errorf("model = %v", body["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": " Budget plan  for Q3. "}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	s := New(enrichment.Settings{APIKey: "key", BaseURL: server.URL})
	got, err := s.Summarize(context.Background(), "budget")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "Budget plan for Q3." {
		t.Errorf("Summarize() = %q", got)
	}
}

func TestSummarizer_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	_, err := New(enrichment.Settings{APIKey: "bad", BaseURL: server.URL}).Summarize(context.Background(), "x")
	if !errors.Is(err, domainErrors.ErrEnrichmentFailure) {
		t.Fatalf("error = %v, want ErrEnrichmentFailure", err)
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("error = %v", err)
	}
}
