package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/document"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/tracing"
)

// Summary texts written into the envelope when no generated summary is available.
const (
	SummaryPlaceholder = "Falha na geração do resumo."
	SummaryDisabled    = "N/A"
)

// PushResult is the outcome of pushing one file to one profile.
type PushResult struct {
	ProfileID     string        `json:"profile_id"`
	FileID        string        `json:"file_id"`
	FileName      string        `json:"file_name"`
	DocumentID    string        `json:"document_id,omitempty"`
	SummaryFailed bool          `json:"summary_failed,omitempty"`
	SyncedAt      time.Time     `json:"synced_at,omitempty"`
	Duration      time.Duration `json:"duration"`
	Err           error         `json:"-"`
}

// OK reports whether the push succeeded.
func (r PushResult) OK() bool { return r.Err == nil }

// Pusher runs the per-file pipeline: fetch, enrich, envelope, push, record.
type Pusher struct {
	fetcher        ports.ContentFetcher
	destination    ports.Destination
	store          ports.StateStore
	summarizer     ports.Summarizer
	summaryTimeout time.Duration
	logger         *logging.Logger
	tracer         *tracing.Tracer
	now            func() time.Time
}

// PusherOption configures a Pusher.
type PusherOption func(*Pusher)

// WithSummarizer enables enrichment.
func WithSummarizer(s ports.Summarizer) PusherOption {
	return func(p *Pusher) { p.summarizer = s }
}

// WithSummaryTimeout bounds each enrichment call. Zero means no bound beyond ctx.
func WithSummaryTimeout(d time.Duration) PusherOption {
	return func(p *Pusher) { p.summaryTimeout = d }
}

// WithClock overrides the time source used for history timestamps.
func WithClock(now func() time.Time) PusherOption {
	return func(p *Pusher) { p.now = now }
}

// WithPushLogger sets the logger.
func WithPushLogger(l *logging.Logger) PusherOption {
	return func(p *Pusher) { p.logger = l }
}

// WithPushTracer sets the tracer.
func WithPushTracer(t *tracing.Tracer) PusherOption {
	return func(p *Pusher) { p.tracer = t }
}

// NewPusher creates a pusher.
func NewPusher(fetcher ports.ContentFetcher, destination ports.Destination, store ports.StateStore, opts ...PusherOption) *Pusher {
	p := &Pusher{
		fetcher:     fetcher,
		destination: destination,
		store:       store,
		logger:      logging.Default(),
		tracer:      tracing.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push sends file to target and records the sync time on success. Failures are
// returned in the result; enrichment failures are not failures.
func (p *Pusher) Push(ctx context.Context, target profile.Profile, file document.RemoteFile) PushResult {
	start := time.Now()
	ctx = logging.WithFileID(logging.WithProfileID(ctx, target.ID), file.ID)
	ctx, span := p.tracer.StartPushSpan(ctx, target.ID, file.ID, file.Name)

	res := PushResult{ProfileID: target.ID, FileID: file.ID, FileName: file.Name}
	res.Err = p.push(ctx, target, file, &res)
	res.Duration = time.Since(start)

	span.SetBool("summary.failed", res.SummaryFailed)
	span.EndWithError(res.Err)
	if res.Err != nil {
		logging.LogPushFailed(ctx, p.logger, file.Name, res.Err, res.Duration)
	} else {
		logging.LogPushComplete(ctx, p.logger, file.Name, res.DocumentID, res.Duration)
	}
	return res
}

func (p *Pusher) push(ctx context.Context, target profile.Profile, file document.RemoteFile, res *PushResult) error {
	content, err := p.fetcher.Fetch(ctx, file)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", file.Name, err)
	}
	if strings.TrimSpace(content) == "" {
		return domainErrors.EmptyContent(file.Name)
	}

	summary, failed := p.summarize(ctx, content)
	res.SummaryFailed = failed

	receipt, err := p.destination.CreateDocument(ctx, target, file.Name, BuildEnvelope(file, summary, content))
	if err != nil {
		return err
	}
	res.DocumentID = receipt.DocumentID

	at := p.now()
	if err := p.store.RecordSync(ctx, target.ID, file.ID, at); err != nil {
		return domainErrors.NewError(domainErrors.CodeStorage, "document pushed but history not recorded", err)
	}
	res.SyncedAt = at
	return nil
}

// summarize never fails the push; it reports whether the placeholder was used.
func (p *Pusher) summarize(ctx context.Context, content string) (string, bool) {
	if p.summarizer == nil {
		return SummaryDisabled, false
	}

	if p.summaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.summaryTimeout)
		defer cancel()
	}

	summary, err := p.summarizer.Summarize(ctx, content)
	if err == nil && strings.TrimSpace(summary) != "" {
		return strings.TrimSpace(summary), false
	}
	if err == nil {
		err = fmt.Errorf("empty summary")
	}
	p.logger.WarnContext(ctx, "summary unavailable, using placeholder",
		"provider", p.summarizer.Name(),
		"error", fmt.Errorf("%w: %w", domainErrors.ErrEnrichmentFailure, err).Error(),
	)
	return SummaryPlaceholder, true
}

// BuildEnvelope prefixes content with the metadata header pushed to the destination.
func BuildEnvelope(file document.RemoteFile, summary, content string) string {
	link := file.ViewURL
	if link == "" {
		link = "N/A"
	}
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "Arquivo: %s\n", file.Name)
	fmt.Fprintf(&b, "Data Mod: %s\n", file.ModifiedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Resumo: %s\n", summary)
	fmt.Fprintf(&b, "Link Drive: %s\n", link)
	b.WriteString("---\n")
	b.WriteString(content)
	return b.String()
}
