package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	"github.com/jbctechsolutions/docsync/internal/domain/document"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/tracing"
)

// Deps are the collaborators shared by the Dispatcher and the Scheduler.
type Deps struct {
	Controller *Controller
	Overlay    *Overlay
	Pusher     *Pusher
	Store      ports.StateStore
	Lister     ports.RemoteLister
	Profiles   ProfileSource
	Logger     *logging.Logger
	Tracer     *tracing.Tracer
}

func (d Deps) withDefaults() Deps {
	if d.Overlay == nil {
		d.Overlay = NewOverlay("")
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Tracer == nil {
		d.Tracer = tracing.Default()
	}
	return d
}

// BatchOptions narrows a manual batch.
type BatchOptions struct {
	// ProfileID selects the target profile; empty means the active profile.
	ProfileID string
	// Match is an optional doublestar pattern applied to file names.
	Match string
}

// BatchReport summarizes a sequential batch for one profile.
type BatchReport struct {
	ProfileID  string       `json:"profile_id"`
	Candidates int          `json:"candidates"`
	Pushed     int          `json:"pushed"`
	Failed     int          `json:"failed"`
	Aborted    bool         `json:"aborted,omitempty"`
	SkipReason string       `json:"skip_reason,omitempty"`
	Results    []PushResult `json:"results,omitempty"`
}

// Dispatcher pushes files outside the scheduled cycle.
type Dispatcher struct {
	deps Deps
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{deps: deps.withDefaults()}
}

// SyncFile pushes one file to profileID (empty for the active profile). It fails
// fast with ErrBusy while a tick or another push holds the controller.
func (d *Dispatcher) SyncFile(ctx context.Context, file document.RemoteFile, profileID string) (PushResult, error) {
	target, err := resolveProfile(d.deps.Profiles, profileID)
	if err != nil {
		return PushResult{}, err
	}
	if err := file.Validate(); err != nil {
		return PushResult{}, err
	}

	release, err := d.deps.Controller.TryBegin(ctx, "manual:"+file.ID)
	if err != nil {
		return PushResult{}, err
	}
	defer release()

	res := d.pushOne(logging.WithTrigger(ctx, "manual"), target, file)
	return res, res.Err
}

// SyncFileByID looks the file up in the remote store and pushes it.
func (d *Dispatcher) SyncFileByID(ctx context.Context, fileID, profileID string) (PushResult, error) {
	file, err := d.deps.Lister.Get(ctx, fileID)
	if err != nil {
		if domainErrors.IsAuthExpired(err) {
			d.deps.Controller.Disconnect()
		}
		return PushResult{}, err
	}
	return d.SyncFile(ctx, file, profileID)
}

// SyncPending pushes, one after another, every watched file of the profile whose
// status is pending or error. Per-file failures are reported, not returned; only
// an authentication failure stops the batch and is returned.
func (d *Dispatcher) SyncPending(ctx context.Context, files []document.RemoteFile, opts BatchOptions) (BatchReport, error) {
	target, err := resolveProfile(d.deps.Profiles, opts.ProfileID)
	if err != nil {
		return BatchReport{}, err
	}
	if opts.Match != "" && !doublestar.ValidatePattern(opts.Match) {
		return BatchReport{}, domainErrors.NewError(domainErrors.CodeValidation, fmt.Sprintf("invalid match pattern %q", opts.Match), nil)
	}

	release, err := d.deps.Controller.TryBegin(ctx, "batch:"+target.ID)
	if err != nil {
		return BatchReport{}, err
	}
	defer release()

	candidates, err := d.batchCandidates(ctx, files, target.ID, opts.Match)
	if err != nil {
		return BatchReport{}, err
	}

	report := d.runBatch(logging.WithTrigger(ctx, "batch"), target, candidates)
	if report.Aborted {
		return report, domainErrors.AuthExpired("batch stopped", nil)
	}
	return report, nil
}

func (d *Dispatcher) batchCandidates(ctx context.Context, files []document.RemoteFile, profileID, match string) ([]document.RemoteFile, error) {
	watched, err := d.deps.Store.Watched(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch set: %w", err)
	}
	history, err := d.deps.Store.History(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	markers := d.deps.Overlay.Markers(profileID)

	var out []document.RemoteFile
	for _, f := range files {
		if _, ok := watched[f.ID]; !ok {
			continue
		}
		var last *time.Time
		if at, ok := history[f.ID]; ok {
			last = &at
		}
		status := document.ComputeStatus(true, last, f.ModifiedAt)
		if status != document.StatusPending && markers[f.ID] != document.StatusError {
			continue
		}
		if match != "" {
			if ok, _ := doublestar.Match(match, f.Name); !ok {
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// runBatch pushes files strictly in order. The caller holds the controller.
func (d *Dispatcher) runBatch(ctx context.Context, target profile.Profile, files []document.RemoteFile) BatchReport {
	ctx, span := d.deps.Tracer.StartBatchSpan(ctx, target.ID, len(files))
	report := BatchReport{ProfileID: target.ID, Candidates: len(files)}

	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		res := d.pushOne(ctx, target, f)
		report.Results = append(report.Results, res)
		if res.OK() {
			report.Pushed++
			continue
		}
		report.Failed++
		if domainErrors.IsAuthExpired(res.Err) {
			report.Aborted = true
			break
		}
	}

	span.SetInt("batch.pushed", report.Pushed)
	span.SetInt("batch.failed", report.Failed)
	span.SetBool("batch.aborted", report.Aborted)
	span.End()
	return report
}

// pushOne wraps a push with the overlay markers and the disconnect on auth expiry.
func (d *Dispatcher) pushOne(ctx context.Context, target profile.Profile, file document.RemoteFile) PushResult {
	d.deps.Overlay.Mark(target.ID, file.ID, document.StatusSyncing)

	res := d.deps.Pusher.Push(ctx, target, file)
	if res.OK() {
		d.deps.Overlay.Clear(target.ID, file.ID)
		return res
	}

	d.deps.Overlay.Mark(target.ID, file.ID, document.StatusError)
	if domainErrors.IsAuthExpired(res.Err) {
		d.deps.Logger.WarnContext(ctx, "file store session expired, disconnecting")
		d.deps.Controller.Disconnect()
	}
	return res
}
