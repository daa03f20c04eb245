// Package reaper is the chest lifecycle engine's periodic sweep (C6): it
// expires sealed chests past their deadline and garbage-collects open chests
// abandoned before ever being sealed. It is modeled as an independent task
// the process owner schedules, not coupled to the request path, the same
// shape the teacher uses for its own background cleanup
// (Pepperjack-svg-zynq's internal/cleanup.RunPeriodic): run one pass
// immediately at startup to recover from a prior crash, then tick on an
// interval until the context is cancelled.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chestsvc/chest/pkg/metadata"
	"github.com/chestsvc/chest/pkg/stats"
	"github.com/chestsvc/chest/pkg/storage"
	"github.com/dustin/go-humanize"
)

// abandonedHorizon deliberately equals the multipart token TTL (spec.md
// §4.6): by the time an open session is this old, no in-flight chunked
// upload's token can still be valid, so no live uploader can collide with
// reaping it.
const abandonedHorizon = 48 * time.Hour

// MetadataGateway is the subset of pkg/metadata's Store the reaper needs.
type MetadataGateway interface {
	SelectExpiredSessions(ctx context.Context, now time.Time) ([]metadata.Session, error)
	SelectAbandonedSessions(ctx context.Context, cutoff time.Time) ([]metadata.Session, error)
	CountSessionFiles(ctx context.Context, sessionID string) (int, error)
	SoftDeleteSession(ctx context.Context, id string) error
	SoftDeleteFiles(ctx context.Context, sessionID string) error
}

// Summary is the structured per-sweep result spec.md §4.6 requires.
type Summary struct {
	Expired      int
	Abandoned    int
	DeletedFiles int
	DeletedBlobs int
	Errors       []error
}

// Reaper owns one sweep's dependencies.
type Reaper struct {
	meta  MetadataGateway
	blobs storage.Gateway
	clock func() time.Time
}

func New(meta MetadataGateway, blobs storage.Gateway) *Reaper {
	return &Reaper{meta: meta, blobs: blobs, clock: time.Now}
}

// RunPeriodic starts a background goroutine that sweeps on every interval
// until ctx is cancelled. A first pass runs immediately at startup to
// recover from a prior crash or restart, mirroring the teacher's
// RunPeriodic shape.
func (r *Reaper) RunPeriodic(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	go func() {
		r.sweepAndLog(ctx, logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweepAndLog(ctx, logger)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Reaper) sweepAndLog(ctx context.Context, logger *slog.Logger) {
	summary := r.Sweep(ctx)

	stats.Default().RecordReap(summary.Expired, summary.Abandoned)

	attrs := []any{
		"expired", summary.Expired,
		"abandoned", summary.Abandoned,
		"deletedFiles", summary.DeletedFiles,
		"deletedBlobs", humanize.Comma(int64(summary.DeletedBlobs)),
	}
	if len(summary.Errors) > 0 {
		attrs = append(attrs, "errors", len(summary.Errors))
		logger.Warn("reaper: sweep completed with errors", attrs...)
		for _, err := range summary.Errors {
			logger.Warn("reaper: sweep error", "err", err)
		}
		return
	}
	logger.Info("reaper: sweep complete", attrs...)
}

// Sweep runs one sweep. Per spec.md §4.6 it never throws out: a failed
// global read is recorded as an error and the sweep exits cleanly; a failed
// per-session step is recorded and the sweep continues with the next
// session. Sweeps are idempotent per session: a second sweep against the
// same already-reaped session set deletes nothing further because the
// sessions are no longer selected (they are now soft-deleted).
func (r *Reaper) Sweep(ctx context.Context) Summary {
	now := r.clock()
	summary := Summary{}

	expired, err := r.meta.SelectExpiredSessions(ctx, now)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("selecting expired sessions: %w", err))
		return summary
	}

	abandoned, err := r.meta.SelectAbandonedSessions(ctx, now.Add(-abandonedHorizon))
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("selecting abandoned sessions: %w", err))
		return summary
	}

	summary.Expired = len(expired)
	summary.Abandoned = len(abandoned)

	for _, sess := range expired {
		r.reapSession(ctx, sess, &summary)
	}
	for _, sess := range abandoned {
		r.reapSession(ctx, sess, &summary)
	}

	return summary
}

func (r *Reaper) reapSession(ctx context.Context, sess metadata.Session, summary *Summary) {
	prefix := storage.SessionPrefix(sess.ID)

	objects, err := r.blobs.List(ctx, prefix)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("listing blobs for session %s: %w", sess.ID, err))
	} else {
		for _, obj := range objects {
			if err := r.blobs.Delete(ctx, obj.Key); err != nil {
				summary.Errors = append(summary.Errors, fmt.Errorf("deleting blob %s: %w", obj.Key, err))
				continue
			}
			summary.DeletedBlobs++
		}
	}

	// Abort any in-flight multipart uploads the backend can still enumerate
	// under this prefix — per spec.md §9, the token-only design means the
	// reaper has no persisted uploadId index, so it relies on the blob
	// store's own multipart-listing API instead.
	inFlight, err := r.blobs.ListMultipartUploads(ctx, prefix)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("listing multipart uploads for session %s: %w", sess.ID, err))
	}
	for _, upload := range inFlight {
		if err := r.blobs.MultipartAbort(ctx, upload.Key, upload.UploadID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("aborting multipart upload for %s: %w", upload.Key, err))
		}
	}

	fileCount, err := r.meta.CountSessionFiles(ctx, sess.ID)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("counting files for session %s: %w", sess.ID, err))
	}

	if err := r.meta.SoftDeleteFiles(ctx, sess.ID); err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("soft-deleting files for session %s: %w", sess.ID, err))
		return
	}
	summary.DeletedFiles += fileCount

	if err := r.meta.SoftDeleteSession(ctx, sess.ID); err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("soft-deleting session %s: %w", sess.ID, err))
	}
}
