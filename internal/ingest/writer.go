package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/KafClaw/convostore/internal/archive"
	"github.com/KafClaw/convostore/internal/identity"
)

// DefaultBatchSize is the number of inserted rows after which the open
// transaction is committed.
const DefaultBatchSize = 2000

// Result counts one Write call.
type Result struct {
	RunID      string `json:"run_id"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Total      int64  `json:"total"` // messages in the store after the run
}

// Writer persists grouped threads into an archive store.
type Writer struct {
	Store     *archive.Store
	Scope     identity.Scope
	SourceID  string
	BatchSize int
	RunID     string
}

// Write stores every timed record of threads. Threads are written in order;
// each one runs in its own transaction, split further whenever BatchSize rows
// have been inserted. On error the open transaction is rolled back and
// earlier commits are kept.
func (w *Writer) Write(ctx context.Context, threads []Thread) (Result, error) {
	res := Result{RunID: w.RunID}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	log := slog.With("run_id", res.RunID, "platform", w.Scope.Platform, "account", w.Scope.Account)

	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for _, th := range threads {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := w.writeThread(ctx, log, th, batchSize, &res); err != nil {
			return res, err
		}
	}

	total, err := w.Store.Count(ctx)
	if err != nil {
		return res, err
	}
	res.Total = total
	log.Info("Ingest complete", "inserted", res.Inserted, "duplicates", res.Duplicates, "total", res.Total)
	return res, nil
}

func (w *Writer) writeThread(ctx context.Context, log *slog.Logger, th Thread, batchSize int, res *Result) error {
	if len(th.Records) == 0 {
		return nil
	}
	// The earliest record anchors the thread even when it has no timestamp.
	canonical := identity.ThreadID(w.Scope, th.Records[0])
	log.Debug("Writing thread", "thread", th.ID, "canonical_thread_id", canonical, "records", len(th.Records))

	b, err := w.Store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Rollback() }()

	for i, rec := range th.Records {
		ts, ok := identity.FormatTimestamp(rec.CreatedAt)
		if !ok {
			continue
		}
		msg := archive.Message{
			MessageID:         identity.MessageID(w.Scope, canonical, rec),
			CanonicalThreadID: canonical,
			Platform:          w.Scope.Platform,
			AccountID:         w.Scope.Account,
			TS:                ts,
			Role:              rec.Role,
			Text:              rec.Content,
			Title:             rec.ThreadTitle,
			SourceID:          w.SourceID,
		}
		inserted, err := b.Insert(ctx, msg)
		if err != nil {
			return err
		}
		if inserted {
			res.Inserted++
		} else {
			res.Duplicates++
		}

		if b.Inserted() >= batchSize && i < len(th.Records)-1 {
			if err := b.Commit(); err != nil {
				return err
			}
			log.Info("Committed batch", "thread", th.ID, "rows", b.Inserted())
			if err := ctx.Err(); err != nil {
				return err
			}
			next, err := w.Store.Begin(ctx)
			if err != nil {
				return fmt.Errorf("reopen batch: %w", err)
			}
			b = next
		}
	}

	if err := b.Commit(); err != nil {
		return err
	}
	log.Debug("Committed thread", "thread", th.ID, "rows", b.Inserted())
	return nil
}
