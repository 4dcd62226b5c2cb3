// Package uploader drains the memory sync queue into a remote Sink.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/4tyam/everyday/internal/errs"
	"github.com/4tyam/everyday/internal/model"
	"github.com/4tyam/everyday/internal/repository"
)

// Sink stores an uploaded memory remotely and returns its remote URL.
type Sink interface {
	Upload(ctx context.Context, m model.Memory) (string, error)
}

// Options tunes the drain. Zero values select defaults.
type Options struct {
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// ClaimLease is how long a syncing entry may stay claimed before a later
	// drain hands it back to pending.
	ClaimLease time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Minute
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = time.Hour
	}
	if o.ClaimLease <= 0 {
		o.ClaimLease = 10 * time.Minute
	}
	return o
}

// Result summarizes one drain pass.
type Result struct {
	Synced  int `json:"synced"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type Uploader struct {
	queue    repository.SyncQueueRepository
	memories repository.MemoryRepository
	sink     Sink
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

// New constructs an Uploader.
func New(queue repository.SyncQueueRepository, memories repository.MemoryRepository, sink Sink, opts Options, log *zap.Logger) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{queue: queue, memories: memories, sink: sink, opts: opts.withDefaults(), log: log, now: time.Now}
}

// Delay returns the wait after the given number of failed attempts:
// base * 2^attempts, capped at ceiling.
func Delay(attempts int, base, ceiling time.Duration) time.Duration {
	b := retry.WithCappedDuration(ceiling, retry.NewExponential(base))
	var d time.Duration
	for i := 0; i <= attempts; i++ {
		// stop at the cap before the shift can overflow
		if d, _ = b.Next(); d >= ceiling {
			break
		}
	}
	return d
}

// Drain processes every due entry of userID once.
func (u *Uploader) Drain(ctx context.Context, userID string) (Result, error) {
	var res Result
	if userID == "" {
		return res, nil
	}
	now := u.now()
	released, err := u.queue.ReleaseStale(ctx, userID, now.Add(-u.opts.ClaimLease).UnixMilli(), now.UnixMilli())
	if err != nil {
		return res, fmt.Errorf("release stale claims: %w", err)
	}
	if released > 0 {
		u.log.Warn("released stale sync claims", zap.Int("count", released))
	}
	due, err := u.queue.ListDue(ctx, userID, now.UnixMilli(), u.opts.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list due: %w", err)
	}
	for _, e := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outcome, err := u.process(ctx, e)
		if err != nil {
			return res, err
		}
		switch outcome {
		case outcomeSynced:
			res.Synced++
		case outcomeRetry:
			res.Retried++
		case outcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSynced
	outcomeRetry
	outcomeFailed
)

func (u *Uploader) process(ctx context.Context, e model.SyncQueueEntry) (outcome, error) {
	log := u.log.With(zap.String("entry", e.ID), zap.String("memory", e.MemoryID))

	if err := u.queue.MarkSyncing(ctx, e.ID, u.now().UnixMilli()); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			log.Debug("entry already claimed")
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("claim %s: %w", e.ID, err)
	}

	// the claim is resolved even when ctx ends mid-upload
	bg := context.WithoutCancel(ctx)

	m, err := u.memories.Get(bg, e.UserID, e.MemoryID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			log.Info("memory deleted before upload")
			return outcomeSkipped, nil
		}
		return u.fail(bg, e, fmt.Errorf("load memory: %w", err), log)
	}

	remoteURL, upErr := u.sink.Upload(ctx, *m)
	if upErr != nil && ctx.Err() != nil {
		if err := u.queue.Release(bg, e.ID, u.now().UnixMilli()); err != nil {
			return outcomeSkipped, fmt.Errorf("release %s: %w", e.ID, err)
		}
		log.Info("upload interrupted, entry released")
		return outcomeSkipped, ctx.Err()
	}
	if upErr != nil {
		return u.fail(bg, e, upErr, log)
	}

	if err := u.queue.MarkSynced(bg, e.ID, remoteURL, u.now().UnixMilli()); err != nil {
		return outcomeSkipped, fmt.Errorf("mark synced %s: %w", e.ID, err)
	}
	log.Info("memory synced", zap.String("remote", remoteURL))
	return outcomeSynced, nil
}

// fail records a failed attempt on a claimed entry and schedules its retry,
// or parks it once MaxAttempts is reached.
func (u *Uploader) fail(ctx context.Context, e model.SyncQueueEntry, cause error, log *zap.Logger) (outcome, error) {
	now := u.now()
	attempts := e.Attempts + 1
	terminal := attempts >= u.opts.MaxAttempts
	delay := Delay(attempts, u.opts.BaseDelay, u.opts.MaxDelay)
	if err := u.queue.MarkFailed(ctx, e.ID, cause.Error(), now.Add(delay).UnixMilli(), terminal, now.UnixMilli()); err != nil {
		return outcomeSkipped, fmt.Errorf("mark failed %s: %w", e.ID, err)
	}
	if terminal {
		log.Warn("upload failed permanently", zap.Int("attempts", attempts), zap.Error(cause))
		return outcomeFailed, nil
	}
	log.Warn("upload failed, will retry",
		zap.Int("attempts", attempts), zap.Duration("in", delay), zap.Error(cause))
	return outcomeRetry, nil
}

// Run drains userID every interval until ctx is done. Pass errors are logged
// and do not stop the loop. report, if non-nil, receives every pass outcome.
func (u *Uploader) Run(ctx context.Context, userID string, interval time.Duration, report func(Result, error)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		res, err := u.Drain(ctx, userID)
		if err != nil && ctx.Err() == nil {
			u.log.Error("drain", zap.Error(err))
		}
		if report != nil && ctx.Err() == nil {
			report(res, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
