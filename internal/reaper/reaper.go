// Package reaper implements the three periodic background sweepers
// (spec §4.7): SessionReaper (idle-session eviction plus notify-queue
// garbage collection by minimum read cursor), NotifyReaper
// (invalid-message collection) and PasswordCacheReaper (expired
// password-verification cache entries). Each runs as its
// own ticker+select loop, cancelable via context, grounded on the
// donor's RunMetrics ticker/select/ctx.Done shape (server/metrics.go).
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"banchod/internal/authn"
	"banchod/internal/bancho"
	banchometrics "banchod/internal/metrics"
	"banchod/internal/session"
)

// SessionReaper evicts sessions idle for longer than Dead via the
// service's own DeleteUserSession (so eviction emits the same logout
// broadcast an explicit client logout would), and trims the global
// notify queue up to the minimum read cursor across all live sessions on
// every sweep (spec §4.7).
type SessionReaper struct {
	Svc      *bancho.Service
	Dead     time.Duration
	Interval time.Duration
	Log      *slog.Logger
}

// Run ticks every Interval until ctx is canceled, sweeping once per
// tick. Skipping a cycle never causes incorrect behavior (spec §4.7
// idempotence), only delayed cleanup.
func (r *SessionReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx, time.Now())
		}
	}
}

func (r *SessionReaper) sweep(ctx context.Context, now time.Time) {
	// spec §4.7: compute the minimum read cursor across every live
	// session first, then evict — not the other way around, so an
	// about-to-be-evicted session's already-acknowledged cursor still
	// counts toward what the notify queue may safely drop.
	all := r.Svc.Store.All()

	minCursor := ulid.ULID{}
	hasMin := false
	var dead []*session.Session
	for _, sess := range all {
		cursor := sess.NotifyCursor()
		if !hasMin || cursor.Compare(minCursor) < 0 {
			minCursor = cursor
			hasMin = true
		}
		if now.Sub(sess.LastActiveAt()) > r.Dead {
			dead = append(dead, sess)
		}
	}

	if hasMin {
		r.Svc.Global.RemoveBefore(minCursor)
	}

	evicted := 0
	for _, sess := range dead {
		if _, ok := r.Svc.DeleteUserSession(ctx, session.QuerySessionID(sess.SessionID)); ok {
			evicted++
		}
	}

	if r.Svc.Metrics != nil {
		r.Svc.Metrics.RecordSweep("session", evicted)
	}
	if evicted > 0 {
		r.Log.Info("session reaper: evicted idle sessions", "count", evicted)
	}
}

// NotifyReaper removes messages whose validator reports them no longer
// eligible for delivery (spec §4.7).
type NotifyReaper struct {
	Svc      *bancho.Service
	Interval time.Duration
	Log      *slog.Logger
}

func (r *NotifyReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *NotifyReaper) sweep() {
	invalid := r.Svc.Global.CollectInvalid()
	if len(invalid) == 0 {
		if r.Svc.Metrics != nil {
			r.Svc.Metrics.RecordSweep("notify", 0)
		}
		return
	}
	r.Svc.Global.Remove(invalid)
	if r.Svc.Metrics != nil {
		r.Svc.Metrics.RecordSweep("notify", len(invalid))
		r.Svc.Metrics.SetNotifyDepth("global", r.Svc.Global.Len())
	}
	r.Log.Info("notify reaper: removed invalidated messages", "count", len(invalid))
}

// PasswordCacheReaper proactively sweeps already-expired Argon2
// verification cache entries rather than waiting on go-cache's own
// janitor tick (spec §4.7).
type PasswordCacheReaper struct {
	Cache    *authn.Cache
	Interval time.Duration
	Metrics  *banchometrics.Collector
	Log      *slog.Logger
}

func (r *PasswordCacheReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *PasswordCacheReaper) sweep() {
	before := r.Cache.Len()
	r.Cache.Sweep()
	if r.Metrics != nil {
		r.Metrics.RecordSweep("password_cache", before-r.Cache.Len())
	}
}
