package access

import (
	"context"
	"sync"
	"time"

	"log/slog"

	coreconfig "github.com/quicknotes/studybot/core/config"
	"github.com/quicknotes/studybot/core/logger"
)

// Engine composes the quota, token, and session stores into the
// download-gating state machine. It is the sole owner of all three maps;
// a single coarse mutex guards every read-decide-write sequence and no
// operation blocks for I/O while holding it.
type Engine struct {
	enabled     bool
	sessionTTL  time.Duration
	freeAllowed uint

	now     func() time.Time
	persist func([]byte)

	mu       sync.Mutex
	quotas   *quotaStore
	tokens   *tokenStore
	sessions *sessionStore
}

// Option customises engine construction.
type Option func(*Engine)

// WithClock injects a time source; tests pass a fake clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPersist wires the fire-and-forget snapshot sink. The hook must not
// block; decisions never await a remote write.
func WithPersist(fn func([]byte)) Option {
	return func(e *Engine) { e.persist = fn }
}

// NewEngine builds a gating engine from the access configuration.
func NewEngine(cfg coreconfig.AccessConfig, opts ...Option) *Engine {
	resetWindow := time.Duration(cfg.FreeResetHours * float64(time.Hour))
	tokenDuration := time.Duration(cfg.TokenDurationHours * float64(time.Hour))
	waitTime := time.Duration(cfg.WaitTimeSeconds) * time.Second

	e := &Engine{
		enabled:     cfg.AdVerificationEnabled,
		sessionTTL:  time.Duration(cfg.SessionTTLSeconds) * time.Second,
		freeAllowed: cfg.FreeDownloadsAllowed,
		now:         time.Now,
		quotas:      newQuotaStore(cfg.FreeDownloadsAllowed, resetWindow),
		tokens:      newTokenStore(tokenDuration),
		sessions:    newSessionStore(waitTime),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestDownload decides what must happen before the user gets the material.
// Priority is fixed: active token, then free quota, then ad verification.
// Reordering would either burn free slots under an active token or force
// ads on users who still have free slots.
func (e *Engine) RequestDownload(userID int64, materialRef, adID string) Outcome {
	e.mu.Lock()
	now := e.now()

	if !e.enabled {
		e.quotas.recordDownload(userID, now)
		out := Outcome{Decision: Delivered, MaterialRef: materialRef}
		e.finishLocked(userID, out)
		return out
	}

	if e.tokens.isValid(userID, now) {
		t, _ := e.tokens.get(userID)
		e.quotas.recordDownload(userID, now)
		out := Outcome{
			Decision:       Delivered,
			MaterialRef:    materialRef,
			ViaToken:       true,
			TokenExpiresAt: t.ExpiresAt,
		}
		e.finishLocked(userID, out)
		return out
	}

	e.quotas.resetIfDue(userID, now)
	if e.quotas.freeAvailable(userID, now) {
		out := Outcome{
			Decision:    UseFreeSlot,
			MaterialRef: materialRef,
			FreeLeft:    e.quotas.freeLeft(userID, now),
		}
		e.finishLocked(userID, out)
		return out
	}

	e.sessions.sweepExpired(e.sessionTTL, now)
	token := e.sessions.create(userID, materialRef, adID, now)
	out := Outcome{
		Decision:     ShowAdPrompt,
		MaterialRef:  materialRef,
		SessionToken: token,
	}
	e.finishLocked(userID, out)
	return out
}

// ConfirmFreeSlot spends one free slot after the user accepted the prompt.
// A stale confirmation (quota exhausted meanwhile) degrades to a fresh
// ad prompt instead of corrupting the counter.
func (e *Engine) ConfirmFreeSlot(userID int64, materialRef, adID string) Outcome {
	e.mu.Lock()
	now := e.now()

	if !e.enabled {
		e.quotas.recordDownload(userID, now)
		out := Outcome{Decision: Delivered, MaterialRef: materialRef}
		e.finishLocked(userID, out)
		return out
	}

	e.quotas.resetIfDue(userID, now)
	if !e.quotas.freeAvailable(userID, now) {
		token := e.sessions.create(userID, materialRef, adID, now)
		out := Outcome{
			Decision:     ShowAdPrompt,
			MaterialRef:  materialRef,
			SessionToken: token,
		}
		e.finishLocked(userID, out)
		return out
	}

	e.quotas.consumeFreeSlot(userID, now)
	out := Outcome{
		Decision:    Delivered,
		MaterialRef: materialRef,
		FreeLeft:    e.quotas.freeLeft(userID, now),
	}
	e.finishLocked(userID, out)
	return out
}

// MarkAdClicked records the ad click for a verification session.
func (e *Engine) MarkAdClicked(sessionToken string) error {
	e.mu.Lock()
	now := e.now()
	err := e.sessions.markAdClicked(sessionToken, now)
	e.mu.Unlock()
	if err != nil {
		logger.Gate.Debug("ad click on unknown session",
			slog.String("event", "gate.ad_click"),
			slog.String("session_token", sessionToken),
		)
	}
	return err
}

// CheckVerification polls a session. When the wait has elapsed it
// completes the session, grants the access token exactly once, and
// returns Delivered so the caller can hand over the material.
func (e *Engine) CheckVerification(sessionToken string) Outcome {
	e.mu.Lock()
	now := e.now()

	status, remaining := e.sessions.pollStatus(sessionToken, now)
	switch status {
	case StatusInvalid:
		e.mu.Unlock()
		return Outcome{Decision: VerificationExpired}
	case StatusNotClicked:
		e.mu.Unlock()
		return Outcome{Decision: AdNotClicked}
	case StatusWaiting:
		e.mu.Unlock()
		return Outcome{Decision: StillWaiting, RemainingSeconds: remaining}
	}

	sess, first, err := e.sessions.complete(sessionToken, now)
	if err != nil {
		// pollStatus said Ready; completion cannot miss.
		e.mu.Unlock()
		return Outcome{Decision: VerificationExpired}
	}

	var token AccessToken
	if first {
		token = e.tokens.grant(sess.UserID, now)
		e.quotas.recordTokenEarned(sess.UserID, now)
		e.quotas.recordDownload(sess.UserID, now)
	} else if e.tokens.isValid(sess.UserID, now) {
		// A re-poll long after completion can outlive the granted token;
		// the outcome then carries a zero expiry instead of a stale one.
		token, _ = e.tokens.get(sess.UserID)
	}
	out := Outcome{
		Decision:       Delivered,
		MaterialRef:    sess.MaterialRef,
		ViaToken:       true,
		TokenExpiresAt: token.ExpiresAt,
		TokenGranted:   first,
	}
	e.finishLocked(sess.UserID, out)
	return out
}

// Enabled reports whether ad verification is currently on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// SetEnabled flips ad verification at runtime and reports the new state.
func (e *Engine) SetEnabled(on bool) bool {
	e.mu.Lock()
	e.enabled = on
	e.mu.Unlock()

	logger.Gate.Info("ad verification toggled",
		slog.String("event", "gate.toggle"),
		slog.Bool("enabled", on),
	)
	return on
}

// ResetUser wipes a user's quota, token, and in-flight sessions.
func (e *Engine) ResetUser(userID int64) {
	e.mu.Lock()
	delete(e.quotas.users, userID)
	delete(e.tokens.tokens, userID)
	for token, sess := range e.sessions.sessions {
		if sess.UserID == userID {
			delete(e.sessions.sessions, token)
		}
	}
	var snapshot []byte
	if e.persist != nil {
		snapshot = e.snapshotLocked()
	}
	e.mu.Unlock()

	logger.Gate.Info("user state reset",
		slog.String("event", "gate.reset_user"),
		slog.Int64("user_id", userID),
	)
	if e.persist != nil && snapshot != nil {
		e.persist(snapshot)
	}
}

// Status returns a read-only snapshot for the /status display.
func (e *Engine) Status(userID int64) UserStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	e.quotas.resetIfDue(userID, now)
	q := e.quotas.getOrCreate(userID, now)
	st := UserStatus{
		FreeUsed:       q.FreeUsed,
		FreeAllowed:    e.freeAllowed,
		FreeResetAt:    q.FreeResetAt,
		TotalDownloads: q.TotalDownloads,
		TokensEarned:   q.TokensEarned,
	}
	if e.tokens.isValid(userID, now) {
		t, _ := e.tokens.get(userID)
		st.TokenActive = true
		st.TokenExpiresAt = t.ExpiresAt
	}
	return st
}

// SweepExpired drops verification sessions past the TTL and returns the count.
func (e *Engine) SweepExpired() int {
	e.mu.Lock()
	now := e.now()
	swept := e.sessions.sweepExpired(e.sessionTTL, now)
	remaining := e.sessions.len()
	e.mu.Unlock()

	if swept > 0 {
		logger.Gate.Info("session sweep",
			slog.String("event", "gate.sweep"),
			slog.Int("swept", swept),
			slog.Int("sessions", remaining),
		)
	}
	return swept
}

// RunSweeper drives periodic session sweeps until the context is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepExpired()
		}
	}
}

// finishLocked logs the decision, snapshots state for the persistence
// sink, and releases the engine lock. The persist hook runs outside the
// lock and must never block the decision path.
func (e *Engine) finishLocked(userID int64, out Outcome) {
	var snapshot []byte
	if e.persist != nil {
		snapshot = e.snapshotLocked()
	}
	e.mu.Unlock()

	logger.Gate.Debug("gate decision",
		slog.String("event", "gate.decision"),
		slog.Int64("user_id", userID),
		slog.String("decision", out.Decision.String()),
		slog.Uint64("free_left", uint64(out.FreeLeft)),
		slog.Bool("via_token", out.ViaToken),
	)

	if e.persist != nil && snapshot != nil {
		e.persist(snapshot)
	}
}
