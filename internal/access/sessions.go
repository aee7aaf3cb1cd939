package access

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sessionStore owns in-flight verification sessions keyed by an opaque
// one-time token. Callers hold the engine lock.
type sessionStore struct {
	waitTime time.Duration
	sessions map[string]*VerificationSession
}

func newSessionStore(waitTime time.Duration) *sessionStore {
	return &sessionStore{
		waitTime: waitTime,
		sessions: make(map[string]*VerificationSession),
	}
}

// newSessionToken builds a collision-resistant opaque identifier.
// User id and timestamp keep it debuggable in logs; the uuid component
// makes it unguessable so one user cannot drive another's session.
// Unix seconds, not nanos: the token travels inside Telegram callback
// data, which is capped at 64 bytes including the handler key framing.
func newSessionToken(userID int64, now time.Time) string {
	rnd := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("verify_%d_%d_%s", userID, now.Unix(), rnd)
}

// create stores a new unclicked session and returns its token.
func (s *sessionStore) create(userID int64, materialRef, adID string, now time.Time) string {
	token := newSessionToken(userID, now)
	s.sessions[token] = &VerificationSession{
		UserID:      userID,
		MaterialRef: materialRef,
		AdID:        adID,
		CreatedAt:   now,
	}
	return token
}

// markAdClicked records the first ad click. Re-clicks do not restart the
// timer; only the first click sets the timestamp.
func (s *sessionStore) markAdClicked(token string, now time.Time) error {
	sess, ok := s.sessions[token]
	if !ok {
		return ErrInvalidToken
	}
	if sess.AdClickedAt.IsZero() {
		sess.AdClickedAt = now
	}
	return nil
}

// pollStatus reports the session state relative to the wait timer.
// Remaining seconds carry the ceiling of the leftover wait. A session
// never reverts from Ready once the threshold has passed.
func (s *sessionStore) pollStatus(token string, now time.Time) (SessionStatus, int) {
	sess, ok := s.sessions[token]
	if !ok {
		return StatusInvalid, 0
	}
	if sess.Completed {
		return StatusReady, 0
	}
	if sess.AdClickedAt.IsZero() {
		return StatusNotClicked, 0
	}
	elapsed := now.Sub(sess.AdClickedAt)
	if elapsed >= s.waitTime {
		return StatusReady, 0
	}
	remaining := int(math.Ceil((s.waitTime - elapsed).Seconds()))
	return StatusWaiting, remaining
}

// complete marks the session done and hands back its material reference.
// Re-entry after completion returns the same reference with first=false
// so the engine grants the access token exactly once.
func (s *sessionStore) complete(token string, now time.Time) (sess *VerificationSession, first bool, err error) {
	st, _ := s.pollStatus(token, now)
	switch st {
	case StatusInvalid:
		return nil, false, ErrInvalidToken
	case StatusNotClicked, StatusWaiting:
		return nil, false, ErrNotReady
	}
	sess = s.sessions[token]
	first = !sess.Completed
	sess.Completed = true
	return sess, first, nil
}

// sweepExpired removes sessions older than maxAge regardless of state.
// Abandoned flows are the one unbounded-growth risk here.
func (s *sessionStore) sweepExpired(maxAge time.Duration, now time.Time) int {
	swept := 0
	for token, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > maxAge {
			delete(s.sessions, token)
			swept++
		}
	}
	return swept
}

func (s *sessionStore) len() int { return len(s.sessions) }
