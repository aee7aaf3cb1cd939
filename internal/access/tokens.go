package access

import "time"

// tokenStore owns per-user unlimited-access grants. Callers hold the
// engine lock; expired entries are evicted lazily on lookup.
type tokenStore struct {
	duration time.Duration
	tokens   map[int64]AccessToken
}

func newTokenStore(duration time.Duration) *tokenStore {
	return &tokenStore{
		duration: duration,
		tokens:   make(map[int64]AccessToken),
	}
}

// isValid reports whether the user holds an unexpired token.
// An expired entry is purged as a side effect.
func (s *tokenStore) isValid(userID int64, now time.Time) bool {
	t, ok := s.tokens[userID]
	if !ok {
		return false
	}
	if !now.Before(t.ExpiresAt) {
		delete(s.tokens, userID)
		return false
	}
	return true
}

// grant issues a fresh token, overwriting any existing one.
// Grants renew rather than stack.
func (s *tokenStore) grant(userID int64, now time.Time) AccessToken {
	t := AccessToken{IssuedAt: now, ExpiresAt: now.Add(s.duration)}
	s.tokens[userID] = t
	return t
}

// get returns the token without eviction; used for status displays.
func (s *tokenStore) get(userID int64) (AccessToken, bool) {
	t, ok := s.tokens[userID]
	return t, ok
}
