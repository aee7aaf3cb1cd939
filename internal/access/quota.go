package access

import "time"

// quotaStore owns per-user quota records. Callers hold the engine lock;
// no store method performs I/O or blocks.
type quotaStore struct {
	allowed     uint
	resetWindow time.Duration
	users       map[int64]*UserQuota
}

func newQuotaStore(allowed uint, resetWindow time.Duration) *quotaStore {
	return &quotaStore{
		allowed:     allowed,
		resetWindow: resetWindow,
		users:       make(map[int64]*UserQuota),
	}
}

// getOrCreate returns the existing record or initializes one with a fresh
// reset deadline. Pure upsert, no error conditions.
func (s *quotaStore) getOrCreate(userID int64, now time.Time) *UserQuota {
	if q, ok := s.users[userID]; ok {
		return q
	}
	q := &UserQuota{FreeResetAt: now.Add(s.resetWindow)}
	s.users[userID] = q
	return q
}

// resetIfDue zeroes the usage counter once the window has elapsed.
// It reports whether a reset occurred; calling it twice within the same
// instant resets at most once.
func (s *quotaStore) resetIfDue(userID int64, now time.Time) bool {
	q := s.getOrCreate(userID, now)
	if now.Before(q.FreeResetAt) {
		return false
	}
	q.FreeUsed = 0
	q.FreeResetAt = now.Add(s.resetWindow)
	return true
}

// freeAvailable reports whether a free slot can still be consumed.
// resetIfDue must run first so the counter is never read stale.
func (s *quotaStore) freeAvailable(userID int64, now time.Time) bool {
	return s.getOrCreate(userID, now).FreeUsed < s.allowed
}

// consumeFreeSlot spends one free slot and counts the download.
// When the quota is already exhausted it leaves state untouched and
// returns the current count; callers check eligibility first, so this
// path only guards against stale confirmations.
func (s *quotaStore) consumeFreeSlot(userID int64, now time.Time) uint {
	q := s.getOrCreate(userID, now)
	if q.FreeUsed >= s.allowed {
		return q.FreeUsed
	}
	q.FreeUsed++
	q.TotalDownloads++
	return q.FreeUsed
}

// recordDownload counts a delivery that did not consume a free slot.
func (s *quotaStore) recordDownload(userID int64, now time.Time) {
	s.getOrCreate(userID, now).TotalDownloads++
}

// recordTokenEarned updates the analytics counters on verification completion.
func (s *quotaStore) recordTokenEarned(userID int64, now time.Time) {
	q := s.getOrCreate(userID, now)
	q.TokensEarned++
	ts := now
	q.LastAdWatchAt = &ts
}

func (s *quotaStore) freeLeft(userID int64, now time.Time) uint {
	q := s.getOrCreate(userID, now)
	if q.FreeUsed >= s.allowed {
		return 0
	}
	return s.allowed - q.FreeUsed
}
