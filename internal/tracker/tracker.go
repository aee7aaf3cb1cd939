package tracker

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/quicknotes/studybot/core/logger"
)

// Store document names for the two stat families.
const (
	UserStatsDocument = "user_stats.json"
	AdStatsDocument   = "ad_stats.json"
)

// activeWindow bounds the "active users" figure in the stats report.
const activeWindow = 30 * 24 * time.Hour

// UserRecord accumulates per-user interaction history.
type UserRecord struct {
	Username          string            `json:"username"`
	FirstName         string            `json:"first_name"`
	FirstSeen         time.Time         `json:"first_seen"`
	LastSeen          time.Time         `json:"last_seen"`
	TotalInteractions uint64            `json:"total_interactions"`
	Actions           map[string]uint64 `json:"actions"`
}

// AdCounters accumulates per-ad funnel counters.
type AdCounters struct {
	Impressions uint64 `json:"impressions"`
	Clicks      uint64 `json:"clicks"`
	Conversions uint64 `json:"conversions"`
}

type userStats struct {
	UniqueUsers       map[string]*UserRecord `json:"unique_users"`
	TotalInteractions uint64                 `json:"total_interactions"`
}

type adStats struct {
	TotalImpressions uint64                 `json:"total_impressions"`
	Conversions      uint64                 `json:"conversions"`
	RevenueEarned    float64                `json:"revenue_earned"`
	AdClicks         map[string]*AdCounters `json:"ad_clicks"`
}

// UserSummary is the aggregate view behind the admin /stats command.
type UserSummary struct {
	UniqueUsers       int
	ActiveUsers       int
	TotalInteractions uint64
}

// AdReport is the aggregate view behind the admin /adstats command.
type AdReport struct {
	TotalImpressions uint64
	Conversions      uint64
	RevenueEarned    float64
	PerAd            []AdReportRow
}

// AdReportRow is one ad's funnel line, ordered by ad id.
type AdReportRow struct {
	AdID        string
	Impressions uint64
	Clicks      uint64
	Conversions uint64
}

// Tracker accumulates user and ad statistics in memory and hands
// snapshots to per-document persistence sinks after each mutation.
type Tracker struct {
	now          func() time.Time
	persistUsers func([]byte)
	persistAds   func([]byte)

	mu    sync.Mutex
	users userStats
	ads   adStats
}

// Option customises tracker construction.
type Option func(*Tracker)

// WithClock injects a time source; tests pass a fake clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithUserPersist wires the sink for the user-stats document.
func WithUserPersist(fn func([]byte)) Option {
	return func(t *Tracker) { t.persistUsers = fn }
}

// WithAdPersist wires the sink for the ad-stats document.
func WithAdPersist(fn func([]byte)) Option {
	return func(t *Tracker) { t.persistAds = fn }
}

// New returns an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		now: time.Now,
		users: userStats{
			UniqueUsers: make(map[string]*UserRecord),
		},
		ads: adStats{
			AdClicks: make(map[string]*AdCounters),
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrackUser records one interaction. First contact creates the record;
// subsequent calls bump counters and last-seen.
func (t *Tracker) TrackUser(userID int64, username, firstName, action string) {
	if username == "" {
		username = "no_username"
	}
	if firstName == "" {
		firstName = "Unknown"
	}
	if action == "" {
		action = "interaction"
	}

	t.mu.Lock()
	now := t.now()
	key := strconv.FormatInt(userID, 10)
	rec, ok := t.users.UniqueUsers[key]
	if !ok {
		rec = &UserRecord{
			Username:  username,
			FirstName: firstName,
			FirstSeen: now,
			Actions:   make(map[string]uint64),
		}
		t.users.UniqueUsers[key] = rec
	}
	rec.LastSeen = now
	rec.TotalInteractions++
	rec.Actions[action]++
	t.users.TotalInteractions++
	snapshot := t.snapshotUsersLocked()
	t.mu.Unlock()

	if t.persistUsers != nil && snapshot != nil {
		t.persistUsers(snapshot)
	}
}

// RecordImpression counts one ad prompt shown to a user.
func (t *Tracker) RecordImpression(adID string) {
	t.mutateAds(func() {
		t.ads.TotalImpressions++
		t.adCountersLocked(adID).Impressions++
	})
}

// RecordClick counts one ad link click.
func (t *Tracker) RecordClick(adID string) {
	t.mutateAds(func() {
		t.adCountersLocked(adID).Clicks++
	})
}

// RecordConversion counts one completed verification and its revenue.
func (t *Tracker) RecordConversion(adID string, amount float64) {
	t.mutateAds(func() {
		t.ads.Conversions++
		t.ads.RevenueEarned += amount
		t.adCountersLocked(adID).Conversions++
	})
}

func (t *Tracker) adCountersLocked(adID string) *AdCounters {
	c, ok := t.ads.AdClicks[adID]
	if !ok {
		c = &AdCounters{}
		t.ads.AdClicks[adID] = c
	}
	return c
}

func (t *Tracker) mutateAds(fn func()) {
	t.mu.Lock()
	fn()
	snapshot := t.snapshotAdsLocked()
	t.mu.Unlock()

	if t.persistAds != nil && snapshot != nil {
		t.persistAds(snapshot)
	}
}

// UserStats summarises the user base for the admin report.
func (t *Tracker) UserStats() UserSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-activeWindow)
	active := 0
	for _, rec := range t.users.UniqueUsers {
		if rec.LastSeen.After(cutoff) {
			active++
		}
	}
	return UserSummary{
		UniqueUsers:       len(t.users.UniqueUsers),
		ActiveUsers:       active,
		TotalInteractions: t.users.TotalInteractions,
	}
}

// AdStats summarises ad performance for the admin report.
func (t *Tracker) AdStats() AdReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := AdReport{
		TotalImpressions: t.ads.TotalImpressions,
		Conversions:      t.ads.Conversions,
		RevenueEarned:    t.ads.RevenueEarned,
	}
	ids := make([]string, 0, len(t.ads.AdClicks))
	for id := range t.ads.AdClicks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := t.ads.AdClicks[id]
		report.PerAd = append(report.PerAd, AdReportRow{
			AdID:        id,
			Impressions: c.Impressions,
			Clicks:      c.Clicks,
			Conversions: c.Conversions,
		})
	}
	return report
}

func (t *Tracker) snapshotUsersLocked() []byte {
	data, err := json.Marshal(t.users)
	if err != nil {
		logger.Track.Error("user stats marshal failed",
			slog.String("event", "track.snapshot"),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return data
}

func (t *Tracker) snapshotAdsLocked() []byte {
	data, err := json.Marshal(t.ads)
	if err != nil {
		logger.Track.Error("ad stats marshal failed",
			slog.String("event", "track.snapshot"),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return data
}

// SnapshotUsers marshals the user-stats document.
func (t *Tracker) SnapshotUsers() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotUsersLocked()
}

// SnapshotAds marshals the ad-stats document.
func (t *Tracker) SnapshotAds() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotAdsLocked()
}

// RestoreUsers loads a persisted user-stats document. Corrupt input
// leaves the tracker empty rather than aborting startup.
func (t *Tracker) RestoreUsers(data []byte) {
	if len(data) == 0 {
		return
	}
	var st userStats
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Track.Warn("corrupt user stats document, starting empty",
			slog.String("event", "track.restore"),
			slog.String("err", err.Error()),
		)
		return
	}
	if st.UniqueUsers == nil {
		st.UniqueUsers = make(map[string]*UserRecord)
	}
	for _, rec := range st.UniqueUsers {
		if rec.Actions == nil {
			rec.Actions = make(map[string]uint64)
		}
	}

	t.mu.Lock()
	t.users = st
	users := len(t.users.UniqueUsers)
	t.mu.Unlock()

	logger.Track.Info("user stats restored",
		slog.String("event", "track.restore"),
		slog.Int("users", users),
	)
}

// RestoreAds loads a persisted ad-stats document.
func (t *Tracker) RestoreAds(data []byte) {
	if len(data) == 0 {
		return
	}
	var st adStats
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Track.Warn("corrupt ad stats document, starting empty",
			slog.String("event", "track.restore"),
			slog.String("err", err.Error()),
		)
		return
	}
	if st.AdClicks == nil {
		st.AdClicks = make(map[string]*AdCounters)
	}

	t.mu.Lock()
	t.ads = st
	t.mu.Unlock()

	logger.Track.Info("ad stats restored",
		slog.String("event", "track.restore"),
		slog.Uint64("impressions", st.TotalImpressions),
	)
}
