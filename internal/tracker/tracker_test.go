package tracker

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTrackUserAccumulates(t *testing.T) {
	clock := newFakeClock()
	tr := New(WithClock(clock.Now))

	tr.TrackUser(100, "alice", "Alice", "start")
	first := clock.Now()
	clock.Advance(time.Hour)
	tr.TrackUser(100, "alice", "Alice", "download")
	tr.TrackUser(200, "", "", "")

	sum := tr.UserStats()
	if sum.UniqueUsers != 2 {
		t.Fatalf("UniqueUsers = %d, want 2", sum.UniqueUsers)
	}
	if sum.TotalInteractions != 3 {
		t.Fatalf("TotalInteractions = %d, want 3", sum.TotalInteractions)
	}

	rec := tr.users.UniqueUsers["100"]
	if rec.FirstSeen != first {
		t.Fatalf("FirstSeen moved: %v", rec.FirstSeen)
	}
	if rec.LastSeen != clock.Now() {
		t.Fatalf("LastSeen not updated: %v", rec.LastSeen)
	}
	if rec.Actions["start"] != 1 || rec.Actions["download"] != 1 {
		t.Fatalf("actions = %v", rec.Actions)
	}

	anon := tr.users.UniqueUsers["200"]
	if anon.Username != "no_username" || anon.FirstName != "Unknown" || anon.Actions["interaction"] != 1 {
		t.Fatalf("defaults not applied: %+v", anon)
	}
}

func TestActiveUsersWindow(t *testing.T) {
	clock := newFakeClock()
	tr := New(WithClock(clock.Now))

	tr.TrackUser(1, "old", "Old", "start")
	clock.Advance(31 * 24 * time.Hour)
	tr.TrackUser(2, "fresh", "Fresh", "start")

	sum := tr.UserStats()
	if sum.UniqueUsers != 2 || sum.ActiveUsers != 1 {
		t.Fatalf("summary = %+v, want 2 unique / 1 active", sum)
	}
}

func TestAdFunnelCounters(t *testing.T) {
	tr := New()

	tr.RecordImpression("ad_001")
	tr.RecordImpression("ad_001")
	tr.RecordImpression("ad_002")
	tr.RecordClick("ad_001")
	tr.RecordConversion("ad_001", 0.02)

	rep := tr.AdStats()
	if rep.TotalImpressions != 3 || rep.Conversions != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.RevenueEarned != 0.02 {
		t.Fatalf("revenue = %v", rep.RevenueEarned)
	}
	if len(rep.PerAd) != 2 {
		t.Fatalf("PerAd rows = %d, want 2", len(rep.PerAd))
	}
	// Rows come back sorted by ad id.
	if rep.PerAd[0].AdID != "ad_001" || rep.PerAd[0].Clicks != 1 || rep.PerAd[0].Conversions != 1 {
		t.Fatalf("row 0 = %+v", rep.PerAd[0])
	}
	if rep.PerAd[1].AdID != "ad_002" || rep.PerAd[1].Impressions != 1 {
		t.Fatalf("row 1 = %+v", rep.PerAd[1])
	}
}

func TestPersistHooksFire(t *testing.T) {
	var userDocs, adDocs int
	tr := New(
		WithUserPersist(func([]byte) { userDocs++ }),
		WithAdPersist(func([]byte) { adDocs++ }),
	)

	tr.TrackUser(1, "a", "A", "start")
	tr.RecordImpression("ad_001")
	tr.RecordClick("ad_001")

	if userDocs != 1 {
		t.Fatalf("user persist fired %d times, want 1", userDocs)
	}
	if adDocs != 2 {
		t.Fatalf("ad persist fired %d times, want 2", adDocs)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	clock := newFakeClock()
	tr := New(WithClock(clock.Now))
	tr.TrackUser(7, "bob", "Bob", "search")
	tr.RecordImpression("ad_001")
	tr.RecordConversion("ad_001", 0.02)

	fresh := New(WithClock(clock.Now))
	fresh.RestoreUsers(tr.SnapshotUsers())
	fresh.RestoreAds(tr.SnapshotAds())

	if sum := fresh.UserStats(); sum.UniqueUsers != 1 || sum.TotalInteractions != 1 {
		t.Fatalf("restored user summary = %+v", sum)
	}
	rep := fresh.AdStats()
	if rep.TotalImpressions != 1 || rep.Conversions != 1 || rep.RevenueEarned != 0.02 {
		t.Fatalf("restored ad report = %+v", rep)
	}

	// Restored records must stay mutable.
	fresh.TrackUser(7, "bob", "Bob", "search")
	if sum := fresh.UserStats(); sum.TotalInteractions != 2 {
		t.Fatalf("post-restore tracking broken: %+v", sum)
	}
}

func TestRestoreCorruptDocumentsStayEmpty(t *testing.T) {
	tr := New()
	tr.RestoreUsers([]byte("{bad"))
	tr.RestoreAds([]byte("not json"))

	if sum := tr.UserStats(); sum.UniqueUsers != 0 {
		t.Fatalf("corrupt user restore populated tracker: %+v", sum)
	}
	if rep := tr.AdStats(); rep.TotalImpressions != 0 || len(rep.PerAd) != 0 {
		t.Fatalf("corrupt ad restore populated tracker: %+v", rep)
	}
}
