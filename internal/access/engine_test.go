package access

import (
	"strings"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/quicknotes/studybot/core/config"
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

func testConfig() coreconfig.AccessConfig {
	return coreconfig.AccessConfig{
		AdVerificationEnabled: true,
		FreeDownloadsAllowed:  2,
		FreeResetHours:        10,
		WaitTimeSeconds:       20,
		TokenDurationHours:    10,
		SessionTTLSeconds:     3600,
		SweepIntervalSeconds:  600,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewEngine(testConfig(), WithClock(clock.Now)), clock
}

// Two free downloads, then the ad prompt.
func TestFreeQuotaThenAdPrompt(t *testing.T) {
	e, _ := newTestEngine(t)
	const user = int64(101)

	for i := 0; i < 2; i++ {
		out := e.RequestDownload(user, "CSE/4/DBMS/0", "ad1")
		if out.Decision != UseFreeSlot {
			t.Fatalf("request %d decision = %s, want use_free_slot", i+1, out.Decision)
		}
		out = e.ConfirmFreeSlot(user, "CSE/4/DBMS/0", "ad1")
		if out.Decision != Delivered {
			t.Fatalf("confirm %d decision = %s, want delivered", i+1, out.Decision)
		}
	}

	out := e.RequestDownload(user, "CSE/4/DBMS/0", "ad1")
	if out.Decision != ShowAdPrompt {
		t.Fatalf("third request decision = %s, want show_ad_prompt", out.Decision)
	}
	if out.SessionToken == "" {
		t.Fatal("ad prompt must carry a session token")
	}
}

// freeDownloadsUsed never exceeds the allowance, even via stale confirmations.
func TestFreeUsedNeverExceedsAllowed(t *testing.T) {
	e, _ := newTestEngine(t)
	const user = int64(102)

	for i := 0; i < 5; i++ {
		e.ConfirmFreeSlot(user, "ref", "ad1")
	}
	st := e.Status(user)
	if st.FreeUsed > st.FreeAllowed {
		t.Fatalf("free_used %d exceeds allowance %d", st.FreeUsed, st.FreeAllowed)
	}
	if st.FreeUsed != 2 {
		t.Errorf("free_used = %d, want 2", st.FreeUsed)
	}
}

func TestResetIfDueIdempotentSameInstant(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(103)

	e.mu.Lock()
	e.quotas.getOrCreate(user, clock.Now())
	e.quotas.users[user].FreeUsed = 2
	e.mu.Unlock()

	clock.Advance(10 * time.Hour)

	e.mu.Lock()
	first := e.quotas.resetIfDue(user, clock.Now())
	second := e.quotas.resetIfDue(user, clock.Now())
	resetAt := e.quotas.users[user].FreeResetAt
	e.mu.Unlock()

	if !first {
		t.Fatal("first call should reset")
	}
	if second {
		t.Fatal("second call at the same instant must not reset again")
	}
	if want := clock.Now().Add(10 * time.Hour); !resetAt.Equal(want) {
		t.Errorf("reset deadline = %v, want %v", resetAt, want)
	}
}

// Quota window elapsing turns an exhausted user back into a free-slot user.
func TestQuotaResetRestoresFreeSlots(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(104)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	if out := e.RequestDownload(user, "ref", "ad1"); out.Decision != ShowAdPrompt {
		t.Fatalf("exhausted decision = %s, want show_ad_prompt", out.Decision)
	}

	clock.Advance(10*time.Hour + time.Second)

	if out := e.RequestDownload(user, "ref", "ad1"); out.Decision != UseFreeSlot {
		t.Fatalf("post-reset decision = %s, want use_free_slot", out.Decision)
	}
}

// Full verification walk: click, poll early, poll late, complete, token covers
// later downloads without consuming free slots.
func TestVerificationFlowGrantsToken(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(105)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	out := e.RequestDownload(user, "CSE/6/OS/1", "ad1")
	if out.Decision != ShowAdPrompt {
		t.Fatalf("decision = %s, want show_ad_prompt", out.Decision)
	}
	token := out.SessionToken

	// Polling before the click instructs the user to click first.
	if got := e.CheckVerification(token); got.Decision != AdNotClicked {
		t.Fatalf("pre-click poll = %s, want ad_not_clicked", got.Decision)
	}

	if err := e.MarkAdClicked(token); err != nil {
		t.Fatalf("mark clicked: %v", err)
	}

	clock.Advance(10 * time.Second)
	got := e.CheckVerification(token)
	if got.Decision != StillWaiting {
		t.Fatalf("poll at 10s = %s, want still_waiting", got.Decision)
	}
	if got.RemainingSeconds != 10 {
		t.Errorf("remaining = %d, want 10", got.RemainingSeconds)
	}

	clock.Advance(11 * time.Second)
	got = e.CheckVerification(token)
	if got.Decision != Delivered {
		t.Fatalf("poll at 21s = %s, want delivered", got.Decision)
	}
	if got.MaterialRef != "CSE/6/OS/1" {
		t.Errorf("material ref = %q", got.MaterialRef)
	}
	if !got.ViaToken {
		t.Error("completion delivery should be token-backed")
	}

	// Token now covers downloads without touching the (exhausted) quota.
	next := e.RequestDownload(user, "ECE/2/Signals/0", "ad1")
	if next.Decision != Delivered || !next.ViaToken {
		t.Fatalf("tokened request = %s viaToken=%v, want delivered via token", next.Decision, next.ViaToken)
	}
	st := e.Status(user)
	if st.FreeUsed != 2 {
		t.Errorf("free_used = %d, token path must not consume slots", st.FreeUsed)
	}
	if st.TokensEarned != 1 {
		t.Errorf("tokens_earned = %d, want 1", st.TokensEarned)
	}
}

// Re-click does not restart the timer.
func TestAdReclickKeepsOriginalTimer(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(106)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	token := e.RequestDownload(user, "ref", "ad1").SessionToken

	if err := e.MarkAdClicked(token); err != nil {
		t.Fatalf("first click: %v", err)
	}
	clock.Advance(15 * time.Second)
	if err := e.MarkAdClicked(token); err != nil {
		t.Fatalf("re-click: %v", err)
	}
	clock.Advance(6 * time.Second)

	// 21s since the first click: ready despite the 15s re-click.
	if got := e.CheckVerification(token); got.Decision != Delivered {
		t.Fatalf("poll = %s, want delivered (re-click must not restart timer)", got.Decision)
	}
}

// Ready never reverts to Waiting, and completion is idempotent: the second
// poll returns the same material without granting a second token.
func TestCompletionIdempotent(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(107)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	token := e.RequestDownload(user, "CSE/4/DBMS/2", "ad1").SessionToken
	_ = e.MarkAdClicked(token)
	clock.Advance(25 * time.Second)

	first := e.CheckVerification(token)
	if first.Decision != Delivered {
		t.Fatalf("first poll = %s", first.Decision)
	}
	firstExpiry := first.TokenExpiresAt

	clock.Advance(time.Minute)
	second := e.CheckVerification(token)
	if second.Decision != Delivered {
		t.Fatalf("re-poll = %s, ready must not revert", second.Decision)
	}
	if second.MaterialRef != first.MaterialRef {
		t.Errorf("re-poll material = %q, want %q", second.MaterialRef, first.MaterialRef)
	}
	if !second.TokenExpiresAt.Equal(firstExpiry) {
		t.Error("re-poll must not re-grant or extend the token")
	}
	if st := e.Status(user); st.TokensEarned != 1 {
		t.Errorf("tokens_earned = %d, want 1", st.TokensEarned)
	}
}

// Token valid for exactly [T, T+duration).
func TestTokenExpiryBoundary(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(108)

	e.mu.Lock()
	e.tokens.grant(user, clock.Now())
	e.mu.Unlock()

	clock.Advance(10*time.Hour - time.Nanosecond)
	if out := e.RequestDownload(user, "ref", "ad1"); !out.ViaToken {
		t.Fatal("token should still be valid just before expiry")
	}

	clock.Advance(time.Nanosecond)
	out := e.RequestDownload(user, "ref", "ad1")
	if out.ViaToken {
		t.Fatal("token must be invalid exactly at T+duration")
	}
}

func TestInvalidSessionToken(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.MarkAdClicked("verify_1_2_deadbeef"); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if out := e.CheckVerification("verify_1_2_deadbeef"); out.Decision != VerificationExpired {
		t.Fatalf("decision = %s, want verification_expired", out.Decision)
	}
}

// A completed session re-polled after the granted token has lapsed still
// delivers, but must not surface the dead token's expiry.
func TestRepollAfterTokenExpiryOmitsStaleExpiry(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(7_000_000_001)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	token := e.RequestDownload(user, "ref", "ad1").SessionToken
	_ = e.MarkAdClicked(token)
	clock.Advance(21 * time.Second)
	if out := e.CheckVerification(token); !out.TokenGranted {
		t.Fatalf("first poll = %s granted=%v, want a fresh grant", out.Decision, out.TokenGranted)
	}

	clock.Advance(11 * time.Hour)
	out := e.CheckVerification(token)
	if out.Decision != Delivered || out.TokenGranted {
		t.Fatalf("re-poll = %s granted=%v, want delivered without a grant", out.Decision, out.TokenGranted)
	}
	if !out.TokenExpiresAt.IsZero() {
		t.Errorf("re-poll leaked expiry %v from the lapsed token", out.TokenExpiresAt)
	}
}

// Sweeping removes aged sessions regardless of completion state.
func TestSweepExpiredRemovesAgedSessions(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(109)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	token := e.RequestDownload(user, "ref", "ad1").SessionToken
	_ = e.MarkAdClicked(token)

	clock.Advance(time.Hour + time.Minute)
	if swept := e.SweepExpired(); swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	if out := e.CheckVerification(token); out.Decision != VerificationExpired {
		t.Fatalf("post-sweep poll = %s, want verification_expired", out.Decision)
	}
}

// Disabled ad verification short-circuits every request to Delivered.
func TestDisabledVerificationDeliversImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.AdVerificationEnabled = false
	clock := newFakeClock()
	e := NewEngine(cfg, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		if out := e.RequestDownload(42, "ref", ""); out.Decision != Delivered {
			t.Fatalf("request %d = %s, want delivered", i+1, out.Decision)
		}
	}
	if st := e.Status(42); st.TotalDownloads != 5 {
		t.Errorf("total_downloads = %d, want 5", st.TotalDownloads)
	}
}

func TestSessionTokenShape(t *testing.T) {
	clock := newFakeClock()
	tok := newSessionToken(77, clock.Now())
	if !strings.HasPrefix(tok, "verify_77_") {
		t.Errorf("token %q should embed the user id", tok)
	}
	other := newSessionToken(77, clock.Now())
	if tok == other {
		t.Error("tokens for the same user/instant must differ")
	}

	// Telegram caps callback data at 64 bytes; the token must leave room
	// for the handler key framing and an ad id even for wide user ids.
	wide := newSessionToken(7_000_000_001, clock.Now())
	if len(wide) > 48 {
		t.Errorf("token %q is %d bytes, too long for callback data", wide, len(wide))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(110)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.mu.Lock()
	e.tokens.grant(user, clock.Now())
	e.mu.Unlock()

	data := e.Snapshot()
	if len(data) == 0 {
		t.Fatal("empty snapshot")
	}

	restored := NewEngine(testConfig(), WithClock(clock.Now))
	restored.RestoreSnapshot(data)

	st := restored.Status(user)
	if st.FreeUsed != 1 {
		t.Errorf("restored free_used = %d, want 1", st.FreeUsed)
	}
	if !st.TokenActive {
		t.Error("restored token should be active")
	}
}

func TestRestoreCorruptSnapshotFallsBackEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RestoreSnapshot([]byte(`{"users": not-json`))

	if st := e.Status(1); st.FreeUsed != 0 || st.TotalDownloads != 0 {
		t.Errorf("corrupt restore must leave empty defaults, got %+v", st)
	}
}

// The persist hook receives a snapshot after each mutation and never blocks
// the decision (the hook here records synchronously, which is fine).
func TestPersistHookFiresOnMutation(t *testing.T) {
	clock := newFakeClock()
	var snapshots [][]byte
	var mu sync.Mutex
	e := NewEngine(testConfig(),
		WithClock(clock.Now),
		WithPersist(func(data []byte) {
			mu.Lock()
			snapshots = append(snapshots, data)
			mu.Unlock()
		}),
	)

	e.RequestDownload(9, "ref", "ad1")
	e.ConfirmFreeSlot(9, "ref", "ad1")

	mu.Lock()
	n := len(snapshots)
	mu.Unlock()
	if n < 2 {
		t.Fatalf("persist hook fired %d times, want at least 2", n)
	}
}

// TokenGranted marks only the completing poll; re-polls stay false so
// callers can count conversions exactly once.
func TestTokenGrantedFlagSingleFire(t *testing.T) {
	e, clock := newTestEngine(t)
	const user = int64(130)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	out := e.RequestDownload(user, "ref", "ad1")
	if err := e.MarkAdClicked(out.SessionToken); err != nil {
		t.Fatalf("mark clicked: %v", err)
	}
	clock.Advance(21 * time.Second)

	first := e.CheckVerification(out.SessionToken)
	if first.Decision != Delivered || !first.TokenGranted {
		t.Fatalf("first poll = %s granted=%v, want delivered granted", first.Decision, first.TokenGranted)
	}
	second := e.CheckVerification(out.SessionToken)
	if second.Decision != Delivered || second.TokenGranted {
		t.Fatalf("re-poll = %s granted=%v, want delivered not granted", second.Decision, second.TokenGranted)
	}
}

func TestSetEnabledTogglesGating(t *testing.T) {
	e, _ := newTestEngine(t)
	const user = int64(131)

	if !e.Enabled() {
		t.Fatal("engine should start enabled")
	}
	e.SetEnabled(false)
	for i := 0; i < 5; i++ {
		if out := e.RequestDownload(user, "ref", "ad1"); out.Decision != Delivered {
			t.Fatalf("disabled request %d = %s, want delivered", i, out.Decision)
		}
	}
	e.SetEnabled(true)
	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	if out := e.RequestDownload(user, "ref", "ad1"); out.Decision != ShowAdPrompt {
		t.Fatalf("re-enabled request = %s, want show_ad_prompt", out.Decision)
	}
}

func TestResetUserClearsAllState(t *testing.T) {
	e, _ := newTestEngine(t)
	const user = int64(132)

	e.ConfirmFreeSlot(user, "ref", "ad1")
	e.ConfirmFreeSlot(user, "ref", "ad1")
	out := e.RequestDownload(user, "ref", "ad1")

	e.ResetUser(user)

	st := e.Status(user)
	if st.FreeUsed != 0 || st.TotalDownloads != 0 || st.TokenActive {
		t.Fatalf("post-reset status = %+v, want empty", st)
	}
	if err := e.MarkAdClicked(out.SessionToken); err == nil {
		t.Fatal("session should be gone after reset")
	}
}
