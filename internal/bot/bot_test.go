package bot

import (
	"strings"
	"testing"
	"time"

	coreconfig "github.com/quicknotes/studybot/core/config"
	"github.com/quicknotes/studybot/internal/access"

	tele "gopkg.in/telebot.v4"
)

func testApp() *App {
	cfg := &coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "123:abc"}}
	if err := coreconfig.Normalize(cfg); err != nil {
		panic(err)
	}
	return &App{cfg: cfg}
}

func TestAdURLPrefersTrackingURL(t *testing.T) {
	a := testApp()
	ad := coreconfig.Ad{
		ID:          "ad_001",
		URL:         "https://example.com/plain",
		TrackingURL: "https://example.com/t?uid={user_id}",
	}
	got := a.adURL(ad, 42, "verify_42_1_abc")
	want := "https://example.com/t?uid=42&token=verify_42_1_abc"
	if got != want {
		t.Fatalf("adURL = %q, want %q", got, want)
	}
}

func TestAdURLWithoutQueryUsesQuestionMark(t *testing.T) {
	a := testApp()
	ad := coreconfig.Ad{ID: "ad_001", TrackingURL: "https://example.com/t"}
	got := a.adURL(ad, 7, "tok")
	if got != "https://example.com/t?token=tok" {
		t.Fatalf("adURL = %q", got)
	}
}

func TestAdURLFallsBackToPlainURL(t *testing.T) {
	a := testApp()
	ad := coreconfig.Ad{ID: "ad_001", URL: "https://example.com/plain"}
	if got := a.adURL(ad, 7, "tok"); got != "https://example.com/plain" {
		t.Fatalf("adURL = %q", got)
	}
}

// Telegram rejects inline buttons whose callback data exceeds 64 bytes,
// and telebot frames the payload as "\f<unique>|<data>". The verify
// buttons must stay under the cap even for wide real-world user ids.
func TestAdCallbackDataFitsTelegramLimit(t *testing.T) {
	e := access.NewEngine(coreconfig.AccessConfig{
		AdVerificationEnabled: true,
		FreeResetHours:        10,
		WaitTimeSeconds:       20,
		TokenDurationHours:    10,
		SessionTTLSeconds:     3600,
	})

	out := e.RequestDownload(7_000_000_001, "CSE:4:Data Structures:0", "ad_001")
	if out.Decision != access.ShowAdPrompt {
		t.Fatalf("decision = %s, want show_ad_prompt", out.Decision)
	}

	data := "\f" + cbAdClick + "|" + out.SessionToken + refSep + "ad_001"
	if len(data) > 64 {
		t.Fatalf("ad_click callback data is %d bytes (%q), limit is 64", len(data), data)
	}
	data = "\f" + cbVerify + "|" + out.SessionToken + refSep + "ad_001"
	if len(data) > 64 {
		t.Fatalf("verify callback data is %d bytes (%q), limit is 64", len(data), data)
	}
}

func TestValidateUploadFile(t *testing.T) {
	a := testApp()

	ok := &tele.Document{File: tele.File{FileSize: 1024}, FileName: "notes.PDF"}
	if err := a.validateUploadFile(ok); err != nil {
		t.Fatalf("valid file rejected: %v", err)
	}

	tooBig := &tele.Document{File: tele.File{FileSize: a.cfg.Catalog.MaxUploadBytes + 1}, FileName: "notes.pdf"}
	if err := a.validateUploadFile(tooBig); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("oversize file accepted: %v", err)
	}

	badExt := &tele.Document{File: tele.File{FileSize: 10}, FileName: "malware.exe"}
	if err := a.validateUploadFile(badExt); err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Fatalf("disallowed extension accepted: %v", err)
	}

	// Files without a name or extension cannot be checked and pass through.
	anon := &tele.Document{File: tele.File{FileSize: 10}}
	if err := a.validateUploadFile(anon); err != nil {
		t.Fatalf("nameless file rejected: %v", err)
	}
}

func TestPickAdWithoutAdsConfigured(t *testing.T) {
	a := testApp()
	if ad := a.pickAd(); ad.ID != "none" {
		t.Fatalf("pickAd = %+v", ad)
	}
}

func TestArgUserID(t *testing.T) {
	if id, err := argUserID("/resetuser 12345"); err != nil || id != 12345 {
		t.Fatalf("argUserID = %d, %v", id, err)
	}
	if _, err := argUserID("/resetuser"); err == nil {
		t.Fatal("missing arg accepted")
	}
	if _, err := argUserID("/resetuser bob"); err == nil {
		t.Fatal("non-numeric arg accepted")
	}
}

func TestHumanDuration(t *testing.T) {
	cases := map[time.Duration]string{
		95 * time.Minute: "1h 35m",
		10 * time.Minute: "10m",
		-time.Minute:     "0m",
	}
	for d, want := range cases {
		if got := humanDuration(d); got != want {
			t.Errorf("humanDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
