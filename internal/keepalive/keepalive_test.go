package keepalive

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	coreconfig "github.com/quicknotes/studybot/core/config"
)

func testKeeper() *Keeper {
	return New(coreconfig.KeepaliveConfig{
		Enabled:             true,
		Listen:              ":0",
		PingIntervalSeconds: 300,
		IdleLimitSeconds:    900,
	})
}

func TestHandlerRoutes(t *testing.T) {
	k := testKeeper()
	srv := httptest.NewServer(k.Handler())
	defer srv.Close()

	for path, want := range map[string]string{
		"/":     "Bot is alive!",
		"/ping": "Ping OK",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || string(body) != want {
			t.Fatalf("GET %s = %d %q, want 200 %q", path, resp.StatusCode, body, want)
		}
	}
}

func TestRootHitCountsAsActivity(t *testing.T) {
	k := testKeeper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	k.now = func() time.Time { return now }

	k.Touch()
	now = now.Add(20 * time.Minute)
	if idle := k.idleFor(); idle != 20*time.Minute {
		t.Fatalf("idleFor = %v", idle)
	}

	srv := httptest.NewServer(k.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if idle := k.idleFor(); idle != 0 {
		t.Fatalf("root hit did not reset idle timer: %v", idle)
	}
}

func TestPingEndpointDoesNotResetIdle(t *testing.T) {
	k := testKeeper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	k.now = func() time.Time { return now }
	k.Touch()
	now = now.Add(10 * time.Minute)

	srv := httptest.NewServer(k.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if idle := k.idleFor(); idle != 10*time.Minute {
		t.Fatalf("manual ping reset idle timer: %v", idle)
	}
}
