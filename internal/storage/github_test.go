package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	coreconfig "github.com/quicknotes/studybot/core/config"
)

func testGitHubStore(t *testing.T, handler http.Handler) (*GitHubStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewGitHubStore(coreconfig.GitHubConfig{
		Token:  "t0ken",
		Repo:   "acme/notes-data",
		Branch: "main",
	})
	s.baseURL = srv.URL
	s.client = srv.Client()
	return s, srv
}

func TestGitHubStoreLoad(t *testing.T) {
	body := []byte(`{"CSE":{}}`)
	// The contents API wraps base64 at 60 columns; emulate with a newline.
	encoded := base64.StdEncoding.EncodeToString(body)
	wrapped := encoded[:4] + "\n" + encoded[4:]

	s, _ := testGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/notes-data/contents/study_materials.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token t0ken" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Errorf("ref = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"content": wrapped,
			"sha":     "abc123",
		})
	}))

	data, err := s.Load(context.Background(), "study_materials.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != string(body) {
		t.Errorf("loaded %q, want %q", data, body)
	}
}

func TestGitHubStoreLoadNotFound(t *testing.T) {
	s, _ := testGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := s.Load(context.Background(), "missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGitHubStoreSaveIncludesSHA(t *testing.T) {
	var gotPayload map[string]any
	s, _ := testGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]string{"content": "", "sha": "oldsha"})
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
				t.Fatalf("decode put: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}
	}))

	if err := s.Save(context.Background(), "user_stats.json", []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if gotPayload["sha"] != "oldsha" {
		t.Errorf("sha = %v, want oldsha", gotPayload["sha"])
	}
	if gotPayload["branch"] != "main" {
		t.Errorf("branch = %v, want main", gotPayload["branch"])
	}
	content, _ := gotPayload["content"].(string)
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil || string(decoded) != `{}` {
		t.Errorf("content = %q (decoded %q, err %v)", content, decoded, err)
	}
}

func TestGitHubStoreSaveNewFileOmitsSHA(t *testing.T) {
	var gotPayload map[string]any
	s, _ := testGitHubStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&gotPayload)
			w.WriteHeader(http.StatusCreated)
		}
	}))

	if err := s.Save(context.Background(), "fresh.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := gotPayload["sha"]; ok {
		t.Errorf("payload should omit sha for a new file, got %v", gotPayload["sha"])
	}
}
