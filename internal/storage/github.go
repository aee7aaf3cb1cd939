package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	coreconfig "github.com/quicknotes/studybot/core/config"
	"github.com/quicknotes/studybot/core/logger"
)

const githubAPIBase = "https://api.github.com"

// GitHubStore persists documents through the GitHub contents API.
// Each document is a file at the repository root on the configured branch.
type GitHubStore struct {
	token   string
	repo    string
	branch  string
	baseURL string
	client  *http.Client
}

// NewGitHubStore builds a store for the configured repository.
func NewGitHubStore(cfg coreconfig.GitHubConfig) *GitHubStore {
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHubStore{
		token:   cfg.Token,
		repo:    cfg.Repo,
		branch:  branch,
		baseURL: githubAPIBase,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Backend identifies the backend kind for logging.
func (s *GitHubStore) Backend() string { return "github" }

type contentsResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

func (s *GitHubStore) contentsURL(name string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", s.baseURL, s.repo, name)
}

func (s *GitHubStore) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client.Do(req)
}

// Load fetches and decodes a document from the repository.
func (s *GitHubStore) Load(ctx context.Context, name string) ([]byte, error) {
	url := s.contentsURL(name) + "?ref=" + s.branch
	resp, err := s.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github load %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("github load %s: status %s", name, resp.Status)
	}

	var cr contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("github load %s: decode: %w", name, err)
	}
	data, err := base64.StdEncoding.DecodeString(removeNewlines(cr.Content))
	if err != nil {
		return nil, fmt.Errorf("github load %s: base64: %w", name, err)
	}
	return data, nil
}

// Save uploads a document, fetching the current blob SHA first so the
// contents API accepts the update as a new commit on the branch.
func (s *GitHubStore) Save(ctx context.Context, name string, data []byte) error {
	sha, err := s.currentSHA(ctx, name)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"message": fmt.Sprintf("Bot update: %s (%d bytes)", name, len(data)),
		"content": base64.StdEncoding.EncodeToString(data),
		"branch":  s.branch,
	}
	if sha != "" {
		payload["sha"] = sha
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("github save %s: marshal: %w", name, err)
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPut, s.contentsURL(name), body)
	if err != nil {
		return fmt.Errorf("github save %s: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("github save %s: status %s", name, resp.Status)
	}
	logger.Store.Debug("document saved",
		slog.String("event", "store.save"),
		slog.String("backend", "github"),
		slog.String("document", name),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

func (s *GitHubStore) currentSHA(ctx context.Context, name string) (string, error) {
	resp, err := s.do(ctx, http.MethodGet, s.contentsURL(name)+"?ref="+s.branch, nil)
	if err != nil {
		return "", fmt.Errorf("github sha %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var cr contentsResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return "", fmt.Errorf("github sha %s: decode: %w", name, err)
		}
		return cr.SHA, nil
	case http.StatusNotFound:
		return "", nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("github sha %s: status %s", name, resp.Status)
	}
}

// The contents API wraps base64 payloads at 60 columns.
func removeNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
