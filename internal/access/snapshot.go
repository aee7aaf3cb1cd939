package access

import (
	"encoding/json"
	"strconv"

	"log/slog"

	"github.com/quicknotes/studybot/core/logger"
)

// DocumentName is the store document holding the persisted gating state.
const DocumentName = "ad_system.json"

// persistedState serializes the quota and token maps as nested maps keyed
// by stringified user-id. Verification sessions are ephemeral by design
// and never persisted; abandoned flows age out in memory.
type persistedState struct {
	Users  map[string]*UserQuota  `json:"users"`
	Tokens map[string]AccessToken `json:"tokens"`
}

func (e *Engine) snapshotLocked() []byte {
	state := persistedState{
		Users:  make(map[string]*UserQuota, len(e.quotas.users)),
		Tokens: make(map[string]AccessToken, len(e.tokens.tokens)),
	}
	for id, q := range e.quotas.users {
		cp := *q
		state.Users[strconv.FormatInt(id, 10)] = &cp
	}
	for id, t := range e.tokens.tokens {
		state.Tokens[strconv.FormatInt(id, 10)] = t
	}
	data, err := json.Marshal(state)
	if err != nil {
		logger.Gate.Error("snapshot marshal failed",
			slog.String("event", "gate.snapshot"),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return data
}

// Snapshot marshals the current gating state for persistence.
func (e *Engine) Snapshot() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// RestoreSnapshot loads previously persisted state. A corrupt document
// falls back to the empty default stores rather than aborting startup.
func (e *Engine) RestoreSnapshot(data []byte) {
	if len(data) == 0 {
		return
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Gate.Warn("corrupt gating snapshot, starting empty",
			slog.String("event", "gate.restore"),
			slog.String("err", err.Error()),
		)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, q := range state.Users {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || q == nil {
			continue
		}
		cp := *q
		e.quotas.users[id] = &cp
	}
	for key, t := range state.Tokens {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		e.tokens.tokens[id] = t
	}

	logger.Gate.Info("gating state restored",
		slog.String("event", "gate.restore"),
		slog.Int("users", len(e.quotas.users)),
		slog.Int("tokens", len(e.tokens.tokens)),
	)
}
