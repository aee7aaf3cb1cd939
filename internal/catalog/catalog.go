package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/quicknotes/studybot/core/logger"
)

// DocumentName is the store document holding the material tree.
const DocumentName = "study_materials.json"

// Material is one downloadable study file.
type Material struct {
	Title      string   `json:"title"`
	FileID     string   `json:"file_id"`
	Type       string   `json:"type"`
	Keywords   []string `json:"keywords"`
	UploadedBy string   `json:"uploaded_by,omitempty"`
	UploadedAt string   `json:"uploaded_at,omitempty"`
}

// Ref addresses one material in the tree: branch/semester/subject/index.
// The string form is used in callback payloads and gating sessions.
type Ref struct {
	Branch   string
	Semester string
	Subject  string
	Index    int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s:%s:%d", r.Branch, r.Semester, r.Subject, r.Index)
}

// ParseRef decodes the string form produced by Ref.String.
func ParseRef(s string) (Ref, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Ref{}, fmt.Errorf("catalog: malformed ref %q", s)
	}
	idx, err := strconv.Atoi(parts[3])
	if err != nil || idx < 0 {
		return Ref{}, fmt.Errorf("catalog: malformed ref index %q", s)
	}
	return Ref{Branch: parts[0], Semester: parts[1], Subject: parts[2], Index: idx}, nil
}

type subjectEntry struct {
	Materials []Material `json:"materials"`
}

// tree is Branch → Semester → Subject → materials.
type tree map[string]map[string]map[string]*subjectEntry

// Catalog owns the typed material tree. A RWMutex guards it; browse and
// search paths take read locks, uploads take the write lock.
type Catalog struct {
	mu      sync.RWMutex
	tree    tree
	persist func([]byte)
}

// Option customises catalog construction.
type Option func(*Catalog)

// WithPersist wires the fire-and-forget snapshot sink used after uploads.
func WithPersist(fn func([]byte)) Option {
	return func(c *Catalog) { c.persist = fn }
}

// New returns an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{tree: make(tree)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Branches lists branches that have at least one material, sorted.
func (c *Catalog) Branches() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tree))
	for b := range c.tree {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Semesters lists semesters under a branch in numeric order.
func (c *Catalog) Semesters(branch string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sems, ok := c.tree[branch]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sems))
	for s := range sems {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i])
		b, _ := strconv.Atoi(out[j])
		if a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

// Subjects lists subjects under branch/semester, sorted.
func (c *Catalog) Subjects(branch, semester string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subjects, ok := c.tree[branch][semester]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(subjects))
	for s := range subjects {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Materials returns the material list for a subject.
func (c *Catalog) Materials(branch, semester, subject string) []Material {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.tree[branch][semester][subject]
	if !ok {
		return nil
	}
	out := make([]Material, len(entry.Materials))
	copy(out, entry.Materials)
	return out
}

// Get resolves a ref to its material.
func (c *Catalog) Get(ref Ref) (Material, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.tree[ref.Branch][ref.Semester][ref.Subject]
	if !ok || ref.Index < 0 || ref.Index >= len(entry.Materials) {
		return Material{}, false
	}
	return entry.Materials[ref.Index], true
}

// Add inserts a material, creating intermediate nodes as needed, and
// returns its ref. The snapshot is handed to the persistence sink.
func (c *Catalog) Add(branch, semester, subject string, m Material) Ref {
	if m.UploadedAt == "" {
		m.UploadedAt = time.Now().UTC().Format(time.RFC3339)
	}

	c.mu.Lock()
	if c.tree[branch] == nil {
		c.tree[branch] = make(map[string]map[string]*subjectEntry)
	}
	if c.tree[branch][semester] == nil {
		c.tree[branch][semester] = make(map[string]*subjectEntry)
	}
	entry := c.tree[branch][semester][subject]
	if entry == nil {
		entry = &subjectEntry{}
		c.tree[branch][semester][subject] = entry
	}
	entry.Materials = append(entry.Materials, m)
	ref := Ref{Branch: branch, Semester: semester, Subject: subject, Index: len(entry.Materials) - 1}
	var snapshot []byte
	if c.persist != nil {
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	logger.Catalog.Info("material added",
		slog.String("event", "catalog.add"),
		slog.String("branch", branch),
		slog.String("semester", semester),
		slog.String("subject", subject),
		slog.String("material", m.Title),
	)
	if c.persist != nil && snapshot != nil {
		c.persist(snapshot)
	}
	return ref
}

// Count returns total branch and material counts for the stats display.
func (c *Catalog) Count() (branches, materials int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	branches = len(c.tree)
	for _, sems := range c.tree {
		for _, subjects := range sems {
			for _, entry := range subjects {
				materials += len(entry.Materials)
			}
		}
	}
	return branches, materials
}

func (c *Catalog) snapshotLocked() []byte {
	data, err := json.Marshal(c.tree)
	if err != nil {
		logger.Catalog.Error("snapshot marshal failed",
			slog.String("event", "catalog.snapshot"),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return data
}

// Snapshot marshals the tree in the document-store layout.
func (c *Catalog) Snapshot() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Restore loads a persisted tree. A corrupt document leaves the catalog
// empty rather than aborting startup.
func (c *Catalog) Restore(data []byte) {
	if len(data) == 0 {
		return
	}
	var t tree
	if err := json.Unmarshal(data, &t); err != nil {
		logger.Catalog.Warn("corrupt catalog document, starting empty",
			slog.String("event", "catalog.restore"),
			slog.String("err", err.Error()),
		)
		return
	}
	c.mu.Lock()
	c.tree = t
	c.mu.Unlock()

	branches, materials := c.Count()
	logger.Catalog.Info("catalog restored",
		slog.String("event", "catalog.restore"),
		slog.Int("branches", branches),
		slog.Int("materials", materials),
	)
}
