package catalog

import (
	"sort"
	"strings"
)

// SearchResult pairs a matched material with its location in the tree.
type SearchResult struct {
	Ref      Ref
	Material Material
}

// Search walks the whole tree for materials whose title, keywords, or
// subject contain the query, case-insensitively. Results stop at limit
// (0 means unlimited). Title matches are checked first per material,
// then keywords, then the subject name, so a material matches at most once.
func (c *Catalog) Search(query string, limit int) []SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []SearchResult
	for _, branch := range sortedKeysLocked(c.tree) {
		sems := c.tree[branch]
		for _, sem := range sortedKeysLocked(sems) {
			subjects := sems[sem]
			for _, subject := range sortedKeysLocked(subjects) {
				subjectMatch := strings.Contains(strings.ToLower(subject), query)
				for i, m := range subjects[subject].Materials {
					if !matchMaterial(m, subjectMatch, query) {
						continue
					}
					out = append(out, SearchResult{
						Ref:      Ref{Branch: branch, Semester: sem, Subject: subject, Index: i},
						Material: m,
					})
					if limit > 0 && len(out) >= limit {
						return out
					}
				}
			}
		}
	}
	return out
}

func matchMaterial(m Material, subjectMatch bool, query string) bool {
	if strings.Contains(strings.ToLower(m.Title), query) {
		return true
	}
	for _, kw := range m.Keywords {
		if strings.Contains(strings.ToLower(kw), query) {
			return true
		}
	}
	return subjectMatch
}

func sortedKeysLocked[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
