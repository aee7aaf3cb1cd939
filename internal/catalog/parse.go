package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// UploadDetails is the validated result of parsing the comma-separated
// metadata line a team member sends before attaching a file:
//
//	Branch, Semester, Subject, Title, Keyword1, Keyword2, ...
type UploadDetails struct {
	Branch   string
	Semester string
	Subject  string
	Title    string
	Keywords []string
}

// ParseUploadDetails validates the metadata line against the configured
// branch list and semester range. Every failure names the offending
// field so the bot can echo it back to the uploader.
func ParseUploadDetails(text string, branches []string, maxSemester int) (UploadDetails, error) {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 5 {
		return UploadDetails{}, fmt.Errorf("expected at least 5 comma-separated fields (branch, semester, subject, title, keywords), got %d", len(parts))
	}

	branch := parts[0]
	if !containsFold(branches, branch) {
		return UploadDetails{}, fmt.Errorf("unknown branch %q, expected one of %s", branch, strings.Join(branches, "/"))
	}
	branch = canonicalFold(branches, branch)

	sem, err := strconv.Atoi(parts[1])
	if err != nil || sem < 1 || sem > maxSemester {
		return UploadDetails{}, fmt.Errorf("semester %q must be a number between 1 and %d", parts[1], maxSemester)
	}

	subject := parts[2]
	if subject == "" {
		return UploadDetails{}, fmt.Errorf("subject must not be empty")
	}
	// Colons separate the fields of a material reference, so a subject
	// containing one would produce refs that can never be parsed back.
	if strings.Contains(subject, ":") {
		return UploadDetails{}, fmt.Errorf("subject must not contain %q", ":")
	}
	title := parts[3]
	if title == "" {
		return UploadDetails{}, fmt.Errorf("title must not be empty")
	}

	keywords := make([]string, 0, len(parts)-4)
	for _, kw := range parts[4:] {
		if kw == "" {
			continue
		}
		keywords = append(keywords, strings.ToLower(kw))
	}
	if len(keywords) == 0 {
		return UploadDetails{}, fmt.Errorf("at least one keyword is required")
	}

	return UploadDetails{
		Branch:   branch,
		Semester: strconv.Itoa(sem),
		Subject:  subject,
		Title:    title,
		Keywords: keywords,
	}, nil
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// canonicalFold maps a case-insensitive match back to the configured
// spelling so the tree never grows duplicate branch nodes.
func canonicalFold(list []string, s string) string {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return item
		}
	}
	return s
}
