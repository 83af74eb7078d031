package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UnknownAuthor is reported when GitHub returns a pull request without a user.
const UnknownAuthor = "Unknown"

// RepositoryRef identifies a GitHub repository
type RepositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String returns the "owner/name" form
func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepositoryRef parses "owner/name". Both halves must be present.
func ParseRepositoryRef(s string) (RepositoryRef, error) {
	s = strings.TrimSpace(s)
	owner, name, ok := strings.Cut(s, "/")
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepositoryRef{}, fmt.Errorf("Invalid repo format: %s. Expected format: owner/repo", s)
	}
	return RepositoryRef{Owner: owner, Name: name}, nil
}

// MergedPullRequest is a pull request merged inside the notification window
type MergedPullRequest struct {
	Title           string    `json:"title"`
	Number          int       `json:"number"`
	Author          string    `json:"author"`
	AuthorAvatarURL string    `json:"authorAvatar"`
	URL             string    `json:"url"`
	MergedAt        time.Time `json:"mergedAt"`
	Repository      string    `json:"repository"`
}

// RepositoryGroup holds the merged PRs of one repository
type RepositoryGroup struct {
	Repository   string
	PullRequests []MergedPullRequest
}

// GroupByRepository groups PRs by repository, keeping the order in which
// repositories first appear and the order of PRs inside each group.
func GroupByRepository(prs []MergedPullRequest) []RepositoryGroup {
	var groups []RepositoryGroup
	index := make(map[string]int)
	for _, pr := range prs {
		i, ok := index[pr.Repository]
		if !ok {
			i = len(groups)
			index[pr.Repository] = i
			groups = append(groups, RepositoryGroup{Repository: pr.Repository})
		}
		groups[i].PullRequests = append(groups[i].PullRequests, pr)
	}
	return groups
}

// UniqueAuthors counts distinct authors
func UniqueAuthors(prs []MergedPullRequest) int {
	seen := make(map[string]struct{}, len(prs))
	for _, pr := range prs {
		seen[pr.Author] = struct{}{}
	}
	return len(seen)
}

// FileNotificationStateStore handles notification state persistence
type FileNotificationStateStore struct {
	Path string
}

// GetLastNotificationTime retrieves the last notification time from file
func (s *FileNotificationStateStore) GetLastNotificationTime() (time.Time, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("error reading state file: %w", err)
	}

	var timestamp time.Time
	if err := json.Unmarshal(data, &timestamp); err != nil {
		return time.Time{}, fmt.Errorf("error parsing timestamp: %w", err)
	}

	return timestamp, nil
}

// SetLastNotificationTime saves t as the last notification time
func (s *FileNotificationStateStore) SetLastNotificationTime(t time.Time) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("error marshaling timestamp: %w", err)
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating state directory: %w", err)
		}
	}

	if err := os.WriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("error writing timestamp file: %w", err)
	}

	return nil
}
