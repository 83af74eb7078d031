package github

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"merge-notifier/pkg/models"
)

const (
	DefaultHoursBack  = 24
	DefaultMaxPerRepo = 1000
)

// RepoSummary reports how one repository was fetched
type RepoSummary struct {
	Repository string
	Pages      int
	Scanned    int
	Merged     int
	EarlyStop  bool // an older-than-cutoff page ended pagination
	Capped     bool // the per-repository safety limit ended pagination
	Err        error
}

// Result of a fetch across all repositories
type Result struct {
	Cutoff       time.Time
	PullRequests []models.MergedPullRequest
	Repositories []RepoSummary
}

// Fetcher collects pull requests merged inside a trailing time window
type Fetcher struct {
	lister     PageLister
	now        func() time.Time
	maxPerRepo int
	workers    int
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithClock overrides the time source used to compute the cutoff
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithMaxPerRepo sets the safety cap on PRs scanned per repository
func WithMaxPerRepo(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxPerRepo = n
		}
	}
}

// WithWorkers fetches up to n repositories concurrently
func WithWorkers(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

// NewFetcher creates a fetcher reading pages from lister
func NewFetcher(lister PageLister, opts ...Option) *Fetcher {
	f := &Fetcher{
		lister:     lister,
		now:        time.Now,
		maxPerRepo: DefaultMaxPerRepo,
		workers:    1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchMerged returns the PRs merged in the last hoursBack hours across repos,
// most recently merged first.
func (f *Fetcher) FetchMerged(ctx context.Context, repos []models.RepositoryRef, hoursBack int) []models.MergedPullRequest {
	return f.Fetch(ctx, repos, hoursBack).PullRequests
}

// Fetch is FetchMerged with a per-repository report. A repository that fails
// is logged and skipped; it never fails the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, repos []models.RepositoryRef, hoursBack int) *Result {
	if hoursBack <= 0 {
		hoursBack = DefaultHoursBack
	}
	cutoff := f.now().Add(-time.Duration(hoursBack) * time.Hour)

	result := &Result{
		Cutoff:       cutoff,
		PullRequests: []models.MergedPullRequest{},
		Repositories: make([]RepoSummary, len(repos)),
	}
	perRepo := make([][]models.MergedPullRequest, len(repos))

	fetch := func(i int) {
		perRepo[i], result.Repositories[i] = f.fetchRepository(ctx, repos[i], cutoff)
	}

	if f.workers <= 1 || len(repos) <= 1 {
		for i := range repos {
			fetch(i)
		}
	} else {
		sem := make(chan struct{}, f.workers)
		var wg sync.WaitGroup
		for i := range repos {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				fetch(i)
			}(i)
		}
		wg.Wait()
	}

	for _, prs := range perRepo {
		result.PullRequests = append(result.PullRequests, prs...)
	}
	slices.SortStableFunc(result.PullRequests, func(a, b models.MergedPullRequest) int {
		return b.MergedAt.Compare(a.MergedAt)
	})

	return result
}

func (f *Fetcher) fetchRepository(ctx context.Context, repo models.RepositoryRef, cutoff time.Time) ([]models.MergedPullRequest, RepoSummary) {
	name := repo.String()
	summary := RepoSummary{Repository: name}
	slog.Info("Checking repository for merged PRs", "repo", name)

	prs, err := f.collect(ctx, repo, cutoff, &summary)
	if err != nil {
		summary.Err = err
		slog.Error("Error fetching PRs for repository", "repo", name, "error", err)
		return nil, summary
	}

	merged := mergedSince(prs, cutoff, name)
	summary.Merged = len(merged)
	slog.Info("Found merged PRs", "repo", name, "total", len(merged), "scanned", summary.Scanned, "pages", summary.Pages)
	return merged, summary
}

// collect pages through closed PRs until a page ends before the cutoff, the
// safety cap is reached or the listing runs out.
func (f *Fetcher) collect(ctx context.Context, repo models.RepositoryRef, cutoff time.Time, summary *RepoSummary) ([]PullRequest, error) {
	var prs []PullRequest
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := f.lister.ListClosedPRs(ctx, repo, cursor)
		if err != nil {
			return nil, err
		}
		summary.Pages++
		prs = append(prs, page.PullRequests...)

		// Pages are sorted by update time, so once the last (oldest) entry
		// predates the cutoff nothing further can have merged after it.
		if n := len(page.PullRequests); n > 0 && page.PullRequests[n-1].UpdatedAt.Before(cutoff) {
			summary.EarlyStop = true
			break
		}

		if len(prs) >= f.maxPerRepo {
			prs = prs[:f.maxPerRepo]
			summary.Capped = true
			slog.Warn("Reached safety limit of PRs for repository", "repo", repo.String(), "limit", f.maxPerRepo)
			break
		}

		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	summary.Scanned = len(prs)
	return prs, nil
}

func mergedSince(prs []PullRequest, cutoff time.Time, repository string) []models.MergedPullRequest {
	var merged []models.MergedPullRequest
	for _, pr := range prs {
		if pr.MergedAt == nil || pr.MergedAt.Before(cutoff) {
			continue
		}

		author, avatar := models.UnknownAuthor, ""
		if pr.User != nil {
			if pr.User.Login != "" {
				author = pr.User.Login
			}
			avatar = pr.User.AvatarURL
		}

		merged = append(merged, models.MergedPullRequest{
			Title:           pr.Title,
			Number:          pr.Number,
			Author:          author,
			AuthorAvatarURL: avatar,
			URL:             pr.HTMLURL,
			MergedAt:        *pr.MergedAt,
			Repository:      repository,
		})
	}
	return merged
}
