// Package report prints the operator-facing summary of a run to a terminal.
package report

import (
	"fmt"
	"io"

	"merge-notifier/internal/github"
	"merge-notifier/pkg/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	ColorMagenta = lipgloss.Color("#FF00FF")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorBlue    = lipgloss.Color("#5555FF")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorRed     = lipgloss.Color("#FF0000")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorGray    = lipgloss.Color("8")
)

// Printer writes styled report lines to out
type Printer struct {
	out io.Writer

	title   lipgloss.Style
	info    lipgloss.Style
	window  lipgloss.Style
	total   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	item    lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
}

// New creates a printer. With noColor set, output carries no escape codes.
func New(out io.Writer, noColor bool) *Printer {
	r := lipgloss.NewRenderer(out)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Printer{
		out:     out,
		title:   r.NewStyle().Foreground(ColorMagenta).Bold(true),
		info:    r.NewStyle().Foreground(ColorCyan),
		window:  r.NewStyle().Foreground(ColorBlue),
		total:   r.NewStyle().Foreground(ColorYellow),
		success: r.NewStyle().Foreground(ColorGreen),
		failure: r.NewStyle().Foreground(ColorRed).Bold(true),
		item:    r.NewStyle().Foreground(ColorWhite),
		muted:   r.NewStyle().Foreground(ColorGray),
		bold:    r.NewStyle().Bold(true),
	}
}

// Start announces the repositories and the window about to be checked
func (p *Printer) Start(repos []models.RepositoryRef, hoursBack int) {
	fmt.Fprintln(p.out, p.title.Render("🎉 Starting PR Merge Celebration Bot..."))
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, p.info.Render(fmt.Sprintf("Checking %s repository(ies):", p.bold.Render(fmt.Sprint(len(repos))))))
	for _, repo := range repos {
		fmt.Fprintln(p.out, p.muted.Render("  - "+repo.String()))
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, p.window.Render(fmt.Sprintf("Looking back %s hours for merged PRs", p.bold.Render(fmt.Sprint(hoursBack)))))
	fmt.Fprintln(p.out)
}

// Result prints one line per repository followed by the combined list
func (p *Printer) Result(result *github.Result, prs []models.MergedPullRequest) {
	for _, repo := range result.Repositories {
		fmt.Fprintln(p.out, p.repositoryLine(repo))
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, p.total.Render(fmt.Sprintf("Total merged PRs found: %s", p.bold.Render(fmt.Sprint(len(prs))))))
	fmt.Fprintln(p.out)

	if len(prs) == 0 {
		return
	}
	fmt.Fprintln(p.out, p.success.Render("Merged PRs:"))
	for _, pr := range prs {
		fmt.Fprintf(p.out, "  - %s%s %s\n",
			p.bold.Render(pr.Repository),
			p.item.Render(fmt.Sprintf("#%d: %s", pr.Number, pr.Title)),
			p.muted.Render(fmt.Sprintf("(by %s)", pr.Author)))
	}
	fmt.Fprintln(p.out)
}

func (p *Printer) repositoryLine(repo github.RepoSummary) string {
	if repo.Err != nil {
		return p.failure.Render("  ✘ "+repo.Repository) + p.muted.Render(": "+repo.Err.Error())
	}

	line := p.success.Render("  ✔ "+repo.Repository) +
		p.muted.Render(fmt.Sprintf(": %d merged (%d scanned, %d page(s))", repo.Merged, repo.Scanned, repo.Pages))
	switch {
	case repo.Capped:
		line += p.total.Render(" · safety limit reached")
	case repo.EarlyStop:
		line += p.muted.Render(" · stopped early")
	}
	return line
}

// Skipped explains why no notification was delivered
func (p *Printer) Skipped(reason string) {
	fmt.Fprintln(p.out, p.muted.Render("Skipping notification: "+reason))
}

// Done prints the closing line of a successful run
func (p *Printer) Done() {
	fmt.Fprintln(p.out, p.success.Bold(true).Render("✅ PR Celebration complete!"))
}

// Failed prints the closing line of a failed run
func (p *Printer) Failed(err error) {
	fmt.Fprintln(p.out, p.failure.Render("❌ Error running PR celebration:")+" "+err.Error())
}
