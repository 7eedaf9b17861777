package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/ratelimit"
)

// TableFormatter renders results as an ASCII table, or as a markdown table
// when Markdown is set.
type TableFormatter struct {
	Markdown bool
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	t.SetStyle(table.StyleRounded)
	return t.Render()
}

// FormatRateLimits renders one row per resource, header snapshot first.
func (f *TableFormatter) FormatRateLimits(report *RateLimitReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Resource", "Limit", "Remaining", "Resets At", "Resets In"})

	if !report.Header.IsZero() {
		t.AppendRow(rateRow("(response)", report.Header))
	}
	for _, name := range sortedKeys(report.Resources) {
		t.AppendRow(rateRow(name, report.Resources[name]))
	}

	return f.render(t), nil
}

// FormatRateLimitEntries renders stored limiter state.
func (f *TableFormatter) FormatRateLimitEntries(entries []store.RateLimitEntry) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Resource", "Limit", "Remaining", "Resets At", "Observed At", "Backoff Until"})

	for _, entry := range entries {
		state := entry.State
		t.AppendRow(table.Row{
			entry.Resource,
			state.Limit,
			state.Remaining,
			formatTime(state.ResetsAt),
			formatTime(state.ObservedAt),
			formatTimePtr(state.BackoffUntil),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d resource(s)", len(entries))})

	return f.render(t), nil
}

// FormatEmojis renders emoji names and image URLs in name order.
func (f *TableFormatter) FormatEmojis(emojis map[string]string) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "URL"})
	for _, name := range sortedKeys(emojis) {
		t.AppendRow(table.Row{":" + name + ":", emojis[name]})
	}
	t.AppendFooter(table.Row{"", strconv.Itoa(len(emojis)) + " emoji"})
	return f.render(t), nil
}

// FormatUser renders the populated profile fields.
func (f *TableFormatter) FormatUser(user *github.User) (string, error) {
	if user == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	rows := []struct {
		name  string
		value string
	}{
		{"Login", user.Login},
		{"ID", strconv.FormatInt(user.ID, 10)},
		{"Type", user.Type},
		{"Name", user.Name},
		{"Company", user.Company},
		{"Location", user.Location},
		{"Blog", user.Blog},
		{"Profile", user.HTMLURL},
		{"Public Repos", strconv.Itoa(user.PublicRepos)},
		{"Followers", strconv.Itoa(user.Followers)},
		{"Following", strconv.Itoa(user.Following)},
		{"Created", formatTime(user.CreatedAt)},
	}
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		t.AppendRow(table.Row{row.name, row.value})
	}
	return f.render(t), nil
}

// FormatUsers renders one summary row per user.
func (f *TableFormatter) FormatUsers(users []*github.User) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Login", "ID", "Name", "Public Repos", "Followers", "Created"})
	for _, user := range users {
		if user == nil {
			continue
		}
		t.AppendRow(table.Row{
			user.Login,
			user.ID,
			user.Name,
			user.PublicRepos,
			user.Followers,
			formatTime(user.CreatedAt),
		})
	}
	return f.render(t), nil
}

func rateRow(name string, info ratelimit.Info) table.Row {
	return table.Row{
		name,
		info.Limit,
		info.Remaining,
		formatTime(info.ResetsAt),
		info.ResetsIn.String(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
