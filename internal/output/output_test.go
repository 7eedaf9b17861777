package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/namelens/octolens/internal/core"
	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/ratelimit"
)

var resetAt = time.Date(2025, 1, 1, 12, 5, 0, 0, time.UTC)

func sampleReport() *RateLimitReport {
	return &RateLimitReport{
		Header: ratelimit.Info{Limit: 60, Remaining: 59, ResetsAt: resetAt, ResetsIn: 300 * time.Second},
		Resources: map[string]ratelimit.Info{
			"search": {Limit: 10, Remaining: 10, ResetsAt: resetAt, ResetsIn: time.Minute},
			"core":   {Limit: 60, Remaining: 59, ResetsAt: resetAt, ResetsIn: 300 * time.Second},
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestRateLimitsTable(t *testing.T) {
	rendered, err := NewFormatter(FormatTable).FormatRateLimits(sampleReport())
	require.NoError(t, err)
	require.Contains(t, rendered, "RESOURCE")
	require.Contains(t, rendered, "(response)")
	require.Contains(t, rendered, "2025-01-01T12:05:00Z")
	require.Less(t, strings.Index(rendered, "core"), strings.Index(rendered, "search"))
}

func TestRateLimitsMarkdown(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatRateLimits(sampleReport())
	require.NoError(t, err)
	require.Contains(t, rendered, "| Resource |")
	require.Contains(t, rendered, "| core |")
}

func TestRateLimitsJSON(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatRateLimits(sampleReport())
	require.NoError(t, err)

	var decoded struct {
		Header    map[string]any            `json:"header"`
		Resources map[string]map[string]any `json:"resources"`
	}
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, float64(300), decoded.Header["resets_in"])
	require.Equal(t, float64(10), decoded.Resources["search"]["limit"])
}

func TestRateLimitsYAML(t *testing.T) {
	rendered, err := NewFormatter(FormatYAML).FormatRateLimits(sampleReport())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &decoded))
	header := decoded["header"].(map[string]any)
	require.Equal(t, 59, header["remaining"])
	require.Equal(t, 300, header["resets_in"])
}

func TestRateLimitEntries(t *testing.T) {
	backoff := resetAt.Add(time.Minute)
	entries := []store.RateLimitEntry{
		{Resource: "core", State: core.RateLimitState{Limit: 60, Remaining: 0, ResetsAt: resetAt, BackoffUntil: &backoff}},
	}

	rendered, err := NewFormatter(FormatTable).FormatRateLimitEntries(entries)
	require.NoError(t, err)
	require.Contains(t, rendered, "2025-01-01T12:06:00Z")
	require.Contains(t, strings.ToLower(rendered), "1 resource(s)")

	rendered, err = NewFormatter(FormatJSON).FormatRateLimitEntries(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", rendered)
}

func TestEmojisAndUser(t *testing.T) {
	emojis := map[string]string{"metal": "https://example.com/metal.png", "+1": "https://example.com/plus1.png"}

	rendered, err := NewFormatter(FormatTable).FormatEmojis(emojis)
	require.NoError(t, err)
	require.Contains(t, rendered, ":metal:")
	require.Contains(t, strings.ToLower(rendered), "2 emoji")

	user := &github.User{Login: "octocat", ID: 583231, HTMLURL: "https://github.com/octocat", PublicRepos: 8}
	rendered, err = NewFormatter(FormatTable).FormatUser(user)
	require.NoError(t, err)
	require.Contains(t, rendered, "octocat")
	require.Contains(t, rendered, "583231")
	require.NotContains(t, rendered, "Company")

	rendered, err = NewFormatter(FormatYAML).FormatUser(user)
	require.NoError(t, err)
	require.Contains(t, rendered, "login: octocat")
}

func TestFormatUsers(t *testing.T) {
	users := []*github.User{
		{Login: "octocat", ID: 1, PublicRepos: 8},
		nil,
		{Login: "hubot", ID: 2, Name: "Hubot"},
	}

	rendered, err := NewFormatter(FormatTable).FormatUsers(users)
	require.NoError(t, err)
	require.Less(t, strings.Index(rendered, "octocat"), strings.Index(rendered, "hubot"))
	require.Contains(t, rendered, "Hubot")

	rendered, err = NewFormatter(FormatJSON).FormatUsers(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", rendered)
}
