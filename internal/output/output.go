// Package output renders command results as tables, markdown, JSON or YAML.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/ratelimit"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// RateLimitReport combines the header snapshot of a response with the
// per-resource buckets of GET /rate_limit.
type RateLimitReport struct {
	Header    ratelimit.Info            `json:"header" yaml:"header"`
	Resources map[string]ratelimit.Info `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// Formatter renders command results.
type Formatter interface {
	FormatRateLimits(report *RateLimitReport) (string, error)
	FormatRateLimitEntries(entries []store.RateLimitEntry) (string, error)
	FormatEmojis(emojis map[string]string) (string, error)
	FormatUser(user *github.User) (string, error)
	FormatUsers(users []*github.User) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	default:
		return &TableFormatter{}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
