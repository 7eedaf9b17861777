package output

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/github"
)

// YAMLFormatter renders results as YAML documents.
type YAMLFormatter struct{}

func (f *YAMLFormatter) marshal(v any) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (f *YAMLFormatter) FormatRateLimits(report *RateLimitReport) (string, error) {
	return f.marshal(report)
}

func (f *YAMLFormatter) FormatRateLimitEntries(entries []store.RateLimitEntry) (string, error) {
	if entries == nil {
		entries = []store.RateLimitEntry{}
	}
	return f.marshal(entries)
}

func (f *YAMLFormatter) FormatEmojis(emojis map[string]string) (string, error) {
	return f.marshal(emojis)
}

func (f *YAMLFormatter) FormatUser(user *github.User) (string, error) {
	return f.marshal(user)
}

func (f *YAMLFormatter) FormatUsers(users []*github.User) (string, error) {
	if users == nil {
		users = []*github.User{}
	}
	return f.marshal(users)
}
