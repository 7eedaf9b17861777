package output

import (
	"encoding/json"

	"github.com/namelens/octolens/internal/core/store"
	"github.com/namelens/octolens/internal/github"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func (f *JSONFormatter) FormatRateLimits(report *RateLimitReport) (string, error) {
	return f.marshal(report)
}

func (f *JSONFormatter) FormatRateLimitEntries(entries []store.RateLimitEntry) (string, error) {
	if entries == nil {
		entries = []store.RateLimitEntry{}
	}
	return f.marshal(entries)
}

func (f *JSONFormatter) FormatEmojis(emojis map[string]string) (string, error) {
	return f.marshal(emojis)
}

func (f *JSONFormatter) FormatUser(user *github.User) (string, error) {
	return f.marshal(user)
}

func (f *JSONFormatter) FormatUsers(users []*github.User) (string, error) {
	if users == nil {
		users = []*github.User{}
	}
	return f.marshal(users)
}
