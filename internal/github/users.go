package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const maxLoginLength = 39

var loginPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// User is the public profile returned by GET /users/{login}.
type User struct {
	Login       string    `json:"login" yaml:"login"`
	ID          int64     `json:"id" yaml:"id"`
	NodeID      string    `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	Type        string    `json:"type,omitempty" yaml:"type,omitempty"`
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Company     string    `json:"company,omitempty" yaml:"company,omitempty"`
	Blog        string    `json:"blog,omitempty" yaml:"blog,omitempty"`
	Location    string    `json:"location,omitempty" yaml:"location,omitempty"`
	Email       string    `json:"email,omitempty" yaml:"email,omitempty"`
	Bio         string    `json:"bio,omitempty" yaml:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
	HTMLURL     string    `json:"html_url,omitempty" yaml:"html_url,omitempty"`
	PublicRepos int       `json:"public_repos" yaml:"public_repos"`
	Followers   int       `json:"followers" yaml:"followers"`
	Following   int       `json:"following" yaml:"following"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// ValidLogin reports whether login satisfies GitHub username rules:
// alphanumerics and single hyphens, no leading or trailing hyphen, at most
// 39 characters.
func ValidLogin(login string) bool {
	value := strings.TrimSpace(login)
	if value == "" || len(value) > maxLoginLength {
		return false
	}
	if strings.HasPrefix(value, "-") || strings.HasSuffix(value, "-") {
		return false
	}
	if strings.Contains(value, "--") {
		return false
	}
	return loginPattern.MatchString(value)
}

// User fetches the public profile for login.
func (c *Client) User(ctx context.Context, login string) (*User, *Response, error) {
	login = strings.TrimSpace(login)
	if !ValidLogin(login) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLogin, login)
	}

	req, err := c.NewRequest(ctx, http.MethodGet, "users/"+url.PathEscape(login), nil)
	if err != nil {
		return nil, nil, err
	}

	user := &User{}
	resp, err := c.Do(ctx, req, user)
	if err != nil {
		return nil, resp, err
	}
	return user, resp, nil
}
