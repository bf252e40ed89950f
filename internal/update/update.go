// Package update checks GitHub for a newer agent release.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.github.com"

var errNoRelease = errors.New("update: no published release")

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

type Result struct {
	HasUpdate bool
	Version   string
	URL       string
	Notes     string
}

type Checker struct {
	client  *http.Client
	apiBase string
}

func NewChecker() *Checker {
	return &Checker{
		client:  &http.Client{Timeout: 8 * time.Second},
		apiBase: defaultAPIBase,
	}
}

// Check compares current with the latest release of repo ("owner/name").
// Repositories without published releases fall back to the newest tag.
func (c *Checker) Check(ctx context.Context, repo, current string) (Result, error) {
	repo = strings.Trim(strings.TrimSpace(repo), "/")
	if repo == "" {
		return Result{}, fmt.Errorf("update: repository is empty")
	}

	rel, err := c.latestRelease(ctx, repo)
	if errors.Is(err, errNoRelease) {
		rel, err = c.latestTag(ctx, repo)
	}
	if err != nil {
		return Result{}, err
	}

	latest := normalize(rel.TagName)
	return Result{
		HasUpdate: isNewerVersion(latest, normalize(current)),
		Version:   latest,
		URL:       rel.HTMLURL,
		Notes:     rel.Body,
	}, nil
}

func (c *Checker) latestRelease(ctx context.Context, repo string) (release, error) {
	var rel release
	status, err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, repo), &rel)
	if status == http.StatusNotFound {
		return release{}, errNoRelease
	}
	return rel, err
}

func (c *Checker) latestTag(ctx context.Context, repo string) (release, error) {
	var tags []struct {
		Name string `json:"name"`
	}
	if _, err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/tags", c.apiBase, repo), &tags); err != nil {
		return release{}, err
	}
	if len(tags) == 0 {
		return release{}, fmt.Errorf("update: %s has no tags", repo)
	}

	return release{
		TagName: tags[0].Name,
		HTMLURL: fmt.Sprintf("https://github.com/%s/releases/tag/%s", repo, tags[0].Name),
	}, nil
}

func (c *Checker) getJSON(ctx context.Context, url string, v any) (int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	request.Header.Set("Accept", "application/vnd.github+json")

	response, err := c.client.Do(request)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		return response.StatusCode, fmt.Errorf("update: github api status %d", response.StatusCode)
	}

	return response.StatusCode, json.NewDecoder(response.Body).Decode(v)
}

func normalize(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

func isNewerVersion(latest, current string) bool {
	if latest == "" || current == "" {
		return false
	}

	l, c := parseVersion(latest), parseVersion(current)
	for i := 0; i < 3; i++ {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

// parseVersion reads up to three numeric components; anything after the
// digits of a component (pre-release suffixes) is ignored.
func parseVersion(v string) [3]int {
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		n := 0
		for _, ch := range part {
			if ch < '0' || ch > '9' {
				break
			}
			n = n*10 + int(ch-'0')
		}
		out[i] = n
	}
	return out
}
