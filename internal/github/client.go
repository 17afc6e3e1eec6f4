// Package github reads and writes repository contents through the GitHub
// REST API: recursive audio listings with per-file commit dates, and
// repository to repository copies of audio files.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAPIURL      = "https://api.github.com"
	defaultRawURL      = "https://raw.githubusercontent.com"
	defaultUserAgent   = "podfeed"
	defaultHTTPTimeout = 30 * time.Second
)

// ErrNotFound is returned when a repository path does not exist.
var ErrNotFound = errors.New("github: not found")

// Config describes the API client configuration.
type Config struct {
	Token             string
	APIURL            string
	RawURL            string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *log.Logger
}

// Repository addresses a directory on one branch of a repository.
type Repository struct {
	Owner  string
	Name   string
	Branch string
	Path   string
}

func (r Repository) String() string {
	return fmt.Sprintf("%s/%s@%s:%s", r.Owner, r.Name, r.Branch, r.Path)
}

// Client wraps the contents and commits endpoints.
type Client struct {
	token   string
	apiURL  *url.URL
	rawURL  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.APIURL)
	if base == "" {
		base = defaultAPIURL
	}
	apiURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("github: parse api url: %w", err)
	}
	raw := strings.TrimSpace(cfg.RawURL)
	if raw == "" {
		raw = defaultRawURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		token:   strings.TrimSpace(cfg.Token),
		apiURL:  apiURL,
		rawURL:  strings.TrimRight(raw, "/"),
		http:    client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// ContentItem is one entry of a contents listing.
type ContentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	SHA         string `json:"sha"`
	DownloadURL string `json:"download_url"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
}

type commitEntry struct {
	Commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// ListDir returns the entries of one directory. A path naming a single file
// yields a one element listing.
func (c *Client) ListDir(ctx context.Context, repo Repository, dir string) ([]ContentItem, error) {
	endpoint := c.contentsURL(repo, dir)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single ContentItem
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("github: decode contents %s: %w", dir, err)
		}
		return []ContentItem{single}, nil
	}

	var items []ContentItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("github: decode contents %s: %w", dir, err)
	}
	return items, nil
}

// LastCommitDate returns the committer date of the newest commit touching
// path on the repository branch. A path without commits yields the zero time.
func (c *Client) LastCommitDate(ctx context.Context, repo Repository, path string) (time.Time, error) {
	endpoint := c.apiURL.JoinPath("repos", url.PathEscape(repo.Owner), url.PathEscape(repo.Name), "commits")
	params := url.Values{}
	params.Set("path", path)
	if repo.Branch != "" {
		params.Set("sha", repo.Branch)
	}
	params.Set("per_page", "1")
	endpoint.RawQuery = params.Encode()

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return time.Time{}, err
	}
	var commits []commitEntry
	if err := json.Unmarshal(body, &commits); err != nil {
		return time.Time{}, fmt.Errorf("github: decode commits for %s: %w", path, err)
	}
	if len(commits) == 0 {
		return time.Time{}, nil
	}
	return commits[0].Commit.Committer.Date.UTC(), nil
}

// ReadFile returns the decoded content and blob sha of a file. Files too large
// for inline content are fetched from their download url.
func (c *Client) ReadFile(ctx context.Context, repo Repository, path string) ([]byte, string, error) {
	items, err := c.ListDir(ctx, repo, path)
	if err != nil {
		return nil, "", err
	}
	if len(items) != 1 || items[0].Type != "file" {
		return nil, "", fmt.Errorf("github: %s is not a file", path)
	}
	item := items[0]

	if item.Encoding == "base64" && item.Content != "" {
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(item.Content, "\n", ""))
		if err != nil {
			return nil, "", fmt.Errorf("github: decode content of %s: %w", path, err)
		}
		return data, item.SHA, nil
	}
	if item.Size == 0 {
		return []byte{}, item.SHA, nil
	}
	if item.DownloadURL == "" {
		return nil, "", fmt.Errorf("github: no content or download url for %s", path)
	}
	download, err := url.Parse(item.DownloadURL)
	if err != nil {
		return nil, "", fmt.Errorf("github: parse download url: %w", err)
	}
	data, err := c.get(ctx, download)
	if err != nil {
		return nil, "", err
	}
	return data, item.SHA, nil
}

// WriteFile creates or replaces path on the repository branch. sha must be
// the current blob sha when the file already exists.
func (c *Client) WriteFile(ctx context.Context, repo Repository, path string, data []byte, sha, message string) error {
	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(data),
	}
	if repo.Branch != "" {
		payload["branch"] = repo.Branch
	}
	if sha != "" {
		payload["sha"] = sha
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("github: encode write request: %w", err)
	}

	endpoint := c.apiURL.JoinPath("repos", url.PathEscape(repo.Owner), url.PathEscape(repo.Name), "contents", escapePath(path))
	_, err = c.do(ctx, http.MethodPut, endpoint, bytes.NewReader(encoded))
	return err
}

// RawURL returns the public download url of a repository file.
func (c *Client) RawURL(repo Repository, path string) string {
	segments := []string{c.rawURL, url.PathEscape(repo.Owner), url.PathEscape(repo.Name)}
	for _, part := range strings.Split(repo.Branch, "/") {
		segments = append(segments, url.PathEscape(part))
	}
	if escaped := escapePath(path); escaped != "" {
		segments = append(segments, escaped)
	}
	return strings.Join(segments, "/")
}

func (c *Client) contentsURL(repo Repository, path string) *url.URL {
	endpoint := c.apiURL.JoinPath("repos", url.PathEscape(repo.Owner), url.PathEscape(repo.Name), "contents", escapePath(path))
	if repo.Branch != "" {
		params := url.Values{}
		params.Set("ref", repo.Branch)
		endpoint.RawQuery = params.Encode()
	}
	return endpoint
}

func (c *Client) get(ctx context.Context, endpoint *url.URL) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) do(ctx context.Context, method string, endpoint *url.URL, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("github: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", method, endpoint.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, endpoint.Path)
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("github: %s %s failed (%s): %s", method, endpoint.Path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("github: read response: %w", err)
	}
	return data, nil
}

func escapePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		escaped = append(escaped, url.PathEscape(part))
	}
	return strings.Join(escaped, "/")
}
