package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PODFEED_") {
			t.Setenv(name, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Paths.Feed != "podcast.xml" {
		t.Fatalf("unexpected feed path %q", cfg.Paths.Feed)
	}
	if cfg.LockPath() != "podcast.xml.lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0] != SourceLocal {
		t.Fatalf("unexpected sources %v", cfg.Sources)
	}
	if cfg.Episode.DurationFormat != "hms" || cfg.Episode.GUIDMode != "url" {
		t.Fatalf("unexpected episode defaults %+v", cfg.Episode)
	}
	if cfg.WatchDebounce() != 2*time.Second {
		t.Fatalf("unexpected debounce %v", cfg.WatchDebounce())
	}
	if cfg.GitHubTimeout() != 30*time.Second {
		t.Fatalf("unexpected github timeout %v", cfg.GitHubTimeout())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "podfeed.yaml")
	content := `
channel:
  title: Morning Show
  language: ja
episode:
  description_suffix: Daily news
  pubdate_offset: "+0900"
  duration_format: seconds
paths:
  feed: out/feed.xml
  lock_file: out/run.lock
sources: [local, github]
github:
  owner: alice
  repo: audio
  branch: gh-pages
watch_debounce_ms: 250
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Channel.Title != "Morning Show" || cfg.Channel.Language != "ja" {
		t.Fatalf("unexpected channel %+v", cfg.Channel)
	}
	if cfg.Channel.Description != defaultFeedDescription {
		t.Fatalf("expected unset fields to keep defaults, got %q", cfg.Channel.Description)
	}
	if cfg.Episode.PubDateOffset != "+0900" || cfg.Episode.DurationFormat != "seconds" {
		t.Fatalf("unexpected episode %+v", cfg.Episode)
	}
	if cfg.LockPath() != "out/run.lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if cfg.GitHub.Branch != "gh-pages" || cfg.GitHub.APIURL != defaultGitHubAPIURL {
		t.Fatalf("unexpected github %+v", cfg.GitHub)
	}
	if cfg.WatchDebounce() != 250*time.Millisecond {
		t.Fatalf("unexpected debounce %v", cfg.WatchDebounce())
	}
}

func TestLoadUsesConfigEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "podfeed.yaml")
	if err := os.WriteFile(path, []byte("channel:\n  title: From Env Path\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PODFEED_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channel.Title != "From Env Path" {
		t.Fatalf("unexpected title %q", cfg.Channel.Title)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "podfeed.yaml")
	if err := os.WriteFile(path, []byte("channel:\n  title: File Title\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PODFEED_FEED_TITLE", "Env Title")
	t.Setenv("PODFEED_SOURCES", "local, github")
	t.Setenv("PODFEED_GITHUB_OWNER", "bob")
	t.Setenv("PODFEED_GITHUB_REPO", "shows")
	t.Setenv("PODFEED_GUID_PERMALINK", "true")
	t.Setenv("PODFEED_WATCH_DEBOUNCE_MS", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channel.Title != "Env Title" {
		t.Fatalf("expected env to win, got %q", cfg.Channel.Title)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1] != SourceGitHub {
		t.Fatalf("unexpected sources %v", cfg.Sources)
	}
	if !cfg.Episode.GUIDPermaLink {
		t.Fatalf("expected permalink override")
	}
	if cfg.WatchDebounceMS != defaultWatchDebounceMS {
		t.Fatalf("invalid debounce should be ignored, got %d", cfg.WatchDebounceMS)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"unknown source":  "sources: [ftp]\n",
		"github no owner": "sources: [github]\n",
		"duration format": "episode:\n  duration_format: minutes\n",
		"guid mode":       "episode:\n  guid_mode: random\n",
		"no sources":      "sources: []\n",
		"malformed yaml":  "channel: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "podfeed.yaml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadExpandsHome(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.WriteFile(filepath.Join(home, "podfeed.yaml"), []byte("channel:\n  title: Home\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load("~/podfeed.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channel.Title != "Home" {
		t.Fatalf("unexpected title %q", cfg.Channel.Title)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PODFEED_FEED_TITLE=Dotenv Title\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("PODFEED_FEED_TITLE", "")
	os.Unsetenv("PODFEED_FEED_TITLE")

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PODFEED_FEED_TITLE"); got != "Dotenv Title" {
		t.Fatalf("expected dotenv value, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestValidateListenAddr(t *testing.T) {
	valid := []string{"127.0.0.1:8080", "localhost:9000", "[::1]:8443"}
	for _, addr := range valid {
		if err := ValidateListenAddr(addr); err != nil {
			t.Fatalf("expected %s to be valid: %v", addr, err)
		}
	}

	invalid := []string{"0.0.0.0:8080", ":8080", "192.168.1.10:8080"}
	for _, addr := range invalid {
		if err := ValidateListenAddr(addr); err == nil {
			t.Fatalf("expected %s to be rejected", addr)
		}
	}
}
