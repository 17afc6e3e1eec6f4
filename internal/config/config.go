package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultWatchDebounceMS   = 2000
	defaultFeedTitle         = "Podcast"
	defaultFeedDescription   = "Podcast feed generated from MP3 files."
	defaultFeedLanguage      = "en"
	defaultGitHubAPIURL      = "https://api.github.com"
	defaultGitHubRawURL      = "https://raw.githubusercontent.com"
	defaultGitHubBranch      = "main"
	defaultGitHubTimeoutSecs = 30
	defaultGitHubRate        = 5.0
)

// Source names accepted in the sources list.
const (
	SourceLocal  = "local"
	SourceGitHub = "github"
)

// Channel holds the fixed channel metadata of a newly created feed.
type Channel struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
	Language    string `yaml:"language"`
	Author      string `yaml:"author"`
	OwnerName   string `yaml:"owner_name"`
	OwnerEmail  string `yaml:"owner_email"`
	Category    string `yaml:"category"`
	Explicit    string `yaml:"explicit"`
	Image       string `yaml:"image"`
	Copyright   string `yaml:"copyright"`
}

// Episode controls how individual items are rendered.
type Episode struct {
	DescriptionSuffix string `yaml:"description_suffix"`
	PubDateOffset     string `yaml:"pubdate_offset"`
	DurationFormat    string `yaml:"duration_format"`
	GUIDMode          string `yaml:"guid_mode"`
	GUIDPermaLink     bool   `yaml:"guid_permalink"`
	Explicit          bool   `yaml:"explicit"`
	PreferTagTitle    bool   `yaml:"prefer_tag_title"`
}

// Paths lists the files and directories a run touches.
type Paths struct {
	Feed      string `yaml:"feed"`
	AudioDir  string `yaml:"audio_dir"`
	PagesDir  string `yaml:"pages_dir"`
	LockFile  string `yaml:"lock_file"`
	Inventory string `yaml:"inventory"`
}

// GitHub configures the repository listing source and repository sync.
type GitHub struct {
	Owner             string  `yaml:"owner"`
	Repo              string  `yaml:"repo"`
	Path              string  `yaml:"path"`
	Branch            string  `yaml:"branch"`
	APIURL            string  `yaml:"api_url"`
	RawURL            string  `yaml:"raw_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TokenFile         string  `yaml:"token_file"`
	TargetOwner       string  `yaml:"target_owner"`
	TargetRepo        string  `yaml:"target_repo"`
	TargetPath        string  `yaml:"target_path"`
	TargetBranch      string  `yaml:"target_branch"`
}

// Serve configures the preview HTTP server.
type Serve struct {
	ListenAddr string `yaml:"listen_addr"`
	TokenFile  string `yaml:"token_file"`
}

// Config is the complete tool configuration.
type Config struct {
	Channel         Channel  `yaml:"channel"`
	Episode         Episode  `yaml:"episode"`
	Paths           Paths    `yaml:"paths"`
	MediaBaseURL    string   `yaml:"media_base_url"`
	Sources         []string `yaml:"sources"`
	GitHub          GitHub   `yaml:"github"`
	WatchDebounceMS int      `yaml:"watch_debounce_ms"`
	Serve           Serve    `yaml:"serve"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		Channel: Channel{
			Title:       defaultFeedTitle,
			Description: defaultFeedDescription,
			Language:    defaultFeedLanguage,
			Explicit:    "no",
		},
		Episode: Episode{
			PubDateOffset:  "+0000",
			DurationFormat: "hms",
			GUIDMode:       "url",
		},
		Paths: Paths{
			Feed:      "podcast.xml",
			AudioDir:  "mp3_downloads",
			PagesDir:  filepath.Join("docs", "podcast"),
			Inventory: "mp3_files.json",
		},
		Sources: []string{SourceLocal},
		GitHub: GitHub{
			Branch:            defaultGitHubBranch,
			APIURL:            defaultGitHubAPIURL,
			RawURL:            defaultGitHubRawURL,
			TimeoutSeconds:    defaultGitHubTimeoutSecs,
			RequestsPerSecond: defaultGitHubRate,
			TargetBranch:      defaultGitHubBranch,
		},
		WatchDebounceMS: defaultWatchDebounceMS,
		Serve: Serve{
			ListenAddr: defaultListenAddr,
		},
	}
}

// LoadDotEnv loads variables from .env files when present. A missing file is
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load returns the configuration after applying defaults, the YAML file (the
// explicit path, or PODFEED_CONFIG when path is empty) and environment
// overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("PODFEED_CONFIG"))
	}
	if path != "" {
		resolved, err := expandPath(path)
		if err != nil {
			return Config{}, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"PODFEED_FEED_TITLE":          &cfg.Channel.Title,
		"PODFEED_FEED_DESCRIPTION":    &cfg.Channel.Description,
		"PODFEED_FEED_LINK":           &cfg.Channel.Link,
		"PODFEED_FEED_LANGUAGE":       &cfg.Channel.Language,
		"PODFEED_FEED_AUTHOR":         &cfg.Channel.Author,
		"PODFEED_FEED_IMAGE":          &cfg.Channel.Image,
		"PODFEED_DESCRIPTION_SUFFIX":  &cfg.Episode.DescriptionSuffix,
		"PODFEED_PUBDATE_OFFSET":      &cfg.Episode.PubDateOffset,
		"PODFEED_DURATION_FORMAT":     &cfg.Episode.DurationFormat,
		"PODFEED_GUID_MODE":           &cfg.Episode.GUIDMode,
		"PODFEED_FEED_PATH":           &cfg.Paths.Feed,
		"PODFEED_AUDIO_DIR":           &cfg.Paths.AudioDir,
		"PODFEED_PAGES_DIR":           &cfg.Paths.PagesDir,
		"PODFEED_LOCK_FILE":           &cfg.Paths.LockFile,
		"PODFEED_INVENTORY":           &cfg.Paths.Inventory,
		"PODFEED_MEDIA_BASE_URL":      &cfg.MediaBaseURL,
		"PODFEED_GITHUB_OWNER":        &cfg.GitHub.Owner,
		"PODFEED_GITHUB_REPO":         &cfg.GitHub.Repo,
		"PODFEED_GITHUB_PATH":         &cfg.GitHub.Path,
		"PODFEED_GITHUB_BRANCH":       &cfg.GitHub.Branch,
		"PODFEED_GITHUB_API_URL":      &cfg.GitHub.APIURL,
		"PODFEED_GITHUB_RAW_URL":      &cfg.GitHub.RawURL,
		"PODFEED_GITHUB_TOKEN_FILE":   &cfg.GitHub.TokenFile,
		"PODFEED_GITHUB_TARGET_OWNER": &cfg.GitHub.TargetOwner,
		"PODFEED_GITHUB_TARGET_REPO":  &cfg.GitHub.TargetRepo,
		"PODFEED_GITHUB_TARGET_PATH":  &cfg.GitHub.TargetPath,
		"PODFEED_LISTEN_ADDR":         &cfg.Serve.ListenAddr,
		"PODFEED_SERVE_TOKEN_FILE":    &cfg.Serve.TokenFile,
	}
	for name, target := range overrides {
		if value := trimmedEnv(name); value != "" {
			*target = value
		}
	}

	if value := trimmedEnv("PODFEED_SOURCES"); value != "" {
		cfg.Sources = splitList(value)
	}
	if value := trimmedEnv("PODFEED_GUID_PERMALINK"); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.Episode.GUIDPermaLink = parsed
		}
	}
	if value := trimmedEnv("PODFEED_WATCH_DEBOUNCE_MS"); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			cfg.WatchDebounceMS = ms
		}
	}
	if value := trimmedEnv("PODFEED_GITHUB_TIMEOUT_SECONDS"); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			cfg.GitHub.TimeoutSeconds = secs
		}
	}
}

// Validate rejects option values the rest of the tool cannot honour.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("at least one source must be configured")
	}
	for _, source := range c.Sources {
		switch source {
		case SourceLocal:
		case SourceGitHub:
			if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
				return errors.New("github source requires github.owner and github.repo")
			}
		default:
			return fmt.Errorf("unknown source %q", source)
		}
	}
	switch c.Episode.DurationFormat {
	case "hms", "seconds":
	default:
		return fmt.Errorf("unknown duration_format %q (want hms or seconds)", c.Episode.DurationFormat)
	}
	switch c.Episode.GUIDMode {
	case "url", "filename", "uuid":
	default:
		return fmt.Errorf("unknown guid_mode %q (want url, filename or uuid)", c.Episode.GUIDMode)
	}
	if strings.TrimSpace(c.Paths.Feed) == "" {
		return errors.New("paths.feed must not be empty")
	}
	return nil
}

// LockPath returns the run lock file, next to the feed unless configured.
func (c Config) LockPath() string {
	if c.Paths.LockFile != "" {
		return c.Paths.LockFile
	}
	return c.Paths.Feed + ".lock"
}

// WatchDebounce returns the settle interval for the watch command.
func (c Config) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMS) * time.Millisecond
}

// GitHubTimeout returns the per-request timeout for API calls.
func (c Config) GitHubTimeout() time.Duration {
	return time.Duration(c.GitHub.TimeoutSeconds) * time.Second
}

// ValidateListenAddr ensures the configured listen address is restricted to localhost.
func ValidateListenAddr(addr string) error {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return nil
	}
	return errors.New("listen address must bind to localhost for security")
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}

func trimmedEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
