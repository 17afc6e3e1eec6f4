// Package server previews the generated feed and the published audio
// directory over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// TokenValidator determines whether a supplied token is authorized.
type TokenValidator interface {
	IsValidToken(token string) bool
}

type serverHandler struct {
	feedPath  string
	audioRoot string
	validator TokenValidator
	logger    *log.Logger
}

// EpisodeSummary is the JSON view of one feed item.
type EpisodeSummary struct {
	Title        string     `json:"title"`
	GUID         string     `json:"guid"`
	Published    *time.Time `json:"published,omitempty"`
	EnclosureURL string     `json:"enclosure_url,omitempty"`
	Duration     string     `json:"duration,omitempty"`
}

// New creates the HTTP handler serving the persisted feed at feedPath and
// audio files below audioRoot. A nil validator disables token checks.
func New(feedPath, audioRoot string, validator TokenValidator, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}

	cleanRoot := filepath.Clean(audioRoot)
	absRoot, err := filepath.Abs(cleanRoot)
	if err != nil {
		logger.Printf("warning: unable to resolve absolute audio root %q: %v", audioRoot, err)
		absRoot = cleanRoot
	}

	h := &serverHandler{
		feedPath:  feedPath,
		audioRoot: absRoot,
		validator: validator,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/episodes", h.handleEpisodes)
	mux.HandleFunc("/feed", h.handleFeed)
	mux.HandleFunc("/feed.xml", h.handleFeed)
	mux.HandleFunc("/rss", h.handleFeed)
	mux.HandleFunc("/audio/", h.handleAudio)

	return logRequests(mux, logger)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *serverHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireToken(w, r) {
		return
	}

	file, err := os.Open(h.feedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.logger.Printf("feed %s has not been generated yet", h.feedPath)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("failed to open feed %s: %v", h.feedPath, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.logger.Printf("failed to stat feed %s: %v", h.feedPath, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	http.ServeContent(w, r, filepath.Base(h.feedPath), info.ModTime(), file)
}

func (h *serverHandler) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireToken(w, r) {
		return
	}

	file, err := os.Open(h.feedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("failed to open feed %s: %v", h.feedPath, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer file.Close()

	parsed, err := gofeed.NewParser().Parse(file)
	if err != nil {
		h.logger.Printf("failed to parse feed %s: %v", h.feedPath, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	episodes := make([]EpisodeSummary, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		summary := EpisodeSummary{
			Title:     item.Title,
			GUID:      item.GUID,
			Published: item.PublishedParsed,
		}
		if len(item.Enclosures) > 0 {
			summary.EnclosureURL = item.Enclosures[0].URL
		}
		if item.ITunesExt != nil {
			summary.Duration = item.ITunesExt.Duration
		}
		episodes = append(episodes, summary)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(episodes); err != nil {
		h.logger.Printf("failed to encode episodes: %v", err)
	}
}

func (h *serverHandler) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireToken(w, r) {
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/audio/")
	rel = pathpkg.Clean("/" + rel)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	target := filepath.Join(h.audioRoot, filepath.FromSlash(rel))
	resolved, err := filepath.Abs(target)
	if err != nil {
		h.logger.Printf("failed to resolve audio path %s: %v", target, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !pathWithinRoot(h.audioRoot, resolved) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("failed to stat audio file %s: %v", resolved, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if strings.EqualFold(filepath.Ext(resolved), ".mp3") {
		w.Header().Set("Content-Type", "audio/mpeg")
	}
	http.ServeFile(w, r, resolved)
}

func (h *serverHandler) requireToken(w http.ResponseWriter, r *http.Request) bool {
	if h.validator == nil {
		return true
	}

	token := extractToken(r)
	if token == "" || !h.validator.IsValidToken(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		logger.Printf("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, sw.status, sw.size, time.Since(start))
	})
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func pathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
