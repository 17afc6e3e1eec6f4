package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podfeed/internal/models"
)

type fakeAPI struct {
	mu       sync.Mutex
	auth     []string
	puts     map[string]map[string]string
	listings map[string]any
	commits  map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.puts[r.URL.Path] = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{}`)
	case strings.HasSuffix(r.URL.Path, "/commits"):
		commits, ok := f.commits[r.URL.Query().Get("path")]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(commits)
	default:
		listing, ok := f.listings[r.URL.Path]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(listing)
	}
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	api := &fakeAPI{
		puts:     make(map[string]map[string]string),
		listings: make(map[string]any),
		commits:  make(map[string]any),
	}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return api, server
}

func newTestClient(t *testing.T, server *httptest.Server, logger *log.Logger) *Client {
	t.Helper()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	client, err := New(Config{
		Token:   "secret",
		APIURL:  server.URL,
		RawURL:  server.URL + "/raw/",
		Timeout: 5 * time.Second,
		Logger:  logger,
	})
	require.NoError(t, err)
	return client
}

func file(path string, size int64) map[string]any {
	name := path[strings.LastIndex(path, "/")+1:]
	return map[string]any{"name": name, "path": path, "type": "file", "size": size, "sha": "sha-" + name}
}

func dir(path string) map[string]any {
	name := path[strings.LastIndex(path, "/")+1:]
	return map[string]any{"name": name, "path": path, "type": "dir"}
}

func commitAt(date string) []map[string]any {
	return []map[string]any{{"commit": map[string]any{"committer": map[string]any{"date": date}}}}
}

func TestListAudioWalksDirectories(t *testing.T) {
	api, server := newFakeAPI(t)
	api.listings["/repos/alice/audio/contents/episodes"] = []map[string]any{
		file("episodes/2025-03-19_My Title_1001.mp3", 2048),
		file("episodes/notes.txt", 10),
		dir("episodes/old"),
	}
	api.listings["/repos/alice/audio/contents/episodes/old"] = []map[string]any{
		file("episodes/old/archive.MP3", 4096),
	}
	api.commits["episodes/2025-03-19_My Title_1001.mp3"] = commitAt("2025-03-20T08:30:00Z")

	var logs bytes.Buffer
	client := newTestClient(t, server, log.New(&logs, "", 0))
	repo := Repository{Owner: "alice", Name: "audio", Branch: "main", Path: "episodes"}

	entries, err := client.ListAudio(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "2025-03-19_My Title_1001.mp3", first.Name)
	assert.Equal(t, models.EntryFile, first.Type)
	assert.Equal(t, int64(2048), first.Size)
	assert.Equal(t, time.Date(2025, 3, 20, 8, 30, 0, 0, time.UTC), first.ModifiedAt)
	assert.Equal(t, server.URL+"/raw/alice/audio/main/episodes/2025-03-19_My%20Title_1001.mp3", first.URL)

	second := entries[1]
	assert.Equal(t, "episodes/old/archive.MP3", second.Path)
	assert.True(t, second.ModifiedAt.IsZero(), "failed commit lookup leaves a zero time")
	assert.Contains(t, logs.String(), "commit date for episodes/old/archive.MP3 unavailable")

	for _, header := range api.auth {
		assert.Equal(t, "token secret", header)
	}
}

func TestListAudioMissingRoot(t *testing.T) {
	_, server := newFakeAPI(t)
	var logs bytes.Buffer
	client := newTestClient(t, server, log.New(&logs, "", 0))

	entries, err := client.ListAudio(context.Background(), Repository{Owner: "alice", Name: "audio", Branch: "main", Path: "missing"})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, logs.String(), "not found")
}

func TestListAudioServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.ListAudio(context.Background(), Repository{Owner: "alice", Name: "audio", Path: "episodes"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "503")
}

func TestListDirNotFound(t *testing.T) {
	_, server := newFakeAPI(t)
	client := newTestClient(t, server, nil)

	_, err := client.ListDir(context.Background(), Repository{Owner: "alice", Name: "audio"}, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastCommitDateWithoutCommits(t *testing.T) {
	api, server := newFakeAPI(t)
	api.commits["new.mp3"] = []map[string]any{}
	client := newTestClient(t, server, nil)

	date, err := client.LastCommitDate(context.Background(), Repository{Owner: "alice", Name: "audio", Branch: "main"}, "new.mp3")
	require.NoError(t, err)
	assert.True(t, date.IsZero())
}

func TestRawURLEscapesSegments(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)

	got := client.RawURL(Repository{Owner: "alice", Name: "audio", Branch: "main"}, "日本/a b.mp3")
	assert.Equal(t, "https://raw.githubusercontent.com/alice/audio/main/%E6%97%A5%E6%9C%AC/a%20b.mp3", got)
}

func TestSyncCopiesMissingAndChangedFiles(t *testing.T) {
	api, server := newFakeAPI(t)
	api.listings["/repos/alice/audio/contents/episodes"] = []map[string]any{
		file("episodes/same.mp3", 3),
		file("episodes/changed.mp3", 5),
		file("episodes/new.mp3", 4),
		file("episodes/readme.md", 1),
	}
	api.listings["/repos/bob/site/contents/podcast"] = []map[string]any{
		file("podcast/same.mp3", 3),
		file("podcast/changed.mp3", 2),
	}
	api.listings["/repos/alice/audio/contents/episodes/changed.mp3"] = map[string]any{
		"name": "changed.mp3", "path": "episodes/changed.mp3", "type": "file", "size": 5,
		"sha": "src-changed", "encoding": "base64", "content": base64.StdEncoding.EncodeToString([]byte("fresh")),
	}
	api.listings["/repos/alice/audio/contents/episodes/new.mp3"] = map[string]any{
		"name": "new.mp3", "path": "episodes/new.mp3", "type": "file", "size": 4,
		"sha": "src-new", "encoding": "base64", "content": base64.StdEncoding.EncodeToString([]byte("data")),
	}

	client := newTestClient(t, server, nil)
	from := Repository{Owner: "alice", Name: "audio", Branch: "main", Path: "episodes"}
	to := Repository{Owner: "bob", Name: "site", Branch: "gh-pages", Path: "podcast"}

	report, err := client.Sync(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Copied: 2, Skipped: 1}, report)

	require.Len(t, api.puts, 2)
	created := api.puts["/repos/bob/site/contents/podcast/new.mp3"]
	require.NotNil(t, created)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("data")), created["content"])
	assert.Equal(t, "gh-pages", created["branch"])
	assert.NotContains(t, created, "sha")

	updated := api.puts["/repos/bob/site/contents/podcast/changed.mp3"]
	require.NotNil(t, updated)
	assert.Equal(t, "sha-changed.mp3", updated["sha"])
}

func TestSyncIntoMissingTarget(t *testing.T) {
	api, server := newFakeAPI(t)
	api.listings["/repos/alice/audio/contents/episodes"] = []map[string]any{
		file("episodes/new.mp3", 4),
		file("episodes/broken.mp3", 4),
	}
	api.listings["/repos/alice/audio/contents/episodes/new.mp3"] = map[string]any{
		"name": "new.mp3", "path": "episodes/new.mp3", "type": "file", "size": 4,
		"encoding": "base64", "content": base64.StdEncoding.EncodeToString([]byte("data")),
	}

	client := newTestClient(t, server, nil)
	report, err := client.Sync(context.Background(),
		Repository{Owner: "alice", Name: "audio", Branch: "main", Path: "episodes"},
		Repository{Owner: "bob", Name: "site", Branch: "main", Path: "podcast"},
	)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Copied: 1, Failed: 1}, report)
	assert.Contains(t, api.puts, "/repos/bob/site/contents/podcast/new.mp3")
}
