package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliTestEnv struct {
	configPath string
	feedPath   string
	audioDir   string
	pagesDir   string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("PODFEED_CONFIG", "")

	base := t.TempDir()
	env := &cliTestEnv{
		configPath: filepath.Join(base, "podfeed.yaml"),
		feedPath:   filepath.Join(base, "out", "podcast.xml"),
		audioDir:   filepath.Join(base, "audio"),
		pagesDir:   filepath.Join(base, "pages"),
		baseDir:    base,
	}
	require.NoError(t, os.MkdirAll(env.audioDir, 0o755))

	content := fmt.Sprintf(`channel:
  title: CLI Show
  description: Episodes for testing
  language: en
episode:
  description_suffix: CLI Show
paths:
  feed: %q
  audio_dir: %q
  pages_dir: %q
  inventory: %q
media_base_url: https://example.com/podcast
sources: [local]
`, env.feedPath, env.audioDir, env.pagesDir, filepath.Join(base, "inventory.json"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

func (e *cliTestEnv) addAudio(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.audioDir, name), []byte("not really mp3"), 0o644))
}

func (e *cliTestEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommandWithOutput(io.Discard)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandWritesFeed(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addAudio(t, "2025-03-19_My Title_1001.mp3")
	env.addAudio(t, "cover.txt")

	_, err := env.execute(t, "run")
	require.NoError(t, err)

	data, err := os.ReadFile(env.feedPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "<title>CLI Show</title>")
	assert.Contains(t, text, "<title>My Title</title>")
	assert.Contains(t, text, "https://example.com/podcast/2025-03-19_My%20Title_1001.mp3")
	assert.Contains(t, text, "<itunes:duration>00:30:00</itunes:duration>")

	out, err := env.execute(t, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "title:    CLI Show")
	assert.Contains(t, out, "items:    1")
	assert.Contains(t, out, "status:   ok")
}

func TestFetchThenGenerate(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addAudio(t, "2025-03-20_Inventory Episode_7.mp3")
	inventoryPath := filepath.Join(env.baseDir, "listing.json")

	_, err := env.execute(t, "fetch", "--output", inventoryPath)
	require.NoError(t, err)
	_, err = os.Stat(env.feedPath)
	assert.True(t, os.IsNotExist(err), "fetch must not write the feed")

	listing, err := os.ReadFile(inventoryPath)
	require.NoError(t, err)
	assert.Contains(t, string(listing), "Inventory Episode")

	_, err = env.execute(t, "generate", "--input", inventoryPath)
	require.NoError(t, err)

	data, err := os.ReadFile(env.feedPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>Inventory Episode</title>")
}

func TestMirrorCommandCopiesAudio(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addAudio(t, "2025-03-19_A_1.mp3")

	_, err := env.execute(t, "mirror")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(env.pagesDir, "2025-03-19_A_1.mp3"))
	assert.NoError(t, err)
}

func TestVerifyRejectsMalformedFeed(t *testing.T) {
	env := setupCLITestEnv(t)
	bad := filepath.Join(env.baseDir, "bad.xml")
	require.NoError(t, os.WriteFile(bad, []byte("<<<not a feed"), 0o644))

	_, err := env.execute(t, "verify", bad)
	assert.Error(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	env := setupCLITestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("sources: [ftp]\n"), 0o644))

	_, err := env.execute(t, "run")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown source"))
}

func TestSyncRepoRequiresTarget(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.execute(t, "sync-repo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_owner")
}

func TestServeRejectsPublicListenAddr(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("PODFEED_LISTEN_ADDR", "0.0.0.0:8080")

	_, err := env.execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid listen address")
}
