// Package credentials resolves the secrets podfeed needs: the GitHub API token
// and the optional set of tokens accepted by the preview server.
package credentials

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables consulted for the GitHub token, in order.
var githubTokenEnv = []string{"PODFEED_GITHUB_TOKEN", "GITHUB_TOKEN"}

// GitHubToken returns the API token from the environment, falling back to
// the first non-empty line of tokenFile. An empty result with a nil error
// means requests go out unauthenticated.
func GitHubToken(tokenFile string) (string, error) {
	for _, name := range githubTokenEnv {
		if token := strings.TrimSpace(os.Getenv(name)); token != "" {
			return token, nil
		}
	}
	if strings.TrimSpace(tokenFile) == "" {
		return "", nil
	}

	tokens, err := readTokens(tokenFile)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("token file %s is empty", tokenFile)
	}
	return tokens[0], nil
}

// TokenSet is a fixed set of accepted bearer tokens.
type TokenSet struct {
	tokens map[string]struct{}
}

// LoadTokenSet reads one token per non-empty line of path. A missing file
// yields an empty set that rejects every token.
func LoadTokenSet(path string) (*TokenSet, error) {
	set := &TokenSet{tokens: make(map[string]struct{})}
	tokens, err := readTokens(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return nil, err
	}
	for _, token := range tokens {
		set.tokens[token] = struct{}{}
	}
	return set, nil
}

// Len returns the number of accepted tokens.
func (s *TokenSet) Len() int {
	return len(s.tokens)
}

// IsValidToken reports whether the provided token is authorized.
func (s *TokenSet) IsValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	_, ok := s.tokens[token]
	return ok
}

func readTokens(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var tokens []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if token := strings.TrimSpace(scanner.Text()); token != "" {
			tokens = append(tokens, token)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	return tokens, nil
}
