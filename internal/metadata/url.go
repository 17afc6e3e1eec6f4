package metadata

import (
	"errors"
	"net/url"
	"strings"
)

// ResolveURL joins base with a slash separated relative path, escaping each
// segment so that spaces, quotes and non-ASCII titles survive in the feed.
func ResolveURL(base, relative string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("empty base url")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !parsed.IsAbs() {
		return "", errors.New("base url must be absolute")
	}

	segments := strings.Split(strings.Trim(strings.ReplaceAll(relative, "\\", "/"), "/"), "/")
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" || segment == "." {
			continue
		}
		escaped = append(escaped, url.PathEscape(segment))
	}

	return strings.TrimRight(parsed.String(), "/") + "/" + strings.Join(escaped, "/"), nil
}
