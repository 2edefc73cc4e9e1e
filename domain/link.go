package domain

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ExtractVideoID derives the canonical video id from a submitted link.
// Accepted forms are youtu.be/<id>, youtube.com/watch?v=<id>, and the
// /shorts/, /embed/ and /live/ paths on any youtube.com host.
func ExtractVideoID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", Wrap(ErrValidation, "submit", "parse link", "source link is required", nil)
	}
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return "", Wrap(ErrValidation, "submit", "parse link", "invalid video link", err)
	}
	host := strings.ToLower(parsed.Hostname())
	var id string
	switch {
	case host == "youtu.be":
		id = firstPathSegment(parsed.Path)
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		id = parsed.Query().Get("v")
		if id == "" {
			id = pathIDAfter(parsed.Path, "shorts", "embed", "live")
		}
	default:
		return "", Wrap(ErrValidation, "submit", "parse link", "unsupported video host "+host, nil)
	}
	if !videoIDPattern.MatchString(id) {
		return "", Wrap(ErrValidation, "submit", "parse link", "invalid video link", nil)
	}
	return id, nil
}

func firstPathSegment(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}

func pathIDAfter(path string, prefixes ...string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	for _, prefix := range prefixes {
		if parts[0] == prefix {
			return parts[1]
		}
	}
	return ""
}
