package downloader

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var idUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Path prefixes whose next segment is the video id
var idPathPrefixes = []string{"/shorts/", "/live/", "/embed/", "/v/"}

// VideoID derives the progress table key for a submitted URL.
func VideoID(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err == nil {
		if v := cleanID(u.Query().Get("v")); v != "" {
			return v
		}

		if strings.EqualFold(u.Hostname(), "youtu.be") {
			if id := cleanID(strings.Trim(u.Path, "/")); id != "" {
				return id
			}
		}

		for _, prefix := range idPathPrefixes {
			if i := strings.Index(u.Path, prefix); i >= 0 {
				rest := u.Path[i+len(prefix):]
				if j := strings.Index(rest, "/"); j >= 0 {
					rest = rest[:j]
				}
				if id := cleanID(rest); id != "" {
					return id
				}
			}
		}
	}

	if strings.Contains(rawURL, "=") {
		parts := strings.Split(rawURL, "=")
		if id := cleanID(parts[len(parts)-1]); id != "" {
			return id
		}
	}

	if err == nil {
		if seg := path.Base(strings.TrimRight(u.Path, "/")); seg != "." && seg != "/" {
			if id := cleanID(seg); id != "" {
				return id
			}
		}
	}

	return uuid.NewString()
}

func cleanID(s string) string {
	return idUnsafe.ReplaceAllString(s, "")
}

// IsYouTubeURL reports whether rawURL points at YouTube
func IsYouTubeURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}
