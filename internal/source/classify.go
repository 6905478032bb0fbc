package source

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"ragchat/internal/domain"
)

// Classify maps a filename in the sources directory to its kind. It looks at
// the name only: ".pdf" is a document, a ".txt" whose name mentions youtube
// is a YouTube pointer, any other ".txt" is a web pointer.
func Classify(filename string) (domain.SourceKind, bool) {
	base := strings.ToLower(filepath.Base(filename))
	switch filepath.Ext(base) {
	case ".pdf":
		return domain.KindPDF, true
	case ".txt":
		if strings.Contains(base, "youtube") {
			return domain.KindYouTube, true
		}
		return domain.KindURL, true
	}
	return "", false
}

// PointerName is the filename used for a pointer file holding rawURL. The
// kind prefix keeps Classify consistent with the kind it was added as.
func PointerName(kind domain.SourceKind, rawURL string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rawURL))
	return fmt.Sprintf("%s-%016x.txt", kind, h.Sum64())
}

// ReadPointer returns the URL stored in a pointer file.
func ReadPointer(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
		}
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%w: empty pointer file %s", domain.ErrEmptyContent, path)
}

// VideoID extracts the YouTube video id from watch, short, shorts and embed URLs.
func VideoID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, prefix)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch" || u.Path == "/watch/":
			id = u.Query().Get("v")
		case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
			id = segments[1]
		}
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// NormalizeYouTubeURL rewrites any YouTube video URL to the canonical
// https://www.youtube.com/watch?v=<id> form, dropping other parameters.
// Anything that is not a YouTube video URL is returned unchanged.
func NormalizeYouTubeURL(raw string) string {
	id, ok := VideoID(raw)
	if !ok {
		return raw
	}
	return "https://www.youtube.com/watch?v=" + id
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: not an http(s) URL: %q", domain.ErrUnsupportedSource, raw)
	}
	return raw, nil
}
