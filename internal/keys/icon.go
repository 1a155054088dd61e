package keys

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// sanitizeKey lowercases s and collapses anything outside [a-z0-9._-] into a
// single hyphen.
func sanitizeKey(s string) string {
	s = strings.ToLower(s)
	s = unsafeChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Icon returns the object key for a cached icon URL: the host for
// readability, then a name-based UUID of the full URL so that distinct URLs
// never share an object.
func Icon(iconURL string) (string, error) {
	u, err := url.Parse(iconURL)
	if err != nil {
		return "", fmt.Errorf("invalid icon url %q: %w", iconURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("icon url %q has no host", iconURL)
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(iconURL))
	return fmt.Sprintf("icons/%s/%s", sanitizeKey(u.Host), id), nil
}
