package transport

import (
	"errors"
	"strings"
)

// ErrEmptyURL is returned when a URL part is missing.
var ErrEmptyURL = errors.New("url and endpoint must both be non-empty")

// JoinURL joins base and endpoint with exactly one slash.
func JoinURL(base, endpoint string) (string, error) {
	if base == "" || endpoint == "" {
		return "", ErrEmptyURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/"), nil
}

// EnsureAPIPath appends apiPath to base unless base already contains it.
func EnsureAPIPath(base, apiPath string) string {
	if apiPath == "" || strings.Contains(base, strings.Trim(apiPath, "/")) {
		return base
	}
	joined, err := JoinURL(base, apiPath)
	if err != nil {
		return base
	}
	return joined
}
