package fetcher

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeDomain reduces a domain or URL to a bare lowercase host:
// "https://WWW.Example.com:443/docs" becomes "example.com".
func NormalizeDomain(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("domain cannot be empty")
	}
	if !strings.Contains(input, "://") {
		input = "https://" + input
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", input, err)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("invalid domain %q: no host", input)
	}
	return host, nil
}

// SameDomain reports whether two URLs share a normalized domain
func SameDomain(a, b string) bool {
	da, err := NormalizeDomain(a)
	if err != nil {
		return false
	}
	db, err := NormalizeDomain(b)
	if err != nil {
		return false
	}
	return da == db
}

// ExtractPath returns the path of a URL, or "/" when it has none
func ExtractPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
