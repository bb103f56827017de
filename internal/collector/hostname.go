package collector

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// hostProfile maps hostnames the way a browser URL parser does: lower case,
// punycode for non-ASCII labels, and no STD3 restriction so "_srv" labels pass.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// Hostname extracts the host part of rawURL. Ports, paths and queries never
// take part in matching. IPv6 literals keep their brackets.
func Hostname(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("parse url %q: missing scheme", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return "", nil
	}

	if strings.Contains(host, ":") {
		return "[" + strings.ToLower(host) + "]", nil
	}

	if isASCII(host) {
		return strings.ToLower(host), nil
	}

	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("parse url %q: invalid hostname: %w", rawURL, err)
	}
	return ascii, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
