package collector

import "testing"

func TestHostname(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "https://a.example.com/path?q=1", "a.example.com"},
		{"port dropped", "http://a.example.com:8080/", "a.example.com"},
		{"lower cased", "https://WWW.Example.COM/", "www.example.com"},
		{"ipv4 literal", "http://10.0.0.1/", "10.0.0.1"},
		{"ipv6 literal keeps brackets", "http://[2001:DB8::1]:443/", "[2001:db8::1]"},
		{"punycode", "https://bücher.example/", "xn--bcher-kva.example"},
		{"underscore label", "https://_acme.example.com/", "_acme.example.com"},
		{"userinfo ignored", "https://user:pw@a.example.com/", "a.example.com"},
		{"no host", "about:blank", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Hostname(tc.url)
			if err != nil {
				t.Fatalf("Hostname(%q) returned error: %v", tc.url, err)
			}
			if got != tc.want {
				t.Fatalf("Hostname(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}

func TestHostnameRejectsMalformedURLs(t *testing.T) {
	for _, raw := range []string{"", "example.com", "http://bad host/", "http://[::1/"} {
		if _, err := Hostname(raw); err == nil {
			t.Errorf("Hostname(%q) returned no error", raw)
		}
	}
}
