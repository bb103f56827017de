package editor

import "strings"

// FormatCIDR turns a single address into a host prefix. Anything containing a
// colon is treated as IPv6; no further validation is attempted.
func FormatCIDR(ip string) string {
	if strings.Contains(ip, ":") {
		return ip + "/128"
	}
	return ip + "/32"
}
