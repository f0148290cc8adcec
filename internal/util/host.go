package util

import "strings"

// knownTwoPartTLDs are suffixes where the registrable domain has three labels.
var knownTwoPartTLDs = map[string]bool{
	"co.uk": true, "com.au": true, "co.jp": true, "co.nz": true, "com.br": true,
	"org.uk": true, "gov.uk": true, "ac.uk": true, "co.za": true, "com.mx": true,
	"com.sg": true, "co.in": true, "net.au": true, "org.au": true, "ca.us": true,
}

// BaseDomain returns the registrable domain of host, e.g. "www.mandy.co.uk" -> "mandy.co.uk".
func BaseDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	n := 2
	if knownTwoPartTLDs[strings.Join(parts[len(parts)-2:], ".")] {
		n = 3
	}
	if len(parts) < n {
		return host
	}
	return strings.Join(parts[len(parts)-n:], ".")
}

// HostAllowed reports whether host is in allowed, either exactly or as a
// subdomain sharing an allowed entry's registrable domain.
func HostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	base := BaseDomain(host)
	for _, domain := range allowed {
		domain = strings.ToLower(domain)
		if host == domain || base == domain {
			return true
		}
	}
	return false
}
