// Package privacy reduces request data to non-identifying descriptors that are
// safe to write to logs. Names and full email addresses never leave this package.
package privacy

import (
	"fmt"
	"net"
	"strings"

	"github.com/mssola/useragent"
)

// AnonymizeIP truncates an IP address to its network prefix.
//
// IPv4 addresses keep the /24 ("192.168.1.47" -> "192.168.1.0"); IPv6 addresses
// keep the /48 ("2001:db8:85a3::8a2e:370:7334" -> "2001:0db8:85a3::").
//
// Returns "invalid" for unparseable input and "unknown" for empty strings.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// EmailDomain returns the lowercased organisation domain of an address, which is
// the only part of an email that may be logged. Returns "unknown" when absent.
func EmailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "unknown"
	}
	return strings.ToLower(email[at+1:])
}

// ClientFamily summarises a User-Agent as "browser/os/platform" without the
// version detail that would make it a fingerprint.
func ClientFamily(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}

	browser, _ := ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os := strings.ToLower(strings.TrimSpace(ua.OSInfo().Name))
	if os == "" {
		os = "unknown"
	}
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}
	return browser + "/" + os + "/" + platform
}
