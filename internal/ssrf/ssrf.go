// Package ssrf guards outbound URL-accessing tools against requests
// targeting localhost, private networks, or cloud metadata endpoints.
package ssrf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var blockedHostSuffixes = []string{".local", ".internal"}

var metadataHosts = map[string]bool{
	"169.254.169.254": true,
	"metadata.google.internal": true,
	"metadata.azure.com":       true,
}

// Guard validates rawURL, returning an error if it targets a disallowed
// scheme, host, or address. Call this before any network I/O a tool
// performs against a user- or model-supplied URL.
func Guard(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("ssrf: invalid url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("ssrf: scheme %q is not allowed", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("ssrf: url has no host")
	}
	if host == "localhost" {
		return fmt.Errorf("ssrf: localhost is not allowed")
	}
	if metadataHosts[host] {
		return fmt.Errorf("ssrf: cloud metadata host %q is not allowed", host)
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("ssrf: host %q (%s) is not allowed", host, suffix)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := guardIP(ip); err != nil {
			return err
		}
		return nil
	}

	// Hostname, not a literal IP: resolve and check every candidate address,
	// since a DNS answer could point at a private/loopback/metadata address.
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("ssrf: resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if err := guardIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func guardIP(ip net.IP) error {
	if ip.IsLoopback() {
		return fmt.Errorf("ssrf: loopback address %s is not allowed", ip)
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("ssrf: link-local address %s is not allowed", ip)
	}
	if ip.IsPrivate() {
		return fmt.Errorf("ssrf: private address %s is not allowed", ip)
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("ssrf: unspecified address %s is not allowed", ip)
	}
	if v4 := ip.To4(); v4 != nil && v4[0] == 0 {
		return fmt.Errorf("ssrf: \"this network\" address %s is not allowed", ip)
	}
	if ip.String() == "169.254.169.254" {
		return fmt.Errorf("ssrf: cloud metadata address %s is not allowed", ip)
	}
	return nil
}
