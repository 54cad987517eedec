package callback

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// privateNets are the RFC1918 / link-local / loopback ranges a callback URL
// must not resolve to outside development environments.
var privateNets = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"127.0.0.0/8",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// ValidateURL enforces the SSRF guard: the URL must use http/https; in
// non-development environments it must not resolve to a private/internal
// address, and its host must match the configured allow-list (exact host or
// a subdomain of an allowed domain; an empty allow-list permits all, which
// is intended only for development).
func ValidateURL(rawURL string, environment string, allowedDomains []string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("callback URL must use http or https, got %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("callback URL has no host")
	}

	if environment != "development" {
		if strings.EqualFold(host, "localhost") {
			return fmt.Errorf("callback URL must not target localhost")
		}
		if isPrivateAddress(host) {
			return fmt.Errorf("callback URL must not resolve to a private address")
		}
	}

	if !hostAllowed(host, allowedDomains) {
		return fmt.Errorf("callback URL host %q is not in the allow-list", host)
	}
	return nil
}

func isPrivateAddress(host string) bool {
	ips := resolveIPs(host)
	for _, ip := range ips {
		for _, n := range privateNets {
			if n.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func resolveIPs(host string) []net.IP {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	return ips
}

// hostAllowed reports whether host equals, or is a subdomain of, some entry
// in allowed. An empty allow-list permits any host.
func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
