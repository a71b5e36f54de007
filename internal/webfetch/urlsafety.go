package webfetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLSafetyError reports why a URL was blocked before it was ever
// dialed, so the tool result can surface it as plain error text.
type URLSafetyError struct {
	URL    string
	Reason string
}

func (e *URLSafetyError) Error() string {
	return fmt.Sprintf("URL blocked: %s", e.Reason)
}

// validateURLSafety guards against SSRF: only http/https, and the
// hostname's resolved IPs must not land in loopback, private,
// link-local, multicast, unspecified, or known cloud-metadata ranges.
func validateURLSafety(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("scheme %q not allowed, only http/https", parsed.Scheme)}
	}

	host := parsed.Hostname()
	if host == "" {
		return &URLSafetyError{URL: urlStr, Reason: "empty hostname"}
	}
	if isCloudMetadataHost(host) {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("cloud metadata hostname blocked: %s", host)}
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		ip := net.ParseIP(host)
		if ip == nil {
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("DNS resolution failed: %v", err)}
		}
		ips = []net.IP{ip}
	}

	for _, ip := range ips {
		if reason := isBlockedIP(ip); reason != "" {
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("%s (%s resolves to %s)", reason, host, ip.String())}
		}
	}

	return nil
}

func isBlockedIP(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback address blocked"
	case ip.IsPrivate():
		return "private network address blocked"
	case ip.Equal(net.ParseIP("169.254.169.254")):
		return "cloud metadata address blocked"
	case ip.IsLinkLocalUnicast():
		return "link-local address blocked"
	case ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsMulticast():
		return "multicast address blocked"
	case ip.IsUnspecified():
		return "unspecified address blocked"
	}
	if ip4 := ip.To4(); ip4 != nil && !ip.Equal(ip4) {
		if reason := isBlockedIP(ip4); reason != "" {
			return reason + " (IPv4-mapped)"
		}
	}
	return ""
}

func isCloudMetadataHost(host string) bool {
	host = strings.ToLower(host)
	metadataHosts := []string{
		"metadata.google.internal",
		"metadata.goog",
		"kubernetes.default.svc",
		"kubernetes.default",
		"metadata",
	}
	for _, mh := range metadataHosts {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return true
		}
	}
	return false
}
