// Package netutil provides small helpers for classifying and dissecting
// network target strings before any network activity happens.
//
// It includes functions to:
//   - Detect IP literals (IPv4 and IPv6, with or without brackets).
//   - Detect CIDR-style suffixes on raw user input.
//   - Split host:port strings without rejecting bare hosts or IPv6 literals.
//   - Extract the first whitespace-delimited token from free-form input.
//
// Functions:
//
//   - HostIsIP(host string) bool
//     Reports whether host is a literal IP address (brackets stripped first).
//
//   - LooksLikeCIDR(token string) bool
//     Reports whether token carries a trailing /<digits> prefix-length suffix.
//
//   - FirstToken(raw string) string
//     Returns the first whitespace-delimited token of raw, trimmed.
//
//   - SplitHostPortLenient(hostport string) (host string, port int)
//     Splits host:port, tolerating missing ports and IPv6 bracket notation.
//
//   - StripBrackets(host string) string
//     Removes surrounding square brackets from an IPv6 literal.
package netutil

import (
	"net"
	"strconv"
	"strings"
)

// HostIsIP reports whether host is a literal IP address. IPv6 literals may be
// passed with or without surrounding brackets.
func HostIsIP(host string) bool {
	if host == "" {
		return false
	}
	return net.ParseIP(StripBrackets(host)) != nil
}

// StripBrackets removes the surrounding square brackets of an IPv6 literal
// ("[::1]" -> "::1"). Other inputs are returned unchanged.
func StripBrackets(host string) string {
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		return host[1 : len(host)-1]
	}
	return host
}

// FirstToken returns the first whitespace-delimited token of raw with
// surrounding whitespace removed. Empty input yields an empty string.
func FirstToken(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// LooksLikeCIDR reports whether token ends in a /<digits> suffix, the shape
// users type for CIDR ranges ("10.0.0.0/24"). The base does not have to be a
// valid address; classification happens before resolution so a typo'd range
// is still flagged as range-shaped input rather than treated as a hostname.
func LooksLikeCIDR(token string) bool {
	idx := strings.LastIndex(token, "/")
	if idx <= 0 || idx == len(token)-1 {
		return false
	}
	suffix := token[idx+1:]
	if len(suffix) > 3 {
		return false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	prefixLen, err := strconv.Atoi(suffix)
	if err != nil {
		return false
	}
	return prefixLen <= 128
}

// SplitHostPortLenient splits a host:port pair, returning port 0 when no
// port is present. Unlike net.SplitHostPort it does not error on bare hosts,
// and it understands bracketed IPv6 literals ("[::1]:8443").
func SplitHostPortLenient(hostport string) (string, int) {
	if hostport == "" {
		return "", 0
	}

	// Bracketed IPv6 first; the colon test below would misfire on it.
	if strings.HasPrefix(hostport, "[") {
		host, portStr, err := net.SplitHostPort(hostport)
		if err != nil {
			return StripBrackets(hostport), 0
		}
		port, _ := strconv.Atoi(portStr)
		return host, port
	}

	// More than one colon with no brackets means a bare IPv6 literal.
	if strings.Count(hostport, ":") > 1 {
		return hostport, 0
	}

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return host, 0
	}
	return host, port
}
