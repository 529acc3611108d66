// Package origin decides whether a claimed browsing-context origin may act as a block's parent.
package origin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	SecurePrefix   = "https://"
	InsecurePrefix = "http://"

	// DefaultTerm is the host suffix accepted when no whitelist override is supplied.
	DefaultTerm = "marketingcloudapps.com"

	// TesterOrigin is the external conformance harness; it is accepted regardless of whitelist.
	TesterOrigin = "https://blocktester.herokuapp.com"
)

var ErrInvalidOrigin = errors.New("origin: invalid origin")

// DefaultWhitelist returns a fresh copy of the built-in whitelist.
func DefaultWhitelist() []string {
	return []string{DefaultTerm}
}

// Validator checks candidate parent origins against host-suffix terms.
type Validator struct {
	whitelist     []string
	allowInsecure bool
}

// New builds a validator. A nil whitelist selects DefaultWhitelist; an empty, non-nil
// whitelist rejects every origin except TesterOrigin.
func New(whitelist []string, allowInsecure bool) *Validator {
	var terms []string
	if whitelist == nil {
		terms = DefaultWhitelist()
	} else {
		terms = make([]string, 0, len(whitelist))
		for _, term := range whitelist {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			terms = append(terms, term)
		}
	}
	return &Validator{whitelist: terms, allowInsecure: allowInsecure}
}

func (v *Validator) AllowInsecure() bool {
	return v.allowInsecure
}

func (v *Validator) Whitelist() []string {
	out := make([]string, len(v.whitelist))
	copy(out, v.whitelist)
	return out
}

// IsTrusted reports whether candidate is an acceptable parent origin.
func (v *Validator) IsTrusted(candidate string) bool {
	if !v.allowInsecure && !strings.HasPrefix(candidate, SecurePrefix) {
		return false
	}
	if candidate == TesterOrigin {
		return true
	}
	host := Host(candidate, v.allowInsecure)
	for _, term := range v.whitelist {
		if strings.HasSuffix(host, term) {
			return true
		}
	}
	return false
}

// Host strips the transport prefix, path and port from candidate. The insecure prefix is
// only stripped when allowInsecure is set.
func Host(candidate string, allowInsecure bool) string {
	host := candidate
	switch {
	case strings.HasPrefix(host, SecurePrefix):
		host = strings.TrimPrefix(host, SecurePrefix)
	case allowInsecure && strings.HasPrefix(host, InsecurePrefix):
		host = strings.TrimPrefix(host, InsecurePrefix)
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// Canonical returns scheme://host[:port] for rawURL with default ports removed. Websocket
// schemes map to their http equivalents so both ends of a socket agree on one origin.
func Canonical(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidOrigin, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidOrigin, rawURL)
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port, nil
	}
	return scheme + "://" + host, nil
}
