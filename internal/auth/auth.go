// Package auth gates block connections to the editor with a shared token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderAuthorization = "Authorization"
	QueryToken          = "token"
	bearerPrefix        = "Bearer "
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a connection token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// FromRequest extracts a bearer token, falling back to the token query parameter
// for clients that cannot set headers on an upgrade.
func FromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if h := strings.TrimSpace(r.Header.Get(HeaderAuthorization)); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryToken))
}

// Header returns the request header carrying token.
func Header(token string) http.Header {
	h := http.Header{}
	if token = strings.TrimSpace(token); token != "" {
		h.Set(HeaderAuthorization, bearerPrefix+token)
	}
	return h
}
