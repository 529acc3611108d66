package blocksdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	logs "github.com/danmuck/blocksdk/internal/logging"
)

var (
	ErrNoOpener      = errors.New("blocksdk: no opener configured")
	ErrAppIDRequired = errors.New("blocksdk: app id required")
	ErrAuthURL       = errors.New("blocksdk: auth url, client id and redirect url required")
	ErrNoStack       = errors.New("blocksdk: user data carries no stack")
)

// Opener loads an auth page out of band, the way a hidden frame would.
type Opener interface {
	Open(rawURL string) error
}

// OpenerFunc adapts a function into an Opener.
type OpenerFunc func(rawURL string) error

func (f OpenerFunc) Open(rawURL string) error {
	return f(rawURL)
}

// Auth2Options describes an enhanced-package OAuth2 authorization request.
type Auth2Options struct {
	AuthURL     string
	ClientID    string
	RedirectURL string
	Scope       []string
	State       string
}

// userContext is the part of getUserData the SSO flow needs.
type userContext struct {
	Stack string `json:"stack"`
}

// TriggerAuth asks the editor for the user's stack and opens the SSO page for appID on it.
// The open happens from the getUserData callback; failures there are logged, not returned.
func (s *SDK) TriggerAuth(appID string) error {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return ErrAppIDRequired
	}
	if s.opener == nil {
		return ErrNoOpener
	}
	return s.GetUserData(func(raw json.RawMessage) {
		var user userContext
		if err := json.Unmarshal(raw, &user); err != nil || strings.TrimSpace(user.Stack) == "" {
			logs.Warnf("blocksdk.TriggerAuth app=%q err=%v", appID, errors.Join(ErrNoStack, err))
			return
		}
		target := SSOURL(user.Stack, appID)
		if err := s.opener.Open(target); err != nil {
			logs.Warnf("blocksdk.TriggerAuth open failed app=%q err=%v", appID, err)
			return
		}
		logs.Debugf("blocksdk.TriggerAuth opened app=%q stack=%q", appID, user.Stack)
	})
}

// TriggerAuth2 opens the OAuth2 authorize page described by opts.
func (s *SDK) TriggerAuth2(opts Auth2Options) error {
	if s.opener == nil {
		return ErrNoOpener
	}
	target, err := AuthorizeURL(opts)
	if err != nil {
		return err
	}
	return s.opener.Open(target)
}

// SSOURL builds the SSO login URL for a stack. QA stacks such as "qa1s1" live under "s1.qa1".
func SSOURL(stack, appID string) string {
	stack = stackHost(strings.TrimSpace(stack))
	return fmt.Sprintf("https://mc.%s.exacttarget.com/cloud/tools/SSO.aspx?appId=%s&restToken=1&hub=1",
		stack, url.QueryEscape(appID))
}

func stackHost(stack string) string {
	if strings.HasPrefix(stack, "qa") && len(stack) >= 5 {
		return stack[3:5] + "." + stack[0:3]
	}
	return stack
}

// AuthorizeURL builds the authorization-code request URL. Scope entries are space joined.
func AuthorizeURL(opts Auth2Options) (string, error) {
	base := strings.TrimSpace(opts.AuthURL)
	if base == "" || strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.RedirectURL) == "" {
		return "", ErrAuthURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("v2/authorize?response_type=code&client_id=")
	b.WriteString(componentEscape(opts.ClientID))
	b.WriteString("&redirect_uri=")
	b.WriteString(componentEscape(opts.RedirectURL))
	if len(opts.Scope) > 0 {
		b.WriteString("&scope=")
		b.WriteString(componentEscape(strings.Join(opts.Scope, " ")))
	}
	if opts.State != "" {
		b.WriteString("&state=")
		b.WriteString(componentEscape(opts.State))
	}
	return b.String(), nil
}

// componentEscape escapes like a URI component: spaces become %20, not '+'.
func componentEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
