package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/danmuck/blocksdk/internal/auth"
	"github.com/danmuck/blocksdk/internal/blocksdk"
	"github.com/danmuck/blocksdk/internal/channel/wschan"
	"github.com/danmuck/blocksdk/internal/editor"
	"github.com/danmuck/blocksdk/internal/protocol/session"
)

// DialConfig is the websocket side of a block config.
func (c BlockConfig) DialConfig() wschan.DialConfig {
	target := c.EditorURL
	if c.Key != "" {
		target += "?key=" + url.QueryEscape(c.Key)
	}
	return wschan.DialConfig{
		URL:              target,
		Origin:           c.Origin,
		Header:           auth.Header(c.Token),
		MaxRetryInterval: c.MaxRetryInterval,
		MaxAttempts:      c.MaxAttempts,
		MaxMessageBytes:  c.MaxMessageBytes,
	}
}

// SDKConfig is the session side of a block config.
func (c BlockConfig) SDKConfig(opener blocksdk.Opener) blocksdk.Config {
	retries := c.RetryBudget
	if retries == 0 {
		retries = -1
	}
	out := blocksdk.Config{
		Whitelist:     c.Whitelist,
		AllowInsecure: c.AllowInsecure,
		Opener:        opener,
		Session: session.Config{
			Retry:       session.RetryPolicy{MaxRetries: retries, Delay: c.RetryDelay},
			CallTimeout: c.CallTimeout,
		},
	}
	if c.Tabs != nil {
		out.Tabs = make([]blocksdk.Tab, 0, len(c.Tabs))
		for _, key := range c.Tabs {
			out.Tabs = append(out.Tabs, blocksdk.BuiltinTab(key))
		}
	}
	if c.BlockEditorWidth != "" {
		if px, err := strconv.Atoi(c.BlockEditorWidth); err == nil {
			out.BlockEditorWidth = px
		} else {
			out.BlockEditorWidth = c.BlockEditorWidth
		}
	}
	return out
}

// ServerConfig is the editor server built from an editor config.
func (c EditorConfig) ServerConfig() (editor.ServerConfig, error) {
	userData, err := json.Marshal(c.UserData)
	if err != nil {
		return editor.ServerConfig{}, fmt.Errorf("encode user_data: %w", err)
	}
	out := editor.ServerConfig{
		Name:            c.Name,
		ListenAddr:      c.ListenAddr,
		Origin:          c.Origin,
		BlockWhitelist:  c.BlockWhitelist,
		AllowInsecure:   c.AllowInsecure,
		UserData:        userData,
		MaxMessageBytes: c.MaxMessageBytes,
	}
	if c.Token != "" {
		out.Auth = auth.StaticToken{Token: c.Token}
	}
	return out, nil
}
