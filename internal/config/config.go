// Package config loads the TOML files for blockctl and editorctl.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/blocksdk/internal/origin"
	"github.com/danmuck/blocksdk/internal/protocol/session"
)

var (
	ErrMissingEditorURL = errors.New("config: editor_url required")
	ErrMissingOrigin    = errors.New("config: origin required")
	ErrMissingListen    = errors.New("config: listen_addr required")
	ErrNegativeDuration = errors.New("config: durations must not be negative")
	ErrNegativeSize     = errors.New("config: max_message_bytes must not be negative")
)

// BlockConfig drives blockctl.
type BlockConfig struct {
	EditorURL string
	Origin    string
	// Key selects the block's state on the editor.
	Key   string
	Token string
	// Whitelist holds the trusted editor host suffixes. Nil keeps the hosted default.
	Whitelist        []string
	AllowInsecure    bool
	RetryBudget      int
	RetryDelay       time.Duration
	CallTimeout      time.Duration
	BlockEditorWidth string
	MaxRetryInterval time.Duration
	MaxAttempts      int
	// MaxMessageBytes bounds one websocket frame; zero keeps the transport default.
	MaxMessageBytes int64
	// Tabs lists built-in editor tabs announced on startup. Nil announces nothing.
	Tabs []string
}

func DefaultBlockConfig() BlockConfig {
	return BlockConfig{
		EditorURL:        "ws://127.0.0.1:9300/block",
		Origin:           "http://localhost:7000",
		Whitelist:        []string{"127.0.0.1", "localhost"},
		AllowInsecure:    true,
		RetryBudget:      session.DefaultRetryBudget,
		RetryDelay:       session.DefaultRetryDelay,
		CallTimeout:      5 * time.Second,
		MaxRetryInterval: 5 * time.Second,
		MaxAttempts:      3,
	}
}

type blockFile struct {
	EditorURL        string   `toml:"editor_url"`
	Origin           string   `toml:"origin"`
	Key              string   `toml:"key"`
	Token            string   `toml:"token"`
	Whitelist        []string `toml:"whitelist"`
	AllowInsecure    bool     `toml:"allow_insecure"`
	RetryBudget      int      `toml:"retry_budget"`
	RetryDelay       string   `toml:"retry_delay"`
	CallTimeout      string   `toml:"call_timeout"`
	BlockEditorWidth string   `toml:"block_editor_width"`
	MaxRetryInterval string   `toml:"max_retry_interval"`
	MaxAttempts      int      `toml:"max_attempts"`
	MaxMessageBytes  int64    `toml:"max_message_bytes"`
	Tabs             []string `toml:"tabs"`
}

// LoadBlockConfig overlays the keys present in path onto DefaultBlockConfig.
func LoadBlockConfig(path string) (BlockConfig, error) {
	cfg := DefaultBlockConfig()

	var raw blockFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return BlockConfig{}, fmt.Errorf("load block config: %w", err)
	}

	if meta.IsDefined("editor_url") {
		cfg.EditorURL = strings.TrimSpace(raw.EditorURL)
	}
	if meta.IsDefined("origin") {
		cfg.Origin = strings.TrimSpace(raw.Origin)
	}
	if meta.IsDefined("key") {
		cfg.Key = strings.TrimSpace(raw.Key)
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("whitelist") {
		cfg.Whitelist = normalizeTerms(raw.Whitelist)
	}
	if meta.IsDefined("allow_insecure") {
		cfg.AllowInsecure = raw.AllowInsecure
	}
	if meta.IsDefined("retry_budget") {
		cfg.RetryBudget = raw.RetryBudget
	}
	if meta.IsDefined("retry_delay") {
		if cfg.RetryDelay, err = parseDuration("retry_delay", raw.RetryDelay); err != nil {
			return BlockConfig{}, err
		}
	}
	if meta.IsDefined("call_timeout") {
		if cfg.CallTimeout, err = parseDuration("call_timeout", raw.CallTimeout); err != nil {
			return BlockConfig{}, err
		}
	}
	if meta.IsDefined("block_editor_width") {
		cfg.BlockEditorWidth = strings.TrimSpace(raw.BlockEditorWidth)
	}
	if meta.IsDefined("max_retry_interval") {
		if cfg.MaxRetryInterval, err = parseDuration("max_retry_interval", raw.MaxRetryInterval); err != nil {
			return BlockConfig{}, err
		}
	}
	if meta.IsDefined("max_attempts") {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("tabs") {
		cfg.Tabs = normalizeTerms(raw.Tabs)
	}

	if err := ValidateBlockConfig(cfg); err != nil {
		return BlockConfig{}, err
	}
	return cfg, nil
}

func ValidateBlockConfig(cfg BlockConfig) error {
	if strings.TrimSpace(cfg.EditorURL) == "" {
		return ErrMissingEditorURL
	}
	if _, err := origin.Canonical(cfg.EditorURL); err != nil {
		return fmt.Errorf("editor_url: %w", err)
	}
	if strings.TrimSpace(cfg.Origin) == "" {
		return ErrMissingOrigin
	}
	if _, err := origin.Canonical(cfg.Origin); err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	if cfg.RetryDelay < 0 || cfg.CallTimeout < 0 || cfg.MaxRetryInterval < 0 {
		return ErrNegativeDuration
	}
	if cfg.RetryBudget < 0 {
		return fmt.Errorf("retry_budget: %w", session.ErrNegativeTTL)
	}
	if cfg.MaxMessageBytes < 0 {
		return ErrNegativeSize
	}
	return nil
}

// EditorConfig drives editorctl.
type EditorConfig struct {
	Name           string
	ListenAddr     string
	Origin         string
	BlockWhitelist []string
	AllowInsecure  bool
	Token          string
	// UserData is returned verbatim by getUserData.
	UserData map[string]any
	// Watch reloads block_whitelist and allow_insecure when the file changes.
	Watch           bool
	MaxMessageBytes int64
}

func DefaultEditorConfig() EditorConfig {
	return EditorConfig{
		Name:           "editor",
		ListenAddr:     "127.0.0.1:9300",
		Origin:         "http://127.0.0.1:9300",
		BlockWhitelist: []string{"localhost", "127.0.0.1"},
		AllowInsecure:  true,
		UserData:       map[string]any{},
		Watch:          true,
	}
}

type editorFile struct {
	Name            string         `toml:"name"`
	ListenAddr      string         `toml:"listen_addr"`
	Origin          string         `toml:"origin"`
	BlockWhitelist  []string       `toml:"block_whitelist"`
	AllowInsecure   bool           `toml:"allow_insecure"`
	Token           string         `toml:"token"`
	UserData        map[string]any `toml:"user_data"`
	Watch           bool           `toml:"watch"`
	MaxMessageBytes int64          `toml:"max_message_bytes"`
}

// LoadEditorConfig overlays the keys present in path onto DefaultEditorConfig.
func LoadEditorConfig(path string) (EditorConfig, error) {
	cfg := DefaultEditorConfig()

	var raw editorFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return EditorConfig{}, fmt.Errorf("load editor config: %w", err)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("origin") {
		cfg.Origin = strings.TrimSpace(raw.Origin)
	}
	if meta.IsDefined("block_whitelist") {
		cfg.BlockWhitelist = normalizeTerms(raw.BlockWhitelist)
	}
	if meta.IsDefined("allow_insecure") {
		cfg.AllowInsecure = raw.AllowInsecure
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("user_data") && raw.UserData != nil {
		cfg.UserData = raw.UserData
	}
	if meta.IsDefined("watch") {
		cfg.Watch = raw.Watch
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}

	if err := ValidateEditorConfig(cfg); err != nil {
		return EditorConfig{}, err
	}
	return cfg, nil
}

func ValidateEditorConfig(cfg EditorConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return ErrMissingListen
	}
	if strings.TrimSpace(cfg.Origin) == "" {
		return ErrMissingOrigin
	}
	if _, err := origin.Canonical(cfg.Origin); err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	if cfg.MaxMessageBytes < 0 {
		return ErrNegativeSize
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, term := range in {
		v := strings.TrimSpace(term)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
