package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindBlock  = "block"
	KindEditor = "editor"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindBlock:
		return blockTemplate, nil
	case KindEditor:
		return editorTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindBlock:
		_, err := LoadBlockConfig(path)
		return err
	case KindEditor:
		_, err := LoadEditorConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const blockTemplate = `editor_url = "ws://127.0.0.1:9300/block"
origin = "http://localhost:7000"
key = "demo"
token = ""
whitelist = ["127.0.0.1", "localhost"]
allow_insecure = true
retry_budget = 5
retry_delay = "20ms"
call_timeout = "5s"
block_editor_width = ""
max_retry_interval = "5s"
max_attempts = 3
max_message_bytes = 1048576
# tabs = ["htmlblock", "stylingblock"]
`

const editorTemplate = `name = "editor"
listen_addr = "127.0.0.1:9300"
origin = "http://127.0.0.1:9300"
block_whitelist = ["localhost", "127.0.0.1"]
allow_insecure = true
token = ""
watch = true
max_message_bytes = 1048576

[user_data]
stack = "s7"
`
