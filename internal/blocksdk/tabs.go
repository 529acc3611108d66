package blocksdk

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrTabKey = errors.New("blocksdk: tab key required")

// Tab is one editor tab. A tab with only a Key names a built-in tab and goes on the wire as a
// bare string; a custom tab also carries the Name shown to the user and the URL it loads.
type Tab struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// BuiltinTab names an editor-provided tab such as "htmlblock" or "stylingblock".
func BuiltinTab(key string) Tab {
	return Tab{Key: key}
}

func (t Tab) IsCustom() bool {
	return t.Name != "" || t.URL != ""
}

func (t Tab) MarshalJSON() ([]byte, error) {
	if strings.TrimSpace(t.Key) == "" {
		return nil, ErrTabKey
	}
	if !t.IsCustom() {
		return json.Marshal(t.Key)
	}
	type plain Tab
	return json.Marshal(plain(t))
}

func (t *Tab) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		*t = Tab{Key: key}
		return nil
	}
	type plain Tab
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*t = Tab(out)
	return nil
}
