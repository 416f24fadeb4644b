package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Language tags used in model payloads
const (
	LangZH = "zh"
	LangEN = "en"
)

// LangText is one language variant of a text field
type LangText struct {
	Lang string
	Text string
}

// LocalizedText is an ordered set of language variants. On the wire it is a
// JSON object keyed by language tag; a bare JSON string decodes as "en".
type LocalizedText []LangText

// NewLocalizedText builds a LocalizedText from (lang, text) pairs
func NewLocalizedText(pairs ...string) LocalizedText {
	var lt LocalizedText
	for i := 0; i+1 < len(pairs); i += 2 {
		lt = lt.With(pairs[i], pairs[i+1])
	}
	return lt
}

// Get returns the text for a language tag
func (lt LocalizedText) Get(lang string) string {
	for _, v := range lt {
		if v.Lang == lang {
			return v.Text
		}
	}
	return ""
}

// With returns a copy with lang set to text, replacing any existing entry
func (lt LocalizedText) With(lang, text string) LocalizedText {
	out := make(LocalizedText, 0, len(lt)+1)
	replaced := false
	for _, v := range lt {
		if v.Lang == lang {
			out = append(out, LangText{Lang: lang, Text: text})
			replaced = true
			continue
		}
		out = append(out, v)
	}
	if !replaced {
		out = append(out, LangText{Lang: lang, Text: text})
	}
	return out
}

// Preferred selects zh, else en, else the first non-empty variant
func (lt LocalizedText) Preferred() string {
	if s := strings.TrimSpace(lt.Get(LangZH)); s != "" {
		return s
	}
	if s := strings.TrimSpace(lt.Get(LangEN)); s != "" {
		return s
	}
	for _, v := range lt {
		if s := strings.TrimSpace(v.Text); s != "" {
			return s
		}
	}
	return ""
}

// IsEmpty reports whether every variant is blank
func (lt LocalizedText) IsEmpty() bool {
	return lt.Preferred() == ""
}

// MarshalJSON encodes as an object, preserving variant order
func (lt LocalizedText) MarshalJSON() ([]byte, error) {
	if lt == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range lt {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(v.Lang)
		if err != nil {
			return nil, err
		}
		t, err := json.Marshal(v.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(t)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object of language → text or a bare string
func (lt *LocalizedText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*lt = nil
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*lt = LocalizedText{{Lang: LangEN, Text: s}}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("localized text: expected object or string, got %s", string(trimmed))
	}

	var out LocalizedText
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			// Non-string values are kept in their JSON form
			text = string(raw)
		}
		out = out.With(key, text)
	}
	*lt = out
	return nil
}

// Map returns the variants as a plain map
func (lt LocalizedText) Map() map[string]string {
	m := make(map[string]string, len(lt))
	for _, v := range lt {
		m[v.Lang] = v.Text
	}
	return m
}

// LocalizedFromMap builds a LocalizedText with zh and en first, then the rest sorted
func LocalizedFromMap(m map[string]string) LocalizedText {
	var lt LocalizedText
	for _, lang := range []string{LangZH, LangEN} {
		if v, ok := m[lang]; ok {
			lt = lt.With(lang, v)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if k != LangZH && k != LangEN {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		lt = lt.With(k, m[k])
	}
	return lt
}
