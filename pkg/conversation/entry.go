package conversation

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleChart       Role = "chart"
	RoleLoading     Role = "loading"
	RolePlaceholder Role = "placeholder"
)

// IsRenderOnly reports whether entries with this role are shown to the user
// but never sent to the backend.
func (r Role) IsRenderOnly() bool {
	switch r {
	case RoleChart, RoleLoading, RolePlaceholder:
		return true
	default:
		return false
	}
}

// Entry is one item of the conversation. The meaning of Content depends on Role:
// plain text for user and assistant entries, a serialized plot payload for
// chart entries, and nothing for loading and placeholder entries.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewUserEntry(content string) Entry {
	return Entry{Role: RoleUser, Content: content}
}

func NewAssistantEntry(content string) Entry {
	return Entry{Role: RoleAssistant, Content: content}
}

func NewChartEntry(payload string) Entry {
	return Entry{Role: RoleChart, Content: payload}
}

func NewPlaceholderEntry() Entry {
	return Entry{Role: RolePlaceholder}
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s]: %s", e.Role, strings.TrimRight(e.Content, "\n"))
}

// APIEntries returns the entries that may be sent to the backend, in order.
func APIEntries(entries []Entry) []Entry {
	ret := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Role.IsRenderOnly() {
			continue
		}
		ret = append(ret, e)
	}
	return ret
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	ret := make([]Entry, len(entries))
	copy(ret, entries)
	return ret
}

func equalEntries(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
