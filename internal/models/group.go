package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is an identifier that may arrive as a JSON string or number.
// Numbers are coerced to their decimal string form so that 42 and "42"
// compare equal everywhere in the core.
type ID string

// UnmarshalJSON accepts strings, integers, floats with no fraction and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(GroupKey(n))
	return nil
}

// String returns the normalized form.
func (id ID) String() string { return string(id) }

// GroupKey normalizes any identifier value into the string key used by
// every per-group map. Unsupported or empty values yield "".
func GroupKey(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case ID:
		return strings.TrimSpace(string(id))
	case int:
		return strconv.Itoa(id)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	case uint:
		return strconv.FormatUint(uint64(id), 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		if f, err := id.Float64(); err == nil {
			return GroupKey(f)
		}
		return strings.TrimSpace(id.String())
	case fmt.Stringer:
		return strings.TrimSpace(id.String())
	default:
		return ""
	}
}

// IDs converts a list of identifiers into a deduplicated list preserving order.
func IDs(values []ID) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := GroupKey(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Group is a study group as listed by the backend.
type Group struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	CourseID    ID     `json:"courseId,omitempty"`
	MemberCount int    `json:"memberCount,omitempty"`
}

// Member is a user belonging to a group.
type Member struct {
	UserID   ID     `json:"userId"`
	UserName string `json:"userName"`
}

// Identity is the locally persisted authentication state.
type Identity struct {
	Token    string `db:"token" json:"token"`
	UserID   string `db:"user_id" json:"userId"`
	UserName string `db:"user_name" json:"userName"`
	Email    string `db:"email" json:"email,omitempty"`
}

// Authenticated reports whether the identity can open subscriptions.
func (i Identity) Authenticated() bool {
	return i.Token != "" && i.UserID != ""
}
