package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Action is the kind of elementary edit carried by a Patch.
type Action uint8

const (
	ActionPut Action = iota + 1
	ActionInsert
	ActionDelete
	ActionSplice
	ActionConflict
	ActionIncrement
	ActionMarkText
	ActionUnmarkText
)

var actionNames = map[Action]string{
	ActionPut:        "put",
	ActionInsert:     "insert",
	ActionDelete:     "del",
	ActionSplice:     "splice",
	ActionConflict:   "conflict",
	ActionIncrement:  "inc",
	ActionMarkText:   "mark",
	ActionUnmarkText: "unmark",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(a)) + ")"
}

// Supported reports whether the action can be interpreted outside of the
// replication library (text marks, counters and conflicts cannot).
func (a Action) Supported() bool {
	switch a {
	case ActionPut, ActionInsert, ActionDelete, ActionSplice:
		return true
	default:
		return false
	}
}

// ParseAction accepts the canonical names plus a few common aliases.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "put":
		return ActionPut, nil
	case "insert":
		return ActionInsert, nil
	case "del", "delete":
		return ActionDelete, nil
	case "splice":
		return ActionSplice, nil
	case "conflict":
		return ActionConflict, nil
	case "inc", "increment":
		return ActionIncrement, nil
	case "mark", "marktext":
		return ActionMarkText, nil
	case "unmark", "unmarktext":
		return ActionUnmarkText, nil
	}
	return 0, errors.Errorf("unknown patch action %q", s)
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Path addresses a location in the document. Elements are strings for
// object keys and ints for array indices.
type Path []any

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, el := range p {
		parts[i] = fmt.Sprint(el)
	}
	return "/" + strings.Join(parts, "/")
}

// Key returns element i as an object key.
func (p Path) Key(i int) (string, bool) {
	if i < 0 || i >= len(p) {
		return "", false
	}
	s, ok := p[i].(string)
	return s, ok
}

// Index returns element i as an array index. Numbers decoded from JSON
// arrive as float64 and are accepted when integral.
func (p Path) Index(i int) (int, bool) {
	if i < 0 || i >= len(p) {
		return 0, false
	}
	switch v := p[i].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// Patch is one elementary, path-addressed edit from the change feed.
// Insert and Splice carry their elements in Values (or a string in Value
// for text splices); Delete may carry a count in Length.
type Patch struct {
	Action Action `json:"action"`
	Path   Path   `json:"path"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
	Length int    `json:"length,omitempty"`
}

func (p Patch) String() string {
	return p.Action.String() + " " + p.Path.String()
}
