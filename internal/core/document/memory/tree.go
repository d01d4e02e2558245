package memory

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/models"
)

var ErrBadPath = errors.New("path does not resolve")

type leafFunc func(node any, el any) (any, error)

// update walks path inside node and replaces the addressed child with the
// result of leaf. Maps are modified in place, arrays and strings are
// rebuilt and re-attached to their parent.
func update(node any, path document.Path, leaf leafFunc) (any, error) {
	if len(path) == 1 {
		return leaf(node, path[0])
	}
	child, err := get(node, path[0])
	if err != nil {
		return nil, err
	}
	next, err := update(child, path[1:], leaf)
	if err != nil {
		return nil, err
	}
	return set(node, path[0], next)
}

func get(node any, el any) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		key, ok := el.(string)
		if !ok {
			return nil, errors.Wrapf(ErrBadPath, "object key %v", el)
		}
		v, ok := n[key]
		if !ok {
			return nil, errors.Wrapf(ErrBadPath, "missing key %q", key)
		}
		return v, nil
	case []any:
		i, ok := index(el)
		if !ok || i < 0 || i >= len(n) {
			return nil, errors.Wrapf(ErrBadPath, "index %v out of range", el)
		}
		return n[i], nil
	}
	return nil, errors.Wrapf(ErrBadPath, "cannot descend into %T", node)
}

func set(node any, el any, value any) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		key, ok := el.(string)
		if !ok {
			return nil, errors.Wrapf(ErrBadPath, "object key %v", el)
		}
		n[key] = value
		return n, nil
	case []any:
		i, ok := index(el)
		if !ok || i < 0 || i > len(n) {
			return nil, errors.Wrapf(ErrBadPath, "index %v out of range", el)
		}
		if i == len(n) {
			return append(n, value), nil
		}
		n[i] = value
		return n, nil
	}
	return nil, errors.Wrapf(ErrBadPath, "cannot assign into %T", node)
}

func putLeaf(value any) leafFunc {
	return func(node any, el any) (any, error) {
		return set(node, el, models.CloneValue(value))
	}
}

// insertLeaf inserts into an array. Inserting a single value under an
// object key behaves like a put.
func insertLeaf(values []any) leafFunc {
	return func(node any, el any) (any, error) {
		if _, isMap := node.(map[string]any); isMap && len(values) == 1 {
			return set(node, el, models.CloneValue(values[0]))
		}
		arr, ok := node.([]any)
		if !ok {
			return nil, errors.Wrapf(ErrBadPath, "insert into %T", node)
		}
		i, ok := index(el)
		if !ok || i < 0 || i > len(arr) {
			return nil, errors.Wrapf(ErrBadPath, "index %v out of range", el)
		}
		out := make([]any, 0, len(arr)+len(values))
		out = append(out, arr[:i]...)
		for _, v := range values {
			out = append(out, models.CloneValue(v))
		}
		return append(out, arr[i:]...), nil
	}
}

func deleteLeaf(length int) leafFunc {
	if length <= 0 {
		length = 1
	}
	return func(node any, el any) (any, error) {
		switch n := node.(type) {
		case map[string]any:
			key, ok := el.(string)
			if !ok {
				return nil, errors.Wrapf(ErrBadPath, "object key %v", el)
			}
			delete(n, key)
			return n, nil
		case []any:
			i, ok := index(el)
			if !ok || i < 0 || i+length > len(n) {
				return nil, errors.Wrapf(ErrBadPath, "delete %d at %v out of range", length, el)
			}
			out := make([]any, 0, len(n)-length)
			out = append(out, n[:i]...)
			return append(out, n[i+length:]...), nil
		case string:
			runes := []rune(n)
			i, ok := index(el)
			if !ok || i < 0 || i+length > len(runes) {
				return nil, errors.Wrapf(ErrBadPath, "delete %d at %v out of range", length, el)
			}
			return string(runes[:i]) + string(runes[i+length:]), nil
		}
		return nil, errors.Wrapf(ErrBadPath, "delete from %T", node)
	}
}

// spliceLeaf inserts text into a string, or elements into an array.
func spliceLeaf(p document.Patch) leafFunc {
	return func(node any, el any) (any, error) {
		switch n := node.(type) {
		case string:
			text, ok := p.Value.(string)
			if !ok {
				return nil, errors.Errorf("splice value must be text, got %T", p.Value)
			}
			runes := []rune(n)
			i, ok := index(el)
			if !ok || i < 0 || i > len(runes) {
				return nil, errors.Wrapf(ErrBadPath, "splice at %v out of range", el)
			}
			return string(runes[:i]) + text + string(runes[i:]), nil
		case []any:
			return insertLeaf(p.Values)(node, el)
		}
		return nil, errors.Wrapf(ErrBadPath, "splice into %T", node)
	}
}

// applyPatch applies one supported patch to root and returns the new root.
func applyPatch(root map[string]any, p document.Patch) (map[string]any, error) {
	if len(p.Path) == 0 {
		switch p.Action {
		case document.ActionDelete:
			return map[string]any{}, nil
		case document.ActionPut, document.ActionInsert:
			obj, ok := models.CloneValue(p.Value).(map[string]any)
			if !ok {
				return nil, errors.Errorf("document root must be an object, got %T", p.Value)
			}
			return obj, nil
		}
		return nil, errors.Errorf("%s is not valid on the document root", p.Action)
	}

	var leaf leafFunc
	switch p.Action {
	case document.ActionPut:
		leaf = putLeaf(p.Value)
	case document.ActionInsert:
		values := p.Values
		if values == nil {
			values = []any{p.Value}
		}
		leaf = insertLeaf(values)
	case document.ActionDelete:
		leaf = deleteLeaf(p.Length)
	case document.ActionSplice:
		leaf = spliceLeaf(p)
	default:
		return root, nil
	}

	next, err := update(root, p.Path, leaf)
	if err != nil {
		return nil, errors.Wrapf(err, "apply %s", p)
	}
	return next.(map[string]any), nil
}

func index(el any) (int, bool) {
	return document.Path{el}.Index(0)
}

// parsePointer splits an RFC 6901 pointer and types each segment by the
// container it addresses in tree.
func parsePointer(tree any, pointer string) document.Path {
	if pointer == "" {
		return document.Path{}
	}
	raw := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	path := make(document.Path, 0, len(raw))
	node := tree
	for _, seg := range raw {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		switch n := node.(type) {
		case []any:
			i := len(n)
			if seg != "-" {
				if parsed, err := strconv.Atoi(seg); err == nil {
					i = parsed
				}
			}
			path = append(path, i)
			if i < len(n) {
				node = n[i]
			} else {
				node = nil
			}
		case map[string]any:
			path = append(path, seg)
			node = n[seg]
		default:
			path = append(path, seg)
			node = nil
		}
	}
	return path
}

func lookup(tree any, path document.Path) (any, bool) {
	node := tree
	for _, el := range path {
		next, err := get(node, el)
		if err != nil {
			return nil, false
		}
		node = next
	}
	return node, true
}
