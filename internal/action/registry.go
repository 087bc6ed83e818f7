package action

import (
	"encoding/json"
	"fmt"
	"sort"
)

// The registry maps action tags to constructors so receipts can be decoded
// back into live actions. The tag set is closed: every tag a receipt may
// carry must be registered by this binary, and decoding an unknown tag is a
// hard error rather than a partial interpretation.

var registry = map[string]func() Action{}

// Register associates tag with a constructor for its concrete action type.
// Concrete action packages call this from init. Registering a tag twice is
// a programming error and panics.
func Register(tag string, newFn func() Action) {
	if _, dup := registry[tag]; dup {
		panic(fmt.Sprintf("action: duplicate registration of tag %q", tag))
	}
	registry[tag] = newFn
}

// Decode reconstructs the concrete action registered under tag from its
// serialized payload.
func Decode(tag string, data json.RawMessage) (Action, error) {
	newFn, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("unknown action tag %q (receipt written by a different installer build?)", tag)
	}
	a := newFn()
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("decode action %q: %w", tag, err)
	}
	return a, nil
}

// Tags returns the registered tags in sorted order.
func Tags() []string {
	tags := make([]string, 0, len(registry))
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
