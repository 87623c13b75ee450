// Package answer models quiz answers as a closed set of JSON shapes and
// provides the normalization and comparison rules used when grading them.
package answer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrMalformed is returned when an answer payload is not valid JSON.
var ErrMalformed = errors.New("malformed answer")

// Kind identifies which shape an Answer holds.
type Kind int

const (
	// KindAbsent is a missing or null answer.
	KindAbsent Kind = iota
	// KindString is free text.
	KindString
	// KindList is an ordered list of answers.
	KindList
	// KindMap is an object keyed by strings.
	KindMap
	// KindScalar is a JSON number or boolean kept as its literal text.
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindScalar:
		return "scalar"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Answer is an immutable tagged union over the shapes a submitted or expected
// answer can take. The zero value is an absent answer.
type Answer struct {
	kind   Kind
	text   string
	items  []Answer
	fields map[string]Answer
}

// Absent returns the empty answer.
func Absent() Answer { return Answer{} }

// String wraps free text.
func String(s string) Answer { return Answer{kind: KindString, text: s} }

// Scalar wraps a JSON number or boolean literal such as "42" or "true".
func Scalar(literal string) Answer { return Answer{kind: KindScalar, text: literal} }

// List builds a list answer.
func List(items ...Answer) Answer {
	copied := make([]Answer, len(items))
	copy(copied, items)
	return Answer{kind: KindList, items: copied}
}

// Map builds a map answer.
func Map(fields map[string]Answer) Answer {
	copied := make(map[string]Answer, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Answer{kind: KindMap, fields: copied}
}

// Kind reports the shape of the answer.
func (a Answer) Kind() Kind { return a.kind }

// IsAbsent reports whether the answer is missing.
func (a Answer) IsAbsent() bool { return a.kind == KindAbsent }

// Text returns the string value or scalar literal. It is empty for other kinds.
func (a Answer) Text() string { return a.text }

// Items returns the list elements.
func (a Answer) Items() []Answer { return a.items }

// Fields returns the map entries.
func (a Answer) Fields() map[string]Answer { return a.fields }

// Keys returns the map keys in sorted order.
func (a Answer) Keys() []string {
	keys := make([]string, 0, len(a.fields))
	for k := range a.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse decodes a JSON document into an Answer.
func Parse(data []byte) (Answer, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var a Answer
	if err := dec.Decode(&a); err != nil {
		return Absent(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Absent(), fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return a, nil
}

// ParseText parses raw as JSON and falls back to a string answer holding raw
// unchanged when it is not valid JSON.
func ParseText(raw string) Answer {
	if strings.TrimSpace(raw) == "" {
		return String(raw)
	}
	a, err := Parse([]byte(raw))
	if err != nil {
		return String(raw)
	}
	return a
}

// ParseMap parses raw as a JSON object of question id to answer.
func ParseMap(raw string) (map[string]Answer, error) {
	a, err := Parse([]byte(raw))
	if err != nil {
		return nil, err
	}
	if a.kind != KindMap {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrMalformed, a.kind)
	}
	return a.fields, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ErrMalformed
	}

	switch trimmed[0] {
	case 'n':
		if string(trimmed) != "null" {
			return fmt.Errorf("%w: invalid literal %q", ErrMalformed, trimmed)
		}
		*a = Absent()
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*a = String(s)
	case '[':
		var items []Answer
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		if items == nil {
			items = []Answer{}
		}
		*a = Answer{kind: KindList, items: items}
	case '{':
		var fields map[string]Answer
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return err
		}
		if fields == nil {
			fields = map[string]Answer{}
		}
		*a = Answer{kind: KindMap, fields: fields}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*a = Scalar(string(trimmed))
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*a = Scalar(n.String())
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case KindString:
		return json.Marshal(a.text)
	case KindScalar:
		return []byte(a.text), nil
	case KindList:
		items := a.items
		if items == nil {
			items = []Answer{}
		}
		return json.Marshal(items)
	case KindMap:
		fields := a.fields
		if fields == nil {
			fields = map[string]Answer{}
		}
		return json.Marshal(fields)
	default:
		return []byte("null"), nil
	}
}

// Format renders an answer for feedback transcripts: lists as [a, b], maps as
// {k: v, ...} with sorted keys and absent answers as "unanswered".
func Format(a Answer) string {
	switch a.kind {
	case KindAbsent:
		return "unanswered"
	case KindString, KindScalar:
		return a.text
	case KindList:
		parts := make([]string, 0, len(a.items))
		for _, item := range a.items {
			parts = append(parts, Format(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(a.fields))
		for _, key := range a.Keys() {
			parts = append(parts, key+": "+Format(a.fields[key]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}
