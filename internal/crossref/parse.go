package crossref

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// ParseKind tags how a model response was decoded.
type ParseKind int

const (
	// Unparsable means no JSON object could be decoded from the text.
	Unparsable ParseKind = iota
	// Strict means the whole text was a JSON object that passed validation.
	Strict
	// Extracted means the object was recovered from surrounding prose or
	// fences, or decoded without passing validation.
	Extracted
)

func (k ParseKind) String() string {
	switch k {
	case Strict:
		return "strict"
	case Extracted:
		return "extracted"
	default:
		return "unparsable"
	}
}

// Parsed is the tagged result of ParseJSON. Value is only meaningful when
// Kind is not Unparsable.
type Parsed[T any] struct {
	Kind  ParseKind
	Value T
	// Reason describes why strict parsing was not used.
	Reason string
}

// OK reports whether a value was decoded.
func (p Parsed[T]) OK() bool {
	return p.Kind != Unparsable
}

var fenceRe = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z]*[ \t]*$")

// ParseJSON decodes a T from free-form model text. It first tries the whole
// text as strict JSON checked by validate (which may be nil), then strips
// code fences and tries each balanced {...} object in order. It never panics.
func ParseJSON[T any](text string, validate *validator.Validate) Parsed[T] {
	var out Parsed[T]

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		out.Reason = "empty response"
		return out
	}

	var strict T
	err := json.Unmarshal([]byte(trimmed), &strict)
	if err == nil && validate != nil {
		if verr := validate.Struct(strict); verr != nil {
			err = eris.Wrap(verr, "validation")
		}
	}
	if err == nil {
		out.Kind, out.Value = Strict, strict
		return out
	}
	out.Reason = err.Error()

	cleaned := fenceRe.ReplaceAllString(trimmed, "")
	for _, candidate := range balancedObjects(cleaned) {
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			out.Kind, out.Value = Extracted, v
			return out
		}
	}

	out.Kind = Unparsable
	return out
}

// balancedObjects returns every top-level balanced {...} span in s, in order.
// Objects nested inside a span are never candidates on their own. Braces
// inside JSON strings are ignored.
func balancedObjects(s string) []string {
	var out []string
	for start := strings.IndexByte(s, '{'); start >= 0; {
		end := matchBrace(s, start)
		if end < 0 {
			// Everything after an unclosed brace is nested inside it.
			break
		}
		out = append(out, s[start:end+1])
		resume := end + 1
		next := strings.IndexByte(s[resume:], '{')
		if next < 0 {
			break
		}
		start = resume + next
	}
	return out
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
