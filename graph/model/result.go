package model

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Kind tags the outcome of a structured LLM call.
type Kind int

const (
	// Failure means the call itself failed; Err and Failure are set.
	Failure Kind = iota
	// Structured means the reply decoded into the requested type.
	Structured
	// Unstructured means the call succeeded but the reply did not match
	// the schema; Text holds the raw reply.
	Unstructured
)

func (k Kind) String() string {
	switch k {
	case Structured:
		return "structured"
	case Unstructured:
		return "unstructured"
	default:
		return "failure"
	}
}

// Result is the tagged outcome of a call that asked for JSON of type T.
type Result[T any] struct {
	Kind    Kind
	Value   T
	Text    string
	Failure FailureKind
	Err     error

	// Out is the raw provider output when the call succeeded.
	Out ChatOut
}

// OK reports whether the result is Structured.
func (r Result[T]) OK() bool {
	return r.Kind == Structured
}

// Decode tags the outcome of a Chat call. A reply is Structured when the
// JSON it contains (bare, fenced, or embedded in prose) unmarshals into T.
func Decode[T any](out ChatOut, err error) Result[T] {
	if err != nil {
		return Result[T]{Kind: Failure, Failure: Classify(err), Err: err}
	}

	res := Result[T]{Kind: Unstructured, Text: out.Text, Out: out}
	raw, ok := ExtractJSON(out.Text)
	if !ok {
		return res
	}
	var v T
	if jsonErr := json.Unmarshal([]byte(raw), &v); jsonErr != nil {
		return res
	}
	res.Kind = Structured
	res.Value = v
	return res
}

// DecodeFormat is Decode that also holds the reply to format: a reply
// missing any of the schema's required top-level keys, or carrying null for
// one, is Unstructured.
func DecodeFormat[T any](out ChatOut, err error, format *ResponseFormat) Result[T] {
	res := Decode[T](out, err)
	if res.Kind != Structured || format == nil {
		return res
	}
	raw, _ := ExtractJSON(out.Text)
	if len(format.Missing([]byte(raw))) > 0 {
		var zero T
		res.Kind = Unstructured
		res.Value = zero
	}
	return res
}

// Require demotes a Structured result to Unstructured when valid rejects
// its value.
func (r Result[T]) Require(valid func(T) bool) Result[T] {
	if r.Kind == Structured && !valid(r.Value) {
		var zero T
		r.Kind = Unstructured
		r.Value = zero
	}
	return r
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(.*?)```")

// ExtractJSON finds the JSON document in an LLM reply.
//
// It accepts a bare document, the first fenced code block, or the widest
// {...} or [...] span in surrounding prose. The returned string is only a
// candidate; it is not guaranteed to be valid JSON.
func ExtractJSON(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", false
	}
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if json.Valid([]byte(s)) {
		return s, true
	}

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(s, pair[0])
		end := strings.LastIndexByte(s, pair[1])
		if start >= 0 && end > start {
			return s[start : end+1], true
		}
	}
	return "", false
}
