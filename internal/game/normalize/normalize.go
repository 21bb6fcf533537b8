// Package normalize converts heterogeneous model payloads into canonical
// turn outputs.
//
// Providers return structured objects, loose key/value mappings, or free text
// that usually contains JSON (often wrapped in a fenced code block). Each
// shape is an explicit arm of a tagged union with its own fixed
// transformation, rather than runtime shape probing.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/louisbranch/undertone/internal/game/domain"
)

// JSON keys required in every model payload.
const (
	keyVisibleText      = "visible_text"
	keyPrivateReasoning = "private_reasoning"
	keyGuess            = "guess"
)

// previewLimit bounds the raw-payload preview attached to failures.
const previewLimit = 256

// ErrEmptyOutput marks a well-formed output with no content in any field.
// Distinct from a malformed payload: the round treats both as a skip but logs
// them under different categories.
var ErrEmptyOutput = errors.New("output is empty")

// Kind tags which arm of the RawOutput union is populated.
type Kind int

const (
	// KindTyped is an already-typed TurnOutput.
	KindTyped Kind = iota
	// KindMapping is a generic string-keyed mapping.
	KindMapping
	// KindText is free text expected to contain JSON.
	KindText
)

// RawOutput is the adapter's success payload before normalization.
type RawOutput struct {
	kind    Kind
	typed   domain.TurnOutput
	mapping map[string]any
	text    string
}

// Typed wraps an already-typed output.
func Typed(out domain.TurnOutput) RawOutput {
	return RawOutput{kind: KindTyped, typed: out}
}

// Mapping wraps a generic string-keyed mapping.
func Mapping(m map[string]any) RawOutput {
	return RawOutput{kind: KindMapping, mapping: m}
}

// Text wraps free text expected to contain JSON.
func Text(s string) RawOutput {
	return RawOutput{kind: KindText, text: s}
}

// Kind returns the populated arm.
func (r RawOutput) Kind() Kind { return r.kind }

// Error is a normalization failure with a bounded preview of the raw payload
// for diagnostics.
type Error struct {
	Detail  string
	Preview string
}

func (e *Error) Error() string {
	if e.Preview == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Detail, e.Preview)
}

// Normalize resolves a raw payload into a TurnOutput.
//
// It returns *Error for malformed payloads and ErrEmptyOutput when the
// payload parsed cleanly but carries no content. The participant id on the
// result is left for the caller to fill in.
func Normalize(raw RawOutput) (domain.TurnOutput, error) {
	var out domain.TurnOutput
	switch raw.kind {
	case KindTyped:
		// Field presence is structural for the typed arm; it passes through.
		out = raw.typed
	case KindMapping:
		mapped, err := fromMapping(raw.mapping)
		if err != nil {
			return domain.TurnOutput{}, err
		}
		out = mapped
	case KindText:
		parsed, err := fromText(raw.text)
		if err != nil {
			return domain.TurnOutput{}, err
		}
		out = parsed
	default:
		return domain.TurnOutput{}, &Error{Detail: fmt.Sprintf("unknown payload kind %d", raw.kind)}
	}

	if out.Empty() {
		return out, ErrEmptyOutput
	}
	return out, nil
}

func fromMapping(m map[string]any) (domain.TurnOutput, error) {
	if m == nil {
		return domain.TurnOutput{}, &Error{Detail: "mapping payload is nil"}
	}
	visible, err := requiredString(m, keyVisibleText)
	if err != nil {
		return domain.TurnOutput{}, err
	}
	reasoning, err := requiredString(m, keyPrivateReasoning)
	if err != nil {
		return domain.TurnOutput{}, err
	}
	guess, err := optionalString(m, keyGuess)
	if err != nil {
		return domain.TurnOutput{}, err
	}
	return domain.TurnOutput{
		VisibleText:      visible,
		PrivateReasoning: reasoning,
		Guess:            guess,
	}, nil
}

func fromText(text string) (domain.TurnOutput, error) {
	cleaned := StripFence(text)
	if !gjson.Valid(cleaned) {
		return domain.TurnOutput{}, &Error{Detail: "payload is not valid JSON", Preview: preview(text)}
	}
	doc := gjson.Parse(cleaned)
	if !doc.IsObject() {
		return domain.TurnOutput{}, &Error{Detail: "payload JSON is not an object", Preview: preview(text)}
	}

	visible := doc.Get(keyVisibleText)
	if !visible.Exists() {
		return domain.TurnOutput{}, &Error{Detail: "payload is missing " + keyVisibleText, Preview: preview(text)}
	}
	reasoning := doc.Get(keyPrivateReasoning)
	if !reasoning.Exists() {
		return domain.TurnOutput{}, &Error{Detail: "payload is missing " + keyPrivateReasoning, Preview: preview(text)}
	}

	out := domain.TurnOutput{
		VisibleText:      visible.String(),
		PrivateReasoning: reasoning.String(),
	}
	if guess := doc.Get(keyGuess); guess.Exists() && guess.Type == gjson.String {
		out.Guess = guess.String()
	}
	return out, nil
}

// StripFence removes a surrounding Markdown code fence, tolerating an
// optional language tag on the opening fence.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(trimmed[:idx])
		if isLanguageTag(firstLine) {
			trimmed = trimmed[idx+1:]
		}
	} else if idx := strings.IndexAny(trimmed, "{["); idx > 0 {
		// Single-line fence such as ```json {...}```.
		if isLanguageTag(strings.TrimSpace(trimmed[:idx])) {
			trimmed = trimmed[idx:]
		}
	}
	return strings.TrimSpace(trimmed)
}

// isLanguageTag reports whether s looks like a fence language tag rather than
// payload content.
func isLanguageTag(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func requiredString(m map[string]any, key string) (string, error) {
	value, ok := m[key]
	if !ok {
		return "", &Error{Detail: "mapping is missing " + key}
	}
	s, ok := value.(string)
	if !ok {
		return "", &Error{Detail: fmt.Sprintf("mapping key %s is %T, want string", key, value)}
	}
	return s, nil
}

func optionalString(m map[string]any, key string) (string, error) {
	value, ok := m[key]
	if !ok || value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", &Error{Detail: fmt.Sprintf("mapping key %s is %T, want string or null", key, value)}
	}
	return s, nil
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= previewLimit {
		return s
	}
	return s[:previewLimit] + "..."
}
