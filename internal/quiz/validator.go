package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Strategy names the parse attempt that produced a result.
type Strategy string

const (
	StrategyDirect  Strategy = "direct"
	StrategyExtract Strategy = "extract"
	StrategyRepair  Strategy = "repair"
	StrategyLiteral Strategy = "literal"
)

const maxExtractAttempts = 20

var errUnexpectedShape = errors.New(`expected {"quizzes": [...]} or a bare array`)

// Result is the outcome of validating one model response.
type Result struct {
	Quizzes  []Quiz
	Dropped  int
	Strategy Strategy
}

// Validator turns untrusted model output into quizzes.
type Validator struct {
	// Subject, when set, is stamped on every item and the item's own subject field is not required.
	Subject string
}

// Parse reads raw as quiz JSON, trying a strict parse first and falling back to bracket extraction,
// truncation repair and finally a permissive literal parse. Items failing their type's rules are
// dropped. A *ParseError is returned when no strategy reads the text; ErrNoValidItems when every
// item was dropped.
func (v Validator) Parse(raw string) (Result, error) {
	items, strategy, err := decodeItems(raw)
	if err != nil {
		return Result{}, &ParseError{Raw: raw, Err: err}
	}

	res := Result{Strategy: strategy}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			res.Dropped++
			log.Debug().Int("item", i).Msg("Dropping quiz item that is not an object")
			continue
		}
		q, err := validateItem(obj, v.Subject)
		if err != nil {
			res.Dropped++
			log.Debug().Int("item", i).Err(err).Msg("Dropping invalid quiz item")
			continue
		}
		res.Quizzes = append(res.Quizzes, q)
	}

	if strategy != StrategyDirect {
		log.Warn().Str("strategy", string(strategy)).Int("items", len(res.Quizzes)).Int("dropped", res.Dropped).
			Msg("Quiz output needed a fallback parse")
	}
	if len(res.Quizzes) == 0 {
		return res, ErrNoValidItems
	}
	return res, nil
}

// decodeItems runs the parse strategies in order and returns the quiz item list of the first that succeeds.
func decodeItems(raw string) ([]any, Strategy, error) {
	text := stripFences(raw)
	if text == "" {
		return nil, "", errors.New("empty output")
	}

	items, firstErr := strictItems(text)
	if firstErr == nil {
		return items, StrategyDirect, nil
	}

	// a candidate nested in an earlier balanced one is skipped; an opener that never
	// closes is passed over so stray brackets in commentary do not hide the value
	next, attempts := 0, 0
	for _, start := range openers(text) {
		if start < next {
			continue
		}
		if attempts++; attempts > maxExtractAttempts {
			break
		}
		sub, ok := balancedAt(text, start)
		if !ok {
			continue
		}
		if items, err := strictItems(sub); err == nil && hasObject(items) {
			return items, StrategyExtract, nil
		}
		next = start + len(sub)
	}

	for _, candidate := range repairCandidates(text) {
		if items, err := strictItems(candidate); err == nil {
			return items, StrategyRepair, nil
		}
	}

	literal := []string{text}
	if outer, ok := outerValue(text); ok && outer != text {
		literal = append(literal, outer)
	}
	for _, candidate := range literal {
		if items, err := lenientItems(candidate); err == nil {
			return items, StrategyLiteral, nil
		}
	}
	return nil, "", firstErr
}

func strictItems(text string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return itemsOf(v)
}

func lenientItems(text string) (items []any, err error) {
	// json5 indexes out of range on some malformed input
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("lenient parse failed: %v", r)
		}
	}()
	var v any
	if err := json5.Unmarshal([]byte(pythonToJSON5(text)), &v); err != nil {
		return nil, err
	}
	return itemsOf(v)
}

// hasObject reports whether any item could be a quiz, so a nested option list is not
// mistaken for the quiz array.
func hasObject(items []any) bool {
	for _, it := range items {
		if _, ok := it.(map[string]any); ok {
			return true
		}
	}
	return false
}

func itemsOf(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case map[string]any:
		if items, ok := x["quizzes"].([]any); ok {
			return items, nil
		}
	}
	return nil, errUnexpectedShape
}

// validateItem applies the per-type structural rules to one decoded item.
func validateItem(item map[string]any, subject string) (Quiz, error) {
	typ, _ := item["type"].(string)
	kind, ok := ParseKind(typ)
	if !ok {
		return Quiz{}, fmt.Errorf("unknown type %q", typ)
	}
	question, _ := item["question"].(string)
	question = strings.TrimSpace(question)
	if question == "" {
		return Quiz{}, errors.New("missing question")
	}
	explanation, ok := item["explanation"].(string)
	if !ok {
		return Quiz{}, errors.New("missing explanation")
	}
	if subject == "" {
		s, _ := item["subject"].(string)
		if strings.TrimSpace(s) == "" {
			return Quiz{}, errors.New("missing subject")
		}
		subject = s
	}
	answer, ok := item["correct_answer"]
	if !ok || answer == nil {
		answer = item["answer"]
	}
	if answer == nil {
		return Quiz{}, errors.New("missing correct_answer")
	}
	options := NormalizeOptions(item["options"])

	switch kind {
	case KindMultiple:
		idx, err := resolveIndex(answer, options)
		if err != nil {
			return Quiz{}, err
		}
		return NewMultiple(question, options, idx, explanation, subject)
	case KindOX:
		idx, err := resolveIndex(answer, options)
		if err != nil {
			return Quiz{}, err
		}
		return NewOX(question, options, idx, explanation, subject)
	default:
		text, ok := answer.(string)
		if !ok {
			return Quiz{}, fmt.Errorf("short answer must be a string, got %T", answer)
		}
		if len(options) > 0 {
			return Quiz{}, errors.New("short answer quiz must not have options")
		}
		return NewShort(question, strings.TrimSpace(text), explanation, subject)
	}
}

// resolveIndex maps an answer to an option index. Numbers must be integral. Strings are matched
// against the option text (exactly, then ignoring case and surrounding space), then read as a
// number, then as a letter label A, B, C...
func resolveIndex(answer any, options []string) (int, error) {
	switch a := answer.(type) {
	case json.Number:
		f, err := a.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid answer %q", a)
		}
		return integral(f)
	case float64:
		return integral(a)
	case int:
		return a, nil
	case string:
		for i, o := range options {
			if o == a {
				return i, nil
			}
		}
		trimmed := strings.TrimSpace(a)
		for i, o := range options {
			if strings.EqualFold(strings.TrimSpace(o), trimmed) {
				return i, nil
			}
		}
		if n, err := strconv.Atoi(trimmed); err == nil {
			return n, nil
		}
		if len(trimmed) == 1 {
			if c := trimmed[0] | 0x20; c >= 'a' && int(c-'a') < len(options) {
				return int(c - 'a'), nil
			}
		}
		return 0, fmt.Errorf("answer %q matches no option", a)
	}
	return 0, fmt.Errorf("unsupported answer type %T", answer)
}

func integral(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("answer %v is not an integer", f)
	}
	return int(f), nil
}
