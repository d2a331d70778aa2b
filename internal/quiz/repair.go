package quiz

import (
	"regexp"
	"strings"
)

const maxRepairCuts = 50

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z0-9]*\\s*\n?(.*?)\\s*```$")

// stripFences removes surrounding whitespace and a Markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// openers returns the offsets of every '[' or '{' outside a JSON string.
func openers(s string) []int {
	var out []int
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == '[' || c == '{'):
			out = append(out, i)
		}
	}
	return out
}

// balancedAt returns the balanced JSON value starting at the bracket at offset start.
func balancedAt(s string, start int) (string, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
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
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

type scanState struct {
	stack    []byte
	inString bool
	escaped  bool
	// cuts are offsets just past a '}' that closed a nested object.
	cuts []int
}

func scan(s string) (scanState, bool) {
	var st scanState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\':
				st.escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '[':
			st.stack = append(st.stack, ']')
		case '{':
			st.stack = append(st.stack, '}')
		case ']', '}':
			if len(st.stack) == 0 || st.stack[len(st.stack)-1] != c {
				return st, false
			}
			st.stack = st.stack[:len(st.stack)-1]
			if c == '}' && len(st.stack) > 0 {
				st.cuts = append(st.cuts, i+1)
			}
		}
	}
	return st, true
}

// closeOpen completes a truncated JSON prefix: it ends an open string, drops a dangling
// separator and appends the missing closers. It reports false when nothing is open.
func closeOpen(s string) (string, bool) {
	st, ok := scan(s)
	if !ok || len(st.stack) == 0 {
		return "", false
	}
	if st.inString {
		if st.escaped {
			s = s[:len(s)-1]
		}
		s += `"`
	}
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimRight(s, ",:")
	var sb strings.Builder
	sb.WriteString(s)
	for i := len(st.stack) - 1; i >= 0; i-- {
		sb.WriteByte(st.stack[i])
	}
	return sb.String(), true
}

// repairCandidates yields completions of a truncated value: first the whole prefix closed,
// then the prefix cut back to each earlier complete object, latest first.
func repairCandidates(s string) []string {
	starts := openers(s)
	if len(starts) == 0 {
		return nil
	}
	s = s[starts[0]:]
	st, ok := scan(s)
	if !ok || len(st.stack) == 0 {
		return nil
	}

	var out []string
	if c, ok := closeOpen(s); ok {
		out = append(out, c)
	}
	for i := len(st.cuts) - 1; i >= 0 && len(out) <= maxRepairCuts; i-- {
		if c, ok := closeOpen(s[:st.cuts[i]]); ok {
			out = append(out, c)
		}
	}
	return out
}

// pythonToJSON5 rewrites Python literal syntax: single-quoted strings become double-quoted,
// True, False and None become JSON literals and tuples become arrays.
func pythonToJSON5(s string) string {
	var sb strings.Builder
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
				if quote == '\'' && c == '\'' {
					sb.WriteByte(c)
				} else {
					sb.WriteByte('\\')
					sb.WriteByte(c)
				}
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
				sb.WriteByte('"')
			case c == '"' && quote == '\'':
				sb.WriteString(`\"`)
			default:
				sb.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
			sb.WriteByte('"')
			continue
		case '(':
			sb.WriteByte('[')
			continue
		case ')':
			sb.WriteByte(']')
			continue
		}
		if isIdentStart(c) && (i == 0 || !isIdentByte(s[i-1])) {
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			switch word := s[i:j]; word {
			case "True":
				sb.WriteString("true")
			case "False":
				sb.WriteString("false")
			case "None":
				sb.WriteString("null")
			default:
				sb.WriteString(word)
			}
			i = j - 1
			continue
		}
		sb.WriteByte(c)
	}
	if escaped {
		sb.WriteByte('\\')
	}
	return sb.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// outerValue returns the text between the first opening bracket and the last closing one.
func outerValue(s string) (string, bool) {
	start := strings.IndexAny(s, "[{")
	end := strings.LastIndexAny(s, "]}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
