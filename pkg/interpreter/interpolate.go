package interpreter

import (
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Scope holds the variables available to step parameters and expands
// `${expr}` / `$VAR` references. Expressions inside braces are evaluated
// by a JavaScript runtime so specs can write `${USER.toUpperCase()}`;
// bare `$VAR` is plain substitution.
type Scope struct {
	runtime *goja.Runtime
	vars    map[string]string
	mu      sync.Mutex
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		runtime: goja.New(),
		vars:    make(map[string]string),
	}
}

// Set defines a variable, visible both to $VAR substitution and to
// ${...} expressions as a JS global.
func (s *Scope) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vars[name] = value
	s.runtime.Set(name, value)
}

// SetAll defines multiple variables.
func (s *Scope) SetAll(vars map[string]string) {
	for k, v := range vars {
		s.Set(k, v)
	}
}

// Expand resolves every ${expr} and $VAR reference in text. A failing
// expression is left in place rather than aborting the step.
func (s *Scope) Expand(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}

	text = s.expandExpressions(text)
	return s.expandDollarVars(text)
}

// expandExpressions evaluates ${...} blocks, matching braces so nested
// object literals survive.
func (s *Scope) expandExpressions(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			switch result[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
			end++
		}
		if depth != 0 {
			// Unmatched brace, leave the rest alone
			break
		}

		expr := result[idx+2 : end-1]
		value, err := s.eval(expr)
		if err != nil {
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result
}

func (s *Scope) eval(expr string) (string, error) {
	v, err := s.runtime.RunString(expr)
	if err != nil {
		return "", err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

// expandDollarVars substitutes $VAR references, longest names first so
// $USERNAME never matches as $USER + "NAME".
func (s *Scope) expandDollarVars(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})

	for _, name := range names {
		text = replaceDollarVar(text, name, s.vars[name])
	}
	return text
}

// replaceDollarVar replaces $NAME occurrences not followed by an
// identifier character.
func replaceDollarVar(text, name, value string) string {
	pattern := "$" + name
	idx := 0
	for {
		pos := strings.Index(text[idx:], pattern)
		if pos == -1 {
			break
		}
		pos += idx

		endPos := pos + len(pattern)
		if endPos < len(text) && isIdentChar(text[endPos]) {
			idx = endPos
			continue
		}

		text = text[:pos] + value + text[endPos:]
		idx = pos + len(value)
	}
	return text
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
