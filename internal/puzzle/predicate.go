package puzzle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	lua "github.com/Shopify/go-lua"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/playperu/fieldquest/internal/fieldquest"
)

var ErrScript = errors.New("answer script failed")

// normalize folds full-width forms (e.g. "１３８") to their canonical form
// and trims surrounding space.
func normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// fold is normalize plus case folding. A Caser is stateful, so one is
// created per call.
func fold(s string) string {
	return cases.Fold().String(normalize(s))
}

// CheckText accepts an exact match, an answer that contains the expected
// text, any alias term, or a passing Lua check(answer).
func CheckText(q *fieldquest.Quiz, input string) (bool, error) {
	in := fold(input)
	if in == "" {
		return false, nil
	}
	if target := fold(q.Answer); target != "" && strings.Contains(in, target) {
		return true, nil
	}
	for _, alias := range q.Aliases {
		if a := fold(alias); a != "" && strings.Contains(in, a) {
			return true, nil
		}
	}
	if q.Script != "" {
		return runScript(q.Script, normalize(input))
	}
	return false, nil
}

// CheckPair accepts any configured (first, second) combination.
func CheckPair(q *fieldquest.Quiz, first, second string) bool {
	a, b := fold(first), fold(second)
	if a == "" || b == "" {
		return false
	}
	for _, p := range q.Pairs {
		if fold(p.First) == a && fold(p.Second) == b {
			return true
		}
	}
	return false
}

// CheckMeasurements requires every configured field to hold a number in
// range. Non-digit characters (units, spaces) are stripped first.
func CheckMeasurements(q *fieldquest.Quiz, values map[string]string) bool {
	if len(q.Ranges) == 0 {
		return false
	}
	for _, r := range q.Ranges {
		n, ok := digits(values[r.Field])
		if !ok || n < r.Min || n > r.Max {
			return false
		}
	}
	return true
}

// CheckConcepts requires at least one term from every concept group.
func CheckConcepts(q *fieldquest.Quiz, text string) bool {
	in := fold(text)
	if in == "" || len(q.ConceptGroups) == 0 {
		return false
	}
	for _, group := range q.ConceptGroups {
		if !containsAny(in, group) {
			return false
		}
	}
	return true
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if f := fold(t); f != "" && strings.Contains(s, f) {
			return true
		}
	}
	return false
}

func digits(s string) (int, bool) {
	var b strings.Builder
	for _, r := range normalize(s) {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

// runScript evaluates an author-supplied predicate. The script must define
// a global function check(answer) returning a boolean. Each evaluation gets
// a fresh interpreter.
func runScript(src, answer string) (bool, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)

	if err := lua.DoString(l, src); err != nil {
		return false, fmt.Errorf("%w: loading: %v", ErrScript, err)
	}
	l.Global("check")
	if !l.IsFunction(-1) {
		return false, fmt.Errorf("%w: check is not a function", ErrScript)
	}
	l.PushString(answer)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return false, fmt.Errorf("%w: %v", ErrScript, err)
	}
	return l.ToBoolean(-1), nil
}
