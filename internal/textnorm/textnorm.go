// Package textnorm provides the per-corpus transcript normalizers applied
// before WER scoring. Normalizers are pure functions of their input.
package textnorm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Func normalizes a transcript.
type Func func(string) string

// Identity returns s unchanged.
func Identity(s string) string { return s }

var (
	amiPunct      = regexp.MustCompile(`([.,!?])`)
	amiSpaces     = regexp.MustCompile(`\s+`)
	amiSingleChar = regexp.MustCompile(`\b([A-Z])\b`)
)

// AMI rewrites text into the AMI meeting corpus convention: uppercase,
// punctuation split into its own token, single-letter words dotted
// ("I" -> "I.", acronyms "A B C" -> "A. B. C.").
func AMI(s string) string {
	s = cases.Upper(language.Und).String(s)
	s = amiPunct.ReplaceAllString(s, " ${1} ")
	s = amiSpaces.ReplaceAllString(s, " ")
	s = amiSingleChar.ReplaceAllString(s, "${1}.")
	return strings.TrimSpace(s)
}

// Loose lowercases, strips punctuation and collapses whitespace.
func Loose(s string) string {
	s = cases.Lower(language.Und).String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var builtin = map[string]Func{
	"":         Identity,
	"identity": Identity,
	"ami":      AMI,
	"loose":    Loose,
}

// Lookup returns the named normalizer. The empty name is Identity.
func Lookup(name string) (Func, error) {
	fn, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("textnorm: unknown normalizer %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return fn, nil
}

// Names lists the registered normalizer names.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
