// Package tmpl parses message templates of the form "took ${elapsed} for ${x}".
//
// A template is literal text interleaved with ${name} variable references.
// A '$' that is not followed by '{' is literal text. An unterminated '${' is
// a parse error.
package tmpl

import (
	"fmt"
	"strings"
)

// Fragment is a piece of a parsed template: either literal text or a
// variable reference.
type Fragment struct {
	value      string
	isVariable bool
}

// Value returns the fragment's text: the literal text itself, or the name
// inside the ${...} delimiters for a variable fragment.
func (f *Fragment) Value() string {
	return f.value
}

// IsVariable returns true if the fragment is a variable reference.
func (f *Fragment) IsVariable() bool {
	return f.isVariable
}

// Template is a parsed message template.
type Template struct {
	value     string
	fragments []*Fragment
}

// Value returns the original template string.
func (t *Template) Value() string {
	return t.value
}

// Fragments returns the ordered fragments of the template.
func (t *Template) Fragments() []*Fragment {
	return t.fragments
}

// Variables returns the referenced variable names in template order.
// Duplicates are preserved: each occurrence is a separate slot.
func (t *Template) Variables() []string {
	var names []string
	for _, f := range t.fragments {
		if f.isVariable {
			names = append(names, strings.TrimSpace(f.value))
		}
	}
	return names
}

// Parse parses a template string into literal and variable fragments.
func Parse(s string) (*Template, error) {
	var fragments []*Fragment
	var literal strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return nil, fmt.Errorf("missing '}' in template: %s", s)
			}
			if literal.Len() > 0 {
				fragments = append(fragments, &Fragment{value: literal.String()})
				literal.Reset()
			}
			fragments = append(fragments, &Fragment{value: s[i+2 : i+2+end], isVariable: true})
			i += end + 3
			continue
		}
		literal.WriteByte(s[i])
		i++
	}
	if literal.Len() > 0 {
		fragments = append(fragments, &Fragment{value: literal.String()})
	}
	return &Template{value: s, fragments: fragments}, nil
}
