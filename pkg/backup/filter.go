package backup

import (
	"fmt"
	"regexp"
	"strings"
)

// TextFilter post-processes artifact text before it is written.
type TextFilter interface {
	Filter(text string) (string, error)
}

// Substitution replaces every match of Search with Replace. Replace may
// reference groups as ${1}.
type Substitution struct {
	Search  string `yaml:"regex_search" json:"regex_search"`
	Replace string `yaml:"regex_replacement" json:"regex_replacement"`
}

type compiledSub struct {
	re      *regexp.Regexp
	replace string
}

// LineFilter removes whole lines matching any Remove pattern, then applies
// the substitutions in order. Patterns are multi-line regular expressions.
type LineFilter struct {
	remove     []*regexp.Regexp
	substitute []compiledSub
}

// NewLineFilter compiles the removal patterns and substitutions.
func NewLineFilter(remove []string, substitute []Substitution) (*LineFilter, error) {
	f := &LineFilter{}
	for _, pat := range remove {
		if strings.TrimSpace(pat) == "" {
			continue
		}
		// A removal pattern consumes the entire line including its newline.
		re, err := regexp.Compile(`(?m)^.*(?:` + pat + `).*(?:\r?\n|$)`)
		if err != nil {
			return nil, fmt.Errorf("remove line pattern %q: %w", pat, err)
		}
		f.remove = append(f.remove, re)
	}
	for _, s := range substitute {
		if s.Search == "" {
			continue
		}
		re, err := regexp.Compile(`(?m)` + s.Search)
		if err != nil {
			return nil, fmt.Errorf("substitute pattern %q: %w", s.Search, err)
		}
		f.substitute = append(f.substitute, compiledSub{re: re, replace: s.Replace})
	}
	return f, nil
}

// Filter implements TextFilter.
func (f *LineFilter) Filter(text string) (string, error) {
	for _, re := range f.remove {
		text = re.ReplaceAllString(text, "")
	}
	for _, s := range f.substitute {
		text = s.re.ReplaceAllString(text, s.replace)
	}
	return text, nil
}
