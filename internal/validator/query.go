package validator

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/parser"
)

const subjectCapture = "_v"

type compiledRule struct {
	name   string
	match  *regexp.Regexp
	except *regexp.Regexp
	skip   func(n *sitter.Node) bool
	fold   func(n *sitter.Node, source []byte) string
}

// compiledSet is the read-only, compiled form of a ruleSet. Rules are stored
// by query pattern index.
type compiledSet struct {
	query   *sitter.Query
	rules   []compiledRule
	markers map[string]struct{}
	opaque  map[string]struct{}
}

type lazySet struct {
	once sync.Once
	set  *compiledSet
	err  error
}

var compiledSets = func() map[domain.Language]*lazySet {
	m := make(map[domain.Language]*lazySet, len(domain.Languages))
	for _, lang := range domain.Languages {
		m[lang] = &lazySet{}
	}
	return m
}()

// compiledFor compiles the rule set of lang on first use and returns the
// cached result afterwards.
func compiledFor(lang domain.Language) (*compiledSet, error) {
	lazy, ok := compiledSets[lang]
	if !ok {
		return nil, parser.ErrUnsupportedLanguage
	}
	lazy.once.Do(func() {
		rs, ok := rulesFor(lang)
		if !ok {
			lazy.err = parser.ErrUnsupportedLanguage
			return
		}
		grammar, err := parser.Grammar(lang)
		if err != nil {
			lazy.err = err
			return
		}
		lazy.set, lazy.err = compile(rs, grammar)
	})
	return lazy.set, lazy.err
}

// querySource renders the rules as one query text, one pattern per rule.
func querySource(rs *ruleSet) string {
	var b strings.Builder
	for _, r := range rs.Rules {
		b.WriteString(strings.ReplaceAll(r.Pattern, "@rule", "@"+r.Name))
		b.WriteByte('\n')
	}
	return b.String()
}

func compile(rs *ruleSet, grammar *sitter.Language) (*compiledSet, error) {
	q, err := sitter.NewQuery([]byte(querySource(rs)), grammar)
	if err != nil {
		return nil, fmt.Errorf("validator: compile query: %w", err)
	}
	if int(q.PatternCount()) != len(rs.Rules) {
		q.Close()
		return nil, fmt.Errorf("validator: query has %d patterns for %d rules", q.PatternCount(), len(rs.Rules))
	}

	set := &compiledSet{
		query:   q,
		rules:   make([]compiledRule, len(rs.Rules)),
		markers: toSet(rs.Markers),
		opaque:  toSet(rs.Opaque),
	}
	for i, r := range rs.Rules {
		cr := compiledRule{name: r.Name, skip: r.Skip, fold: r.Fold}
		if r.Match != "" {
			if cr.match, err = regexp.Compile(r.Match); err != nil {
				q.Close()
				return nil, fmt.Errorf("validator: rule %s: %w", r.Name, err)
			}
		}
		if r.Except != "" {
			if cr.except, err = regexp.Compile(r.Except); err != nil {
				q.Close()
				return nil, fmt.Errorf("validator: rule %s: %w", r.Name, err)
			}
		}
		set.rules[i] = cr
	}
	return set, nil
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

// fires reports whether the rule accepts the subject node.
func (r *compiledRule) fires(subject *sitter.Node, source []byte) bool {
	if subject == nil {
		return r.match == nil
	}
	if r.skip != nil && r.skip(subject) {
		return false
	}
	text := subject.Content(source)
	if r.fold != nil {
		text = r.fold(subject, source)
	}
	if r.match != nil && !r.match.MatchString(text) {
		return false
	}
	if r.except != nil && r.except.MatchString(text) {
		return false
	}
	return true
}
