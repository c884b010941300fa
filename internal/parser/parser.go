// Package parser wraps the tree-sitter grammars used to inspect submissions.
package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/Harsh-BH/codr/internal/domain"
)

// ErrUnsupportedLanguage is returned for languages without a grammar.
var ErrUnsupportedLanguage = errors.New("parser: unsupported language")

// ParseError reports a failure of the underlying parser itself.
type ParseError struct {
	Language domain.Language
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser: parse %s: %v", e.Language, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Grammar returns the tree-sitter grammar for a language.
func Grammar(lang domain.Language) (*sitter.Language, error) {
	switch lang {
	case domain.LangPython:
		return python.GetLanguage(), nil
	case domain.LangJavaScript:
		return javascript.GetLanguage(), nil
	case domain.LangC:
		return c.GetLanguage(), nil
	case domain.LangCpp:
		return cpp.GetLanguage(), nil
	case domain.LangRust:
		return rust.GetLanguage(), nil
	}
	return nil, ErrUnsupportedLanguage
}

// Tree is a parsed concrete syntax tree together with its source.
type Tree struct {
	tree   *sitter.Tree
	source []byte
}

// Root returns the root node.
func (t *Tree) Root() *sitter.Node { return t.tree.RootNode() }

// Source returns the bytes the tree was parsed from.
func (t *Tree) Source() []byte { return t.source }

// HasError reports whether the tree contains ERROR or MISSING nodes.
func (t *Tree) HasError() bool { return t.Root().HasError() }

// Text returns the source span covered by n.
func (t *Tree) Text(n *sitter.Node) string { return n.Content(t.source) }

// Close releases the native tree.
func (t *Tree) Close() { t.tree.Close() }

// Adapter parses source code for every supported language.
// Parsers are pooled per language because a tree-sitter parser must not be
// used by two goroutines at once; an Adapter itself is safe for concurrent use.
type Adapter struct {
	pools map[domain.Language]*sync.Pool
}

// NewAdapter creates an adapter with a parser pool for each supported language.
func NewAdapter() *Adapter {
	a := &Adapter{pools: make(map[domain.Language]*sync.Pool, len(domain.Languages))}
	for _, lang := range domain.Languages {
		grammar, err := Grammar(lang)
		if err != nil {
			continue
		}
		a.pools[lang] = &sync.Pool{
			New: func() any {
				p := sitter.NewParser()
				p.SetLanguage(grammar)
				return p
			},
		}
	}
	return a
}

// Parse parses source with the grammar of lang.
func (a *Adapter) Parse(ctx context.Context, source []byte, lang domain.Language) (*Tree, error) {
	pool, ok := a.pools[lang]
	if !ok {
		return nil, ErrUnsupportedLanguage
	}

	p := pool.Get().(*sitter.Parser)
	defer pool.Put(p)

	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		// A cancelled parse leaves the parser mid-document.
		p.Reset()
		return nil, &ParseError{Language: lang, Err: err}
	}
	if tree == nil {
		return nil, &ParseError{Language: lang, Err: errors.New("no tree produced")}
	}
	return &Tree{tree: tree, source: source}, nil
}
