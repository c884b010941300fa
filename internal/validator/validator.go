// Package validator rejects submissions that contain dangerous constructs
// before any process is spawned.
package validator

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/metrics"
	"github.com/Harsh-BH/codr/internal/parser"
)

const (
	snippetBytes = 50

	reasonSyntaxError     = "Syntax error in code"
	ruleInlineAssembly    = "inline_assembly"
	messageInlineAssembly = "Inline assembly not allowed"
	ruleSyntax            = "syntax_error"
	ruleParser            = "parser_error"
	ruleUnsupported       = "unsupported_language"
)

// Validator checks source code against the per-language rule sets.
// It is safe for concurrent use.
type Validator struct {
	parser *parser.Adapter
	logger *zap.Logger
}

// New creates a validator backed by the given parser adapter.
func New(adapter *parser.Adapter, logger *zap.Logger) *Validator {
	return &Validator{parser: adapter, logger: logger}
}

// Check is the boolean form of Validate: (true, "") when the code is accepted,
// otherwise (false, reason).
func (v *Validator) Check(ctx context.Context, code, language string) (bool, string) {
	verdict := v.Validate(ctx, code, language)
	return verdict.Accepted, verdict.Reason
}

// Validate parses code and returns the first violation found, if any.
func (v *Validator) Validate(ctx context.Context, code, language string) domain.Verdict {
	lang, err := domain.ParseLanguage(language)
	if err != nil {
		return v.reject("unknown", domain.Finding{
			RuleName: ruleUnsupported,
			Message:  "Unsupported language: " + language,
		})
	}

	set, err := compiledFor(lang)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedLanguage) {
			return v.reject(string(lang), domain.Finding{
				RuleName: ruleUnsupported,
				Message:  "Unsupported language: " + language,
			})
		}
		v.logger.Error("rule set failed to compile", zap.String("language", string(lang)), zap.Error(err))
		return v.reject(string(lang), domain.Finding{RuleName: ruleParser, Message: "Parser error: " + err.Error()})
	}

	tree, err := v.parser.Parse(ctx, []byte(code), lang)
	if err != nil {
		return v.reject(string(lang), domain.Finding{RuleName: ruleParser, Message: "Parser error: " + err.Error()})
	}
	defer tree.Close()

	if tree.HasError() {
		return v.reject(string(lang), domain.Finding{RuleName: ruleSyntax, Message: reasonSyntaxError})
	}

	if f, ok := v.runQuery(ctx, tree, set); ok {
		return v.reject(string(lang), f)
	}
	if ctx.Err() != nil {
		return v.reject(string(lang), domain.Finding{RuleName: ruleParser, Message: "Parser error: " + ctx.Err().Error()})
	}

	if n := findMarker(tree.Root(), tree.Source(), set); n != nil {
		return v.reject(string(lang), domain.Finding{
			RuleName: ruleInlineAssembly,
			Message:  messageInlineAssembly,
			Snippet:  snippet(tree.Text(n)),
		})
	}

	return domain.Accept()
}

// runQuery returns the finding of the first rule that fires.
func (v *Validator) runQuery(ctx context.Context, tree *parser.Tree, set *compiledSet) (domain.Finding, bool) {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(set.query, tree.Root())

	for {
		if ctx.Err() != nil {
			return domain.Finding{}, false
		}
		m, ok := qc.NextMatch()
		if !ok {
			return domain.Finding{}, false
		}
		if int(m.PatternIndex) >= len(set.rules) {
			continue
		}
		r := &set.rules[m.PatternIndex]

		var subject, reported *sitter.Node
		for _, c := range m.Captures {
			switch set.query.CaptureNameForId(c.Index) {
			case subjectCapture:
				subject = c.Node
			case r.name:
				reported = c.Node
			}
		}
		if !r.fires(subject, tree.Source()) {
			continue
		}
		if reported == nil {
			reported = subject
		}
		if reported == nil {
			continue
		}

		text := snippet(tree.Text(reported))
		return domain.Finding{
			RuleName: r.name,
			Message:  readable(r.name) + ": " + text,
			Snippet:  text,
		}, true
	}
}

func (v *Validator) reject(language string, f domain.Finding) domain.Verdict {
	metrics.ValidationRejections.WithLabelValues(language, f.RuleName).Inc()
	v.logger.Debug("submission rejected",
		zap.String("language", language),
		zap.String("rule", f.RuleName),
	)
	return domain.RejectFinding(f)
}

// readable turns a rule name such as "dangerous_call" into "Dangerous call".
func readable(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// snippet returns at most the first snippetBytes bytes of text without
// splitting a UTF-8 sequence.
func snippet(text string) string {
	if len(text) <= snippetBytes {
		return text
	}
	cut := snippetBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
