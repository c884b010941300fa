package validator

import (
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// foldJSStrings concatenates, in source order, the text of every string and
// template literal below n, so that keys such as 'con'+'structor',
// `${'con'}structor` or ['constructor'].join('') fold to the name they spell.
func foldJSStrings(n *sitter.Node, source []byte) string {
	var b strings.Builder
	foldJS(n, source, &b)
	return b.String()
}

func foldJS(n *sitter.Node, source []byte, b *strings.Builder) {
	switch n.Type() {
	case "string":
		text := n.Content(source)
		if len(text) >= 2 {
			b.WriteString(unescapeJS(text[1 : len(text)-1]))
		}
	case "template_string":
		pos := n.StartByte() + 1
		end := n.EndByte() - 1
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() != "template_substitution" {
				continue
			}
			if child.StartByte() > pos {
				b.WriteString(unescapeJS(string(source[pos:child.StartByte()])))
			}
			foldJS(child, source, b)
			pos = child.EndByte()
		}
		if end > pos {
			b.WriteString(unescapeJS(string(source[pos:end])))
		}
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			foldJS(n.NamedChild(i), source, b)
		}
	}
}

// hasNoJSString reports whether no string or template literal occurs below n.
func hasNoJSString(n *sitter.Node) bool {
	switch n.Type() {
	case "string", "template_string":
		return false
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if !hasNoJSString(n.NamedChild(i)) {
			return false
		}
	}
	return true
}

// unescapeJS decodes the escapes of a JavaScript literal body. Unknown or
// malformed escapes keep the escaped character.
func unescapeJS(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'x':
			if r, ok := hexRune(s, i+1, 2); ok {
				b.WriteRune(r)
				i += 2
				continue
			}
		case 'u':
			if i+1 < len(s) && s[i+1] == '{' {
				if end := strings.IndexByte(s[i+2:], '}'); end > 0 {
					if r, ok := hexRune(s, i+2, end); ok {
						b.WriteRune(r)
						i += end + 2
						continue
					}
				}
			} else if r, ok := hexRune(s, i+1, 4); ok {
				b.WriteRune(r)
				i += 4
				continue
			}
		case 'n':
			b.WriteByte('\n')
			continue
		case 't':
			b.WriteByte('\t')
			continue
		case '\n':
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexRune(s string, start, n int) (rune, bool) {
	if start+n > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[start:start+n], 16, 32)
	if err != nil || !utf8.ValidRune(rune(v)) {
		return 0, false
	}
	return rune(v), true
}
