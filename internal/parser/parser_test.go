package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/Harsh-BH/codr/internal/domain"
)

func TestParse_AllLanguages(t *testing.T) {
	a := NewAdapter()
	samples := map[domain.Language]string{
		domain.LangPython:     "print('hello')\n",
		domain.LangJavaScript: "console.log('hello');\n",
		domain.LangC:          "#include <stdio.h>\nint main(void) { printf(\"hi\\n\"); return 0; }\n",
		domain.LangCpp:        "#include <iostream>\nint main() { std::cout << \"hi\" << std::endl; }\n",
		domain.LangRust:       "fn main() { println!(\"hi\"); }\n",
	}

	for lang, src := range samples {
		tree, err := a.Parse(context.Background(), []byte(src), lang)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", lang, err)
		}
		if tree.HasError() {
			t.Errorf("%s: expected clean parse", lang)
		}
		if tree.Text(tree.Root()) == "" {
			t.Errorf("%s: expected root text", lang)
		}
		tree.Close()
	}
}

func TestParse_SyntaxErrorIsReportedOnTree(t *testing.T) {
	a := NewAdapter()
	tree, err := a.Parse(context.Background(), []byte("def broken(:\n"), domain.LangPython)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tree.Close()
	if !tree.HasError() {
		t.Error("expected error nodes in tree")
	}
}

func TestParse_UnsupportedLanguage(t *testing.T) {
	a := NewAdapter()
	_, err := a.Parse(context.Background(), []byte("puts 'hi'"), domain.Language("ruby"))
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}
