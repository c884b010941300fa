package domain

import "strings"

// Language represents a supported programming language.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangC          Language = "c"
	LangCpp        Language = "cpp"
	LangRust       Language = "rust"
)

// Languages lists every supported language in a stable order.
var Languages = []Language{LangPython, LangJavaScript, LangC, LangCpp, LangRust}

var languageAliases = map[string]Language{
	"python":     LangPython,
	"javascript": LangJavaScript,
	"js":         LangJavaScript,
	"c":          LangC,
	"cpp":        LangCpp,
	"c++":        LangCpp,
	"rust":       LangRust,
}

// ParseLanguage resolves a language name or alias, case-insensitively.
func ParseLanguage(name string) (Language, error) {
	lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", ErrUnknownLanguage
	}
	return lang, nil
}

// Extension returns the conventional source file extension.
func (l Language) Extension() string {
	switch l {
	case LangPython:
		return ".py"
	case LangJavaScript:
		return ".js"
	case LangC:
		return ".c"
	case LangCpp:
		return ".cpp"
	case LangRust:
		return ".rs"
	}
	return ".txt"
}

// LanguageInfo describes a supported language.
type LanguageInfo struct {
	Name      Language `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	Extension string   `json:"extension"`
	Compiled  bool     `json:"compiled"`
}
