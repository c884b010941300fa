package executor

import (
	"context"

	"github.com/Harsh-BH/codr/internal/domain"
)

// OutputFunc receives process output chunks as they are produced. It may be
// called from several goroutines and must not retain data after returning.
type OutputFunc func(stream domain.Stream, data []byte)

// Executor runs one submission to completion.
//
// Execute streams output through onOutput while the process runs and writes
// every chunk received on input to the process stdin in arrival order; stdin
// is closed when input is closed. A nonzero exit is reported in the result,
// not as an error. An error means the execution could not be carried out.
type Executor interface {
	Execute(ctx context.Context, req *domain.ExecutionRequest, onOutput OutputFunc, input <-chan []byte) (*domain.ExecutionResult, error)
}

// Registry maps the closed set of supported languages to executors.
// It is built once at startup and read-only afterwards.
type Registry struct {
	executors map[domain.Language]Executor
}

// NewRegistry creates a registry from explicit language bindings.
func NewRegistry(executors map[domain.Language]Executor) *Registry {
	m := make(map[domain.Language]Executor, len(executors))
	for lang, exe := range executors {
		m[lang] = exe
	}
	return &Registry{executors: m}
}

// NewSandboxRegistry binds every language the sandbox knows to it.
func NewSandboxRegistry(sandbox *SandboxExecutor) *Registry {
	m := make(map[domain.Language]Executor, len(domain.Languages))
	for _, lang := range domain.Languages {
		if _, ok := sandbox.toolchains[lang]; ok {
			m[lang] = sandbox
		}
	}
	return &Registry{executors: m}
}

// Resolve returns the executor for a language name or alias.
func (r *Registry) Resolve(language string) (Executor, domain.Language, error) {
	lang, err := domain.ParseLanguage(language)
	if err != nil {
		return nil, "", err
	}
	exe, ok := r.executors[lang]
	if !ok {
		return nil, "", domain.ErrUnknownLanguage
	}
	return exe, lang, nil
}

// Languages describes the languages this registry can run, in stable order.
func (r *Registry) Languages() []domain.LanguageInfo {
	var out []domain.LanguageInfo
	for _, lang := range domain.Languages {
		if _, ok := r.executors[lang]; ok {
			out = append(out, Describe(lang))
		}
	}
	return out
}

// Catalog describes every language the sandbox supports. The API server
// uses it without running any executor itself.
func Catalog() []domain.LanguageInfo {
	out := make([]domain.LanguageInfo, 0, len(domain.Languages))
	for _, lang := range domain.Languages {
		if _, ok := defaultToolchains[lang]; ok {
			out = append(out, Describe(lang))
		}
	}
	return out
}

// Describe returns the public description of a language.
func Describe(lang domain.Language) domain.LanguageInfo {
	info := domain.LanguageInfo{
		Name:      lang,
		Extension: lang.Extension(),
		Compiled:  defaultToolchains[lang].Compile != nil,
	}
	switch lang {
	case domain.LangJavaScript:
		info.Aliases = []string{"js"}
	case domain.LangCpp:
		info.Aliases = []string{"c++"}
	}
	return info
}
