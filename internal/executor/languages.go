package executor

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Harsh-BH/codr/internal/domain"
)

// dirPlaceholder is replaced in argv by the directory holding the sources.
const dirPlaceholder = "{dir}"

// toolchain describes how one language is built and run.
type toolchain struct {
	// Config is the nsjail config file name inside the config directory.
	Config string
	// Source is the default source file name.
	Source string
	// Compile is the optional build argv; it may reference {src}.
	Compile []string
	// Run is the program argv; it may reference {src}.
	Run []string
}

const srcPlaceholder = "{src}"

// unbuffered runs a program with stdio buffering disabled. glibc fully
// buffers stdout on a pipe, which would hold back prompts until exit.
var unbuffered = []string{"/usr/bin/stdbuf", "-o0", "-e0"}

func withUnbuffered(argv ...string) []string {
	return append(append([]string{}, unbuffered...), argv...)
}

var defaultToolchains = map[domain.Language]toolchain{
	domain.LangPython: {
		Config: "python.cfg",
		Source: "main.py",
		Run:    []string{"/usr/bin/python3", "-u", srcPlaceholder},
	},
	domain.LangJavaScript: {
		Config: "javascript.cfg",
		Source: "main.js",
		Run:    []string{"/usr/bin/node", srcPlaceholder},
	},
	domain.LangC: {
		Config:  "c.cfg",
		Source:  "main.c",
		Compile: []string{"/usr/bin/gcc", "-std=c17", "-O2", "-o", dirPlaceholder + "/program", srcPlaceholder, "-lm"},
		Run:     withUnbuffered(dirPlaceholder + "/program"),
	},
	domain.LangCpp: {
		Config:  "cpp.cfg",
		Source:  "main.cpp",
		Compile: []string{"/usr/bin/g++", "-std=c++17", "-O2", "-o", dirPlaceholder + "/program", srcPlaceholder},
		Run:     withUnbuffered(dirPlaceholder + "/program"),
	},
	domain.LangRust: {
		Config:  "rust.cfg",
		Source:  "main.rs",
		Compile: []string{"/usr/bin/rustc", "-O", "-o", dirPlaceholder + "/program", srcPlaceholder},
		Run:     []string{dirPlaceholder + "/program"},
	},
}

var safeFilename = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// sourceName picks the file name the source is written to. A caller supplied
// name is honoured only when it is a plain name with the right extension.
func (s toolchain) sourceName(filename string) string {
	if filename == "" {
		return s.Source
	}
	base := filepath.Base(filename)
	if base != filename || !safeFilename.MatchString(base) {
		return s.Source
	}
	if filepath.Ext(base) != filepath.Ext(s.Source) {
		return s.Source
	}
	return base
}

// expand substitutes placeholders in argv.
func expand(argv []string, dir, src string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		a = strings.ReplaceAll(a, srcPlaceholder, dir+"/"+src)
		out[i] = strings.ReplaceAll(a, dirPlaceholder, dir)
	}
	return out
}
