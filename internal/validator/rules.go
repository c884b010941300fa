package validator

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Harsh-BH/codr/internal/domain"
)

// rule is one forbidden syntactic shape. Pattern is a single tree-sitter
// pattern; "@rule" marks the reported span and "@_v" the node whose text
// must match Match (and must not match Except). Rules without Match fire on
// the shape alone.
type rule struct {
	Name    string
	Pattern string
	Match   string
	Except  string
	// Skip drops a candidate node before matching.
	Skip func(n *sitter.Node) bool
	// Fold, when set, replaces the subject text before matching.
	Fold func(n *sitter.Node, source []byte) string
}

// ruleSet is the declarative rule list of one language plus the raw token
// markers that are forbidden outside comments and literals.
type ruleSet struct {
	Rules   []rule
	Markers []string
	// Opaque lists node types whose subtrees are not scanned for markers.
	Opaque []string
}

func alt(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// exact matches any of words as the whole text.
func exact(words ...string) string { return `^(` + alt(words) + `)$` }

// quoted matches a string literal whose whole content is one of words.
func quoted(words ...string) string {
	return "^[A-Za-z]*[\"'`]+(" + alt(words) + ")[\"'`]+$"
}

// contains matches text containing any of words.
func contains(words ...string) string { return `(` + alt(words) + `)` }

// dotted matches a module path rooted at one of words.
func dotted(words ...string) string { return `^(` + alt(words) + `)(\..*)?$` }

// ---------------------------------------------------------------------------
// python
// ---------------------------------------------------------------------------

var (
	pythonBlockedCalls = []string{
		"eval", "exec", "compile", "__import__",
		"open", "file",
		"globals", "locals", "vars", "dir", "getattr", "setattr", "delattr", "hasattr",
		"exit", "quit", "help", "breakpoint", "memoryview",
	}

	// Referencing these at all is enough to reach the interpreter internals.
	pythonBlockedNames = []string{
		"eval", "exec", "compile", "__import__", "__builtins__", "__loader__", "__spec__",
		"globals", "locals", "vars", "getattr", "setattr", "delattr", "breakpoint",
		"open", "file", "memoryview", "help", "exit", "quit",
	}

	pythonBlockedMethods = []string{
		"system", "popen", "spawn", "spawnl", "spawnv", "fork", "forkpty", "kill", "killpg",
		"execv", "execve", "execl", "execlp", "execvp", "execvpe",
		"remove", "unlink", "rmdir", "rmtree", "chmod", "chown",
	}

	pythonBlockedModules = []string{
		"os", "sys", "io", "pathlib", "glob", "shutil", "tempfile", "fileinput",
		"subprocess", "multiprocessing", "threading", "_thread", "asyncio", "concurrent",
		"socket", "socketserver", "select", "selectors", "urllib", "urllib2", "urllib3",
		"http", "httplib", "ftplib", "smtplib", "telnetlib", "ssl", "requests",
		"importlib", "imp", "code", "codeop", "runpy", "builtins", "inspect", "gc",
		"ctypes", "cffi", "mmap", "fcntl", "pty", "tty", "termios", "posix", "pwd", "grp",
		"resource", "signal", "platform", "sysconfig",
		"pickle", "shelve", "marshal", "dill",
	}

	pythonSafeDunders = []string{"__str__", "__repr__", "__len__", "__init__", "__name__", "__main__"}
)

// isAttributeName reports whether n is the `attribute` field of an attribute
// node, e.g. `compile` in `re.compile`.
func isAttributeName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil || parent.Type() != "attribute" {
		return false
	}
	attr := parent.ChildByFieldName("attribute")
	return attr != nil && attr.StartByte() == n.StartByte() && attr.EndByte() == n.EndByte()
}

var pythonRules = ruleSet{
	Rules: []rule{
		{Name: "blocked_import", Pattern: `(import_statement name: (dotted_name) @_v) @rule`, Match: dotted(pythonBlockedModules...)},
		{Name: "blocked_import", Pattern: `(import_statement name: (aliased_import name: (dotted_name) @_v)) @rule`, Match: dotted(pythonBlockedModules...)},
		{Name: "blocked_import", Pattern: `(import_from_statement module_name: (dotted_name) @_v) @rule`, Match: dotted(pythonBlockedModules...)},
		{Name: "dangerous_call", Pattern: `(call function: (identifier) @_v) @rule`, Match: exact(pythonBlockedCalls...)},
		{Name: "dangerous_call", Pattern: `(call function: (attribute attribute: (identifier) @_v)) @rule`, Match: exact(pythonBlockedMethods...)},
		{Name: "blocked_builtin", Pattern: `(identifier) @_v`, Match: exact(pythonBlockedNames...), Skip: isAttributeName},
		{Name: "dunder_access", Pattern: `(attribute attribute: (identifier) @_v) @rule`, Match: `^__\w+__$`, Except: exact(pythonSafeDunders...)},
		{Name: "obfuscated_access", Pattern: `(subscript subscript: (string) @_v) @rule`, Match: quoted(concat(pythonBlockedCalls, pythonBlockedNames, pythonBlockedModules)...)},
		{Name: "obfuscated_access", Pattern: `(subscript subscript: (string) @_v) @rule`, Match: "^[A-Za-z]*[\"']+__\\w+__[\"']+$"},
	},
}

// ---------------------------------------------------------------------------
// javascript
// ---------------------------------------------------------------------------

var (
	javascriptBlockedNames = []string{
		"eval", "Function", "require", "process", "global", "globalThis",
		"__dirname", "__filename", "module", "exports", "WebAssembly", "Deno", "Bun",
	}

	javascriptBlockedProperties = []string{
		"constructor", "__proto__", "__defineGetter__", "__defineSetter__",
		"__lookupGetter__", "__lookupSetter__", "binding", "_linkedBinding",
		"mainModule", "dlopen",
	}

	javascriptBlockedModules = []string{
		"fs", "path", "os", "child_process", "cluster", "worker_threads",
		"net", "http", "https", "http2", "dgram", "dns", "tls", "inspector",
		"v8", "vm", "repl", "module",
	}

	javascriptTimers = []string{"setTimeout", "setInterval", "setImmediate"}
)

var javascriptRules = ruleSet{
	Rules: []rule{
		{Name: "blocked_import", Pattern: `(import_statement) @rule`},
		{Name: "dynamic_import", Pattern: `(call_expression function: (import)) @rule`},
		{Name: "blocked_identifier", Pattern: `(identifier) @_v`, Match: exact(javascriptBlockedNames...)},
		{Name: "dangerous_property", Pattern: `(member_expression property: (property_identifier) @_v) @rule`, Match: exact(javascriptBlockedProperties...)},
		{Name: "obfuscated_access", Pattern: `(subscript_expression index: (_) @_v) @rule`, Match: exact(concat(javascriptBlockedNames, javascriptBlockedProperties, javascriptBlockedModules)...), Fold: foldJSStrings},
		{Name: "computed_member_access", Pattern: `(subscript_expression index: (binary_expression) @_v) @rule`, Skip: hasNoJSString},
		{Name: "computed_member_access", Pattern: `(subscript_expression index: (template_string (template_substitution))) @rule`},
		{Name: "string_evaluation", Pattern: `(call_expression function: (identifier) @_v arguments: (arguments . (string))) @rule`, Match: exact(javascriptTimers...)},
	},
}

// ---------------------------------------------------------------------------
// c / c++
// ---------------------------------------------------------------------------

var (
	cBlockedFunctions = []string{
		"system", "popen", "fork", "vfork", "clone", "kill", "killpg", "raise", "ptrace", "syscall",
		"fopen", "freopen", "open", "openat", "creat", "remove", "unlink", "unlinkat", "rmdir",
		"rename", "link", "symlink", "chmod", "chown", "chdir", "chroot", "opendir", "mkfifo",
		"socket", "connect", "bind", "listen", "accept", "socketpair",
		"dlopen", "dlsym", "dlmopen", "mmap", "mprotect",
		"setuid", "setgid", "seteuid", "setegid",
	}

	cBlockedHeaders = []string{
		"sys/", "unistd.h", "fcntl.h", "dlfcn.h", "netinet/", "arpa/", "netdb.h",
		"spawn.h", "signal.h", "csignal", "linux/", "asm/",
	}

	cppBlockedHeaders = concat(cBlockedHeaders, []string{"fstream", "filesystem"})
)

// cFunctionPattern matches blocked function names including the exec and
// posix_spawn families.
var cFunctionPattern = `^(` + alt(cBlockedFunctions) + `|_?exec[a-z]*|posix_spawn[a-z]*)$`

var cCommonRules = []rule{
	{Name: "blocked_header", Pattern: `(preproc_include path: (system_lib_string) @_v) @rule`, Match: contains(cBlockedHeaders...)},
	{Name: "blocked_header", Pattern: `(preproc_include path: (string_literal) @_v) @rule`, Match: contains(cBlockedHeaders...)},
	{Name: "dangerous_call", Pattern: `(call_expression function: (identifier) @_v) @rule`, Match: cFunctionPattern},
	{Name: "dangerous_call", Pattern: `(call_expression function: (field_expression field: (field_identifier) @_v)) @rule`, Match: cFunctionPattern},
	{Name: "dangerous_call", Pattern: `(call_expression function: (parenthesized_expression (pointer_expression argument: (identifier) @_v))) @rule`, Match: cFunctionPattern},
	{Name: "function_pointer_alias", Pattern: `(init_declarator value: (identifier) @_v) @rule`, Match: cFunctionPattern},
	{Name: "function_pointer_alias", Pattern: `(assignment_expression right: (identifier) @_v) @rule`, Match: cFunctionPattern},
	{Name: "function_pointer_alias", Pattern: `(pointer_expression argument: (identifier) @_v) @rule`, Match: cFunctionPattern},
	{Name: "function_pointer_alias", Pattern: `(argument_list (identifier) @_v) @rule`, Match: cFunctionPattern},
}

var cMarkers = []string{"asm", "__asm", "__asm__"}

var cOpaque = []string{
	"comment", "string_literal", "char_literal", "raw_string_literal",
	"system_lib_string", "concatenated_string",
}

var cRules = ruleSet{
	Rules:   cCommonRules,
	Markers: cMarkers,
	Opaque:  cOpaque,
}

var cppRules = ruleSet{
	Rules: concatRules(
		[]rule{
			{Name: "blocked_header", Pattern: `(preproc_include path: (system_lib_string) @_v) @rule`, Match: contains(cppBlockedHeaders...)},
			{Name: "blocked_header", Pattern: `(preproc_include path: (string_literal) @_v) @rule`, Match: contains(cppBlockedHeaders...)},
		},
		cCommonRules[2:],
		[]rule{
			{Name: "dangerous_call", Pattern: `(call_expression function: (qualified_identifier name: (identifier) @_v)) @rule`, Match: cFunctionPattern},
			{Name: "dangerous_call", Pattern: `(call_expression function: (qualified_identifier name: (qualified_identifier name: (identifier) @_v))) @rule`, Match: cFunctionPattern},
		},
	),
	Markers: cMarkers,
	Opaque:  cOpaque,
}

func concatRules(lists ...[]rule) []rule {
	var out []rule
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// ---------------------------------------------------------------------------
// rust
// ---------------------------------------------------------------------------

var (
	rustBlockedModules = []string{"fs", "net", "process", "os", "env", "ffi", "arch", "intrinsics"}
	rustForeignCrates  = []string{"libc", "nix", "winapi", "windows_sys"}
	rustBlockedMacros  = []string{
		"asm", "global_asm", "llvm_asm", "naked_asm",
		"include", "include_str", "include_bytes", "env", "option_env",
	}
)

var rustStdPath = `^(::)?\s*(std|core|alloc)\s*::\s*(` + alt(rustBlockedModules) + `)\b`

var rustRules = ruleSet{
	Rules: []rule{
		{Name: "unsafe_code", Pattern: `(unsafe_block) @rule`},
		{Name: "unsafe_code", Pattern: `"unsafe" @rule`},
		{Name: "foreign_function_interface", Pattern: `(extern_modifier) @rule`},
		{Name: "extern_crate", Pattern: `(extern_crate_declaration) @rule`},
		{Name: "blocked_module", Pattern: `(scoped_identifier) @_v`, Match: rustStdPath + `|^(::)?\s*(` + alt(rustForeignCrates) + `)\s*::`},
		{Name: "blocked_module", Pattern: `(scoped_use_list) @_v`, Match: `(?s)^(::)?\s*(std|core|alloc)\s*::\s*\{.*\b(` + alt(rustBlockedModules) + `)\b`},
		{Name: "blocked_module", Pattern: `(use_wildcard) @_v`, Match: `^(::)?\s*(std|core|alloc)\s*::\s*\*$`},
		{Name: "blocked_module", Pattern: `(use_as_clause path: (identifier) @_v) @rule`, Match: exact("std", "core", "alloc")},
		{Name: "blocked_macro", Pattern: `(macro_invocation macro: (identifier) @_v) @rule`, Match: exact(rustBlockedMacros...)},
	},
}

// rulesFor returns the rule set of a language.
func rulesFor(lang domain.Language) (*ruleSet, bool) {
	switch lang {
	case domain.LangPython:
		return &pythonRules, true
	case domain.LangJavaScript:
		return &javascriptRules, true
	case domain.LangC:
		return &cRules, true
	case domain.LangCpp:
		return &cppRules, true
	case domain.LangRust:
		return &rustRules, true
	}
	return nil, false
}
