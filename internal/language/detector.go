// Package language maps file paths to canonical language tags.
//
// Detection looks only at the path: a special basename such as "Dockerfile"
// first, then the extension. File content is never inspected.
package language

import (
	"path"
	"sort"
	"strings"

	"github.com/kushal45/reviewgraph/internal/types"
)

// Canonical language tags.
const (
	Python     types.Language = "python"
	JavaScript types.Language = "javascript"
	TypeScript types.Language = "typescript"
	Go         types.Language = "go"
	Java       types.Language = "java"
	Kotlin     types.Language = "kotlin"
	Ruby       types.Language = "ruby"
	PHP        types.Language = "php"
	C          types.Language = "c"
	CPP        types.Language = "cpp"
	CSharp     types.Language = "csharp"
	Rust       types.Language = "rust"
	Swift      types.Language = "swift"
	Scala      types.Language = "scala"
	Shell      types.Language = "shell"
	Dockerfile types.Language = "dockerfile"
	Makefile   types.Language = "makefile"
	YAML       types.Language = "yaml"
	JSON       types.Language = "json"
	Markdown   types.Language = "markdown"
	HTML       types.Language = "html"
	CSS        types.Language = "css"
	SQL        types.Language = "sql"
	Terraform  types.Language = "terraform"
)

// Unknown is returned for paths no table entry matches.
const Unknown = types.LanguageUnknown

var extensions = map[string]types.Language{
	".py":    Python,
	".pyi":   Python,
	".js":    JavaScript,
	".jsx":   JavaScript,
	".mjs":   JavaScript,
	".cjs":   JavaScript,
	".ts":    TypeScript,
	".tsx":   TypeScript,
	".mts":   TypeScript,
	".go":    Go,
	".java":  Java,
	".kt":    Kotlin,
	".kts":   Kotlin,
	".rb":    Ruby,
	".php":   PHP,
	".c":     C,
	".h":     C,
	".cc":    CPP,
	".cpp":   CPP,
	".cxx":   CPP,
	".hpp":   CPP,
	".cs":    CSharp,
	".rs":    Rust,
	".swift": Swift,
	".scala": Scala,
	".sh":    Shell,
	".bash":  Shell,
	".zsh":   Shell,
	".yml":   YAML,
	".yaml":  YAML,
	".json":  JSON,
	".md":    Markdown,
	".html":  HTML,
	".htm":   HTML,
	".css":   CSS,
	".scss":  CSS,
	".sql":   SQL,
	".tf":    Terraform,
}

// basenames match the whole file name exactly.
var basenames = map[string]types.Language{
	"Dockerfile":    Dockerfile,
	"Containerfile": Dockerfile,
	"Makefile":      Makefile,
	"GNUmakefile":   Makefile,
	"makefile":      Makefile,
	"Gemfile":       Ruby,
	"Rakefile":      Ruby,
}

// prefixes match names like "Dockerfile.prod".
var prefixes = map[string]types.Language{
	"Dockerfile.":    Dockerfile,
	"Containerfile.": Dockerfile,
}

// Detect returns the language of the file at p, or "unknown".
func Detect(p string) types.Language {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if base == "." || base == "/" {
		return Unknown
	}

	if lang, ok := basenames[base]; ok {
		return lang
	}
	for prefix, lang := range prefixes {
		if strings.HasPrefix(base, prefix) {
			return lang
		}
	}
	if strings.HasSuffix(strings.ToLower(base), ".dockerfile") {
		return Dockerfile
	}

	ext := strings.ToLower(path.Ext(base))
	if ext == "" || ext == strings.ToLower(base) {
		return Unknown
	}
	if lang, ok := extensions[ext]; ok {
		return lang
	}
	return Unknown
}

// Resolve returns declared when it is set and not unknown, and otherwise the
// language detected from p.
func Resolve(p string, declared types.Language) types.Language {
	if declared != "" && declared != Unknown {
		return types.Language(strings.ToLower(string(declared)))
	}
	return Detect(p)
}

// Languages lists every tag Detect can return except "unknown", sorted.
func Languages() []types.Language {
	seen := make(map[types.Language]bool)
	for _, l := range extensions {
		seen[l] = true
	}
	for _, l := range basenames {
		seen[l] = true
	}
	for _, l := range prefixes {
		seen[l] = true
	}
	out := make([]types.Language, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether lang is one of the tags Languages returns.
func Known(lang types.Language) bool {
	for _, l := range Languages() {
		if l == lang {
			return true
		}
	}
	return false
}
