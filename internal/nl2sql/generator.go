// Package nl2sql talks to the text generation backend that turns prompts
// into SQL.
package nl2sql

import (
	"context"
	"strings"
)

// Generator returns the raw model completion for prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const fence = "```"

// StripMarkdownSQL returns the query inside the first markdown code fence,
// dropping an optional language tag such as "sql". Text without a fence is
// returned trimmed.
func StripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	start := strings.Index(trimmed, fence)
	if start < 0 {
		return trimmed
	}
	body := trimmed[start+len(fence):]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 && isLanguageTag(body[:newline]) {
		body = body[newline+1:]
	} else if tag, _, _ := strings.Cut(body, fence); isLanguageTag(tag) {
		return ""
	} else {
		body = trimLanguagePrefix(body)
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

var languageTags = map[string]struct{}{
	"sql": {}, "postgresql": {}, "postgres": {}, "pgsql": {}, "psql": {}, "plpgsql": {},
	"mysql": {}, "mariadb": {}, "tsql": {}, "t-sql": {}, "mssql": {}, "sqlserver": {},
	"duckdb": {}, "sqlite": {}, "plsql": {}, "ansi": {},
}

// isLanguageTag reports whether value is empty or a known fence language.
// SQL keywords are never tags, so "```SELECT" keeps its statement.
func isLanguageTag(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return true
	}
	_, ok := languageTags[value]
	return ok
}

// trimLanguagePrefix handles single-line fences such as "```sql SELECT 1```".
func trimLanguagePrefix(body string) string {
	word, rest, ok := strings.Cut(body, " ")
	if !ok {
		word, rest, ok = strings.Cut(body, "\t")
	}
	if ok && word != "" && isLanguageTag(word) {
		return rest
	}
	return body
}
