package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripMarkdownSQL(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1;\n```":                        "SELECT 1;",
		"```\nSELECT 1\n```":                            "SELECT 1",
		"```SQL\nSELECT *\nFROM orders\n```":            "SELECT *\nFROM orders",
		"```postgresql\nSELECT now()\n```":              "SELECT now()",
		"```tsql\nSELECT TOP 1 * FROM t\n```":           "SELECT TOP 1 * FROM t",
		"  SELECT 2  ":                                  "SELECT 2",
		"```sql SELECT 3```":                            "SELECT 3",
		"```duckdb SELECT 3```":                         "SELECT 3",
		"Here you go:\n```sql\nSELECT 4\n```\nEnjoy!":   "SELECT 4",
		"```sql\nSELECT 5":                              "SELECT 5",
		"```SELECT\nid FROM t\n```":                     "SELECT\nid FROM t",
		"```WITH\nx AS (SELECT 1) SELECT * FROM x\n```": "WITH\nx AS (SELECT 1) SELECT * FROM x",
		"```SELECT 6```":                                "SELECT 6",
		"```sql```":                                     "",
	}
	for in, want := range cases {
		if got := StripMarkdownSQL(in); got != want {
			t.Fatalf("StripMarkdownSQL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAIGeneratorSendsPrompt(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + "```sql\\nSELECT 1\\n```" + `"}}]}`))
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	out, err := generator.Generate(context.Background(), "Question: how many orders?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "```sql\nSELECT 1\n```" {
		t.Fatalf("Generate() = %q", out)
	}
	if got.Model != "gpt-4.1-mini" || got.Temperature != 0 {
		t.Fatalf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "Question: how many orders?" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestOpenAIGeneratorReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	_, err = generator.Generate(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestOpenAIGeneratorRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	generator, _ := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret"})
	if _, err := generator.Generate(context.Background(), "q"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewOpenAIGeneratorValidatesConfig(t *testing.T) {
	if _, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
