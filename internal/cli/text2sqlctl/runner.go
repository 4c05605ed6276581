// Package text2sqlctl implements the text2sqlctl command line client.
package text2sqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Output     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("text2sqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "text2sql API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")
	output := fs.String("output", firstNonEmpty(defaults.Output, outputJSON), "output format: json or yaml")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *output != outputJSON && *output != outputYAML {
		_, _ = fmt.Fprintf(stderr, "invalid -output %q (allowed: json, yaml)\n", *output)
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	req, ok := buildRequest(fs.Arg(0), fs.Args()[1:], stderr)
	if !ok {
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req, endpoint, *apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if formatted, ok := format(responseBody, *output); ok {
		_, _ = fmt.Fprintln(stdout, formatted)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

// buildRequest maps a command and its arguments to an API call. It writes
// usage to stderr and returns false when the arguments are unusable.
func buildRequest(command string, args []string, stderr io.Writer) (request, bool) {
	switch strings.TrimSpace(command) {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, true
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, true
	case "schema":
		return request{method: http.MethodGet, path: "/v1/schema"}, true
	case "refresh":
		return request{method: http.MethodPost, path: "/v1/schema/refresh"}, true
	case "ask":
		return buildAsk(args, stderr)
	case "query":
		sqlText := strings.TrimSpace(strings.Join(args, " "))
		if sqlText == "" {
			_, _ = fmt.Fprintln(stderr, "usage: text2sqlctl query <sql>")
			return request{}, false
		}
		return request{method: http.MethodPost, path: "/v1/query", body: map[string]any{"sql": sqlText}}, true
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return request{}, false
	}
}

func buildAsk(args []string, stderr io.Writer) (request, bool) {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", "", "schema selection mode: rag or full (server default when empty)")
	onlySQL := fs.Bool("sql-only", false, "generate SQL without executing it")
	if err := fs.Parse(args); err != nil {
		return request{}, false
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		_, _ = fmt.Fprintln(stderr, "usage: text2sqlctl ask [-mode rag|full] [-sql-only] <question>")
		return request{}, false
	}
	body := map[string]any{"question": question}
	if *mode != "" {
		body["mode"] = *mode
	}
	if *onlySQL {
		body["only_sql"] = true
	}
	return request{method: http.MethodPost, path: "/v1/ask", body: body}, true
}

func doRequest(ctx context.Context, client *http.Client, r request, url, apiKey string) (int, []byte, error) {
	var payload io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, err
		}
		payload = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, url, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func format(raw []byte, output string) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	if output == outputYAML {
		formatted, err := yaml.Marshal(anyValue)
		if err != nil {
			return "", false
		}
		return strings.TrimRight(string(formatted), "\n"), true
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: text2sqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  ask <question>   POST /v1/ask (-mode rag|full, -sql-only)")
	_, _ = fmt.Fprintln(w, "  query <sql>      POST /v1/query")
	_, _ = fmt.Fprintln(w, "  schema           GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  refresh          POST /v1/schema/refresh")
	_, _ = fmt.Fprintln(w, "  health           GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready            GET /v1/ready")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
