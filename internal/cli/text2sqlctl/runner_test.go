package text2sqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	method string
	path   string
	apiKey string
	body   map[string]any
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	got := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.apiKey = r.Header.Get("X-API-Key")
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &got.body); err != nil {
				t.Errorf("request body is not JSON: %s", raw)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRunAskCommand(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"sql_query":"SELECT 1","refined":false}`)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"ask", "-mode", "full", "How", "many", "orders?",
	}, Options{Stdout: &stdout, Stderr: &stderr, Timeout: 2 * time.Second})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodPost || got.path != "/v1/ask" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if got.apiKey != "k1" {
		t.Fatalf("api key = %q", got.apiKey)
	}
	if got.body["question"] != "How many orders?" || got.body["mode"] != "full" {
		t.Fatalf("body = %v", got.body)
	}
	if _, ok := got.body["only_sql"]; ok {
		t.Fatalf("only_sql sent without -sql-only: %v", got.body)
	}
	if !strings.Contains(stdout.String(), `"sql_query": "SELECT 1"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunAskSQLOnly(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"sql_query":"SELECT 1"}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "-sql-only", "list customers"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.body["only_sql"] != true {
		t.Fatalf("body = %v", got.body)
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"ask"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: text2sqlctl ask") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunQueryCommand(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"columns":["c"],"rows":[[3]]}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "query", "SELECT", "COUNT(*)", "AS", "c", "FROM", "orders"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/v1/query" || got.body["sql"] != "SELECT COUNT(*) AS c FROM orders" {
		t.Fatalf("request = %s %v", got.path, got.body)
	}
}

func TestRunRefreshCommand(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"status":"refreshed"}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "refresh"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/v1/schema/refresh" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if got.body != nil {
		t.Fatalf("unexpected body %v", got.body)
	}
}

func TestRunSchemaCommandYAMLOutput(t *testing.T) {
	srv, got := newRecordingServer(t, http.StatusOK, `{"fingerprint":"abc","tables":2}`)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-output", "yaml", "schema"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodGet || got.path != "/v1/schema" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	out := stdout.String()
	if !strings.Contains(out, "fingerprint: abc") || !strings.Contains(out, "tables: 2") {
		t.Fatalf("stdout = %s", out)
	}
}

func TestRunRejectsUnknownOutput(t *testing.T) {
	code := Run(context.Background(), []string{"-output", "xml", "health"}, Options{})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusForbidden, `{"error_code":"FORBIDDEN"}`)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "refresh"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 403") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"unknown"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected usage output")
	}
}
