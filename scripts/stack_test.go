package scripts

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.yaml.in/yaml/v3"
)

func runStack(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command("bash", append([]string{filepath.Join(scriptsDir(t), "stack.sh")}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func TestStackScriptDryRunUp(t *testing.T) {
	out, errOut, err := runStack(t, "up", "--dry-run")
	if err != nil {
		t.Fatalf("stack up dry-run failed: %v\nstdout:\n%s\nstderr:\n%s", err, out, errOut)
	}

	expected := []string{
		"[dry-run] docker compose",
		"[dry-run] cd",
		"go run ./cmd/text2sql-seed -direction up",
		"[dry-run] nohup env",
		"go run ./cmd/text2sql-api",
		"stack is up",
	}
	for _, token := range expected {
		if !strings.Contains(out, token) {
			t.Fatalf("output missing %q\noutput:\n%s", token, out)
		}
	}
}

func TestStackScriptDryRunDown(t *testing.T) {
	out, errOut, err := runStack(t, "down", "--dry-run")
	if err != nil {
		t.Fatalf("stack down dry-run failed: %v\nstdout:\n%s\nstderr:\n%s", err, out, errOut)
	}

	for _, token := range []string{"[dry-run] cd", "[dry-run] docker compose", "stack is down"} {
		if !strings.Contains(out, token) {
			t.Fatalf("output missing %q\noutput:\n%s", token, out)
		}
	}
}

func TestStackScriptUnknownCommand(t *testing.T) {
	_, errOut, err := runStack(t, "not-a-command")
	if err == nil {
		t.Fatal("expected non-zero exit for unknown command")
	}
	if !strings.Contains(errOut, "unknown command") {
		t.Fatalf("stderr missing unknown command message:\n%s", errOut)
	}
}

func TestComposeFileDefinesStackServices(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(scriptsDir(t), "..", "deployments", "docker-compose.yml"))
	if err != nil {
		t.Fatalf("read compose file: %v", err)
	}
	var compose struct {
		Services map[string]struct {
			Image string   `yaml:"image"`
			Ports []string `yaml:"ports"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(content, &compose); err != nil {
		t.Fatalf("parse compose file: %v", err)
	}
	for name, port := range map[string]string{"postgres": "5432:5432", "minio": "9000:9000"} {
		service, ok := compose.Services[name]
		if !ok {
			t.Fatalf("compose file missing service %q", name)
		}
		found := false
		for _, p := range service.Ports {
			if p == port {
				found = true
			}
		}
		if !found {
			t.Fatalf("service %q ports = %v, want %s", name, service.Ports, port)
		}
	}
}

func scriptsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(thisFile)
}
