package api

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"go.yaml.in/yaml/v3"
)

func TestOpenAPIDocumentsEveryRoute(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	openAPIPath := filepath.Join(repoRoot, "api", "openapi.yaml")

	content, err := os.ReadFile(openAPIPath)
	if err != nil {
		t.Fatalf("read openapi file error = %v", err)
	}
	var document struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(content, &document); err != nil {
		t.Fatalf("parse openapi file error = %v", err)
	}

	requiredRoutes := map[string]string{
		"/v1/health":         "get",
		"/v1/ready":          "get",
		"/v1/metrics":        "get",
		"/v1/ask":            "post",
		"/v1/query":          "post",
		"/v1/schema":         "get",
		"/v1/schema/refresh": "post",
	}
	for path, method := range requiredRoutes {
		operations, ok := document.Paths[path]
		if !ok {
			t.Fatalf("openapi missing path %s", path)
		}
		if _, ok := operations[method]; !ok {
			t.Fatalf("openapi path %s missing %s operation", path, method)
		}
	}

	documented := make([]string, 0, len(document.Paths))
	for path := range document.Paths {
		documented = append(documented, path)
	}
	sort.Strings(documented)
	for _, path := range documented {
		if _, ok := requiredRoutes[path]; !ok {
			t.Fatalf("openapi documents unserved path %s", path)
		}
	}
}
