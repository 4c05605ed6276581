//go:build integration

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/catalog/infoschema"
	"github.com/Beni-V/text2sql/internal/embedding"
	"github.com/Beni-V/text2sql/internal/prompt"
	"github.com/Beni-V/text2sql/internal/query/sqldb"
	"github.com/Beni-V/text2sql/internal/retrieval"
	"github.com/Beni-V/text2sql/internal/schemadoc"
	"github.com/Beni-V/text2sql/internal/storage/local"
	"github.com/Beni-V/text2sql/internal/text2sql"
	"github.com/Beni-V/text2sql/internal/vectorindex"
)

const seedSchema = `
CREATE TABLE customers (
    customer_id VARCHAR(5) PRIMARY KEY,
    company_name VARCHAR(40) NOT NULL
);
CREATE TABLE orders (
    order_id INTEGER PRIMARY KEY,
    customer_id VARCHAR(5) REFERENCES customers (customer_id),
    order_date DATE
);
INSERT INTO customers VALUES ('ALFKI', 'Alfreds Futterkiste'), ('ANATR', 'Ana Trujillo');
INSERT INTO orders VALUES (1, 'ALFKI', '1997-08-25'), (2, 'ALFKI', '1997-10-03'), (3, 'ANATR', '1996-09-18');
`

type replayGenerator struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (g *replayGenerator) Generate(_ context.Context, promptText string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, promptText)
	if len(g.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

func TestAskRefinesAgainstPostgresTarget(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("TEXT2SQL_TEST_TARGET_DSN"))
	if adminDSN == "" {
		t.Skip("TEXT2SQL_TEST_TARGET_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(seedSchema); err != nil {
		t.Fatalf("seed schema error = %v", err)
	}

	snapshotDir := t.TempDir()
	generator := &replayGenerator{replies: []string{
		"```sql\nSELECT company, COUNT(*) FROM orders GROUP BY company\n```",
		"```sql\nSELECT c.company_name, COUNT(*) AS order_count FROM orders o JOIN customers c ON c.customer_id = o.customer_id GROUP BY c.company_name ORDER BY c.company_name\n```",
	}}
	h := newIntegrationHandler(t, db, snapshotDir, generator)

	body := postJSON(t, h, "/v1/ask", map[string]any{"question": "How many orders has each customer placed?"}, http.StatusOK)
	if body["refined"] != true {
		t.Fatalf("refined = %v", body["refined"])
	}
	if body["refinement_attempts"] != float64(1) {
		t.Fatalf("refinement_attempts = %v", body["refinement_attempts"])
	}
	if !strings.Contains(body["refinement_error"].(string), "company") {
		t.Fatalf("refinement_error = %v", body["refinement_error"])
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %#v", body["results"])
	}
	first := results[0].(map[string]any)
	if first["company_name"] != "Alfreds Futterkiste" || first["order_count"] != float64(2) {
		t.Fatalf("first row = %#v", first)
	}
	if !strings.Contains(generator.prompts[0], `"orders"`) {
		t.Fatalf("first prompt does not carry the orders table:\n%s", generator.prompts[0])
	}

	matches, err := filepath.Glob(filepath.Join(snapshotDir, "indexes", "*", "*.parquet"))
	if err != nil {
		t.Fatalf("glob error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("snapshot files = %v", matches)
	}
}

func TestSchemaRefreshPicksUpNewTables(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("TEXT2SQL_TEST_TARGET_DSN"))
	if adminDSN == "" {
		t.Skip("TEXT2SQL_TEST_TARGET_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(seedSchema); err != nil {
		t.Fatalf("seed schema error = %v", err)
	}

	h := newIntegrationHandler(t, db, t.TempDir(), &replayGenerator{})

	before := getJSON(t, h, "/v1/schema", http.StatusOK)
	if before["tables"] != float64(2) {
		t.Fatalf("tables before = %v", before["tables"])
	}

	if _, err := db.Exec(`CREATE TABLE shippers (shipper_id INTEGER PRIMARY KEY, company_name VARCHAR(40))`); err != nil {
		t.Fatalf("create shippers error = %v", err)
	}
	refreshed := postJSON(t, h, "/v1/schema/refresh", nil, http.StatusOK)
	if refreshed["tables"] != float64(3) {
		t.Fatalf("tables after refresh = %v", refreshed["tables"])
	}
	if refreshed["fingerprint"] == before["fingerprint"] {
		t.Fatalf("fingerprint unchanged after refresh")
	}

	rows := postJSON(t, h, "/v1/query", map[string]any{"sql": "SELECT COUNT(*) AS c FROM shippers"}, http.StatusOK)
	if rows["columns"].([]any)[0] != "c" {
		t.Fatalf("columns = %v", rows["columns"])
	}
}

func newIntegrationHandler(t *testing.T, db *sql.DB, snapshotDir string, generator *replayGenerator) http.Handler {
	t.Helper()
	objects, err := local.New(snapshotDir)
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	embedder := embedding.NewHashEmbedder(256)
	store := &vectorindex.Store{}
	indexer := schemadoc.NewIndexer(embedder, store, vectorindex.NewSnapshotStore(objects, "indexes"), nil, schemadoc.Config{})
	loader := infoschema.New(db, infoschema.Postgres, infoschema.Options{Timeout: 10 * time.Second})
	service := text2sql.NewService(
		catalog.NewCache(loader),
		indexer,
		retrieval.New(embedder, store),
		generator,
		sqldb.New(db, sqldb.Options{Timeout: 10 * time.Second, MaxRows: 100, ReadOnly: true}),
		nil,
		text2sql.ServiceConfig{Loop: text2sql.LoopConfig{
			MaxAttempts: 3,
			TopK:        5,
			RefineTopK:  15,
			Prompt:      prompt.Options{Dialect: infoschema.Postgres.Name, ReadOnly: true},
		}},
	)

	cfg := loadConfig(t, nil)
	return NewHandler(cfg, Dependencies{
		Service:   service,
		Readiness: CheckDatabase(db),
	})
}

func postJSON(t *testing.T, handler http.Handler, path string, payload map[string]any, expectedStatus int) map[string]any {
	t.Helper()
	var reader *bytes.Reader
	if payload == nil {
		reader = bytes.NewReader(nil)
	} else {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != expectedStatus {
		t.Fatalf("%s status = %d, want %d, body=%s", path, rr.Code, expectedStatus, rr.Body.String())
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	return response
}

func getJSON(t *testing.T, handler http.Handler, path string, expectedStatus int) map[string]any {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	if rr.Code != expectedStatus {
		t.Fatalf("%s status = %d, want %d, body=%s", path, rr.Code, expectedStatus, rr.Body.String())
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	return response
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse(adminDSN) error = %v", err)
	}
	if strings.TrimPrefix(parsed.Path, "/") == "" {
		t.Fatal("admin DSN must include a database name")
	}

	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(adminDSN) error = %v", err)
	}

	name := fmt.Sprintf("text2sql_it_api_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	testURL := *parsed
	testURL.Path = "/" + name
	testDSN := testURL.String()

	cleanup := func() {
		defer func() { _ = adminDB.Close() }()
		if _, err := adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name); err != nil {
			t.Fatalf("terminate test db sessions: %v", err)
		}
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
	return testDSN, cleanup
}
