package query

import (
	"testing"
	"time"
)

func TestIsReadOnly(t *testing.T) {
	allowed := []string{
		"SELECT 1",
		"  select * from orders",
		"WITH recent AS (SELECT 1) SELECT * FROM recent",
		"(SELECT 1) UNION (SELECT 2)",
	}
	for _, sqlText := range allowed {
		if !IsReadOnly(sqlText) {
			t.Fatalf("IsReadOnly(%q) = false", sqlText)
		}
	}
	rejected := []string{"", "DELETE FROM orders", "update orders set x = 1", "DROP TABLE t", "insert into t values (1)"}
	for _, sqlText := range rejected {
		if IsReadOnly(sqlText) {
			t.Fatalf("IsReadOnly(%q) = true", sqlText)
		}
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := StripTrailingSemicolons(" SELECT 1 ; ;\n"); got != "SELECT 1" {
		t.Fatalf("StripTrailingSemicolons() = %q", got)
	}
}

func TestExecutionSeconds(t *testing.T) {
	if got := (Result{Duration: 1500 * time.Millisecond}).ExecutionSeconds(); got != 1.5 {
		t.Fatalf("ExecutionSeconds() = %v", got)
	}
}
