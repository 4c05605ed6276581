// Package seed loads the demo shop dataset into a target database so the
// text2sql stack has something to answer questions about.
//
// Steps are embedded SQL files named <version>_<name>.(up|down).sql. Applied
// versions are tracked in a bookkeeping table inside the target database.
package seed

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/errs"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// VersionTable records applied steps. It lives next to the demo tables and
// is introspected like them.
const VersionTable = "text2sql_demo_versions"

var stepNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

// NewRunner returns a runner for driver. Only drivers that accept $n
// placeholders and multi-statement scripts are supported.
func NewRunner(driver string) (*Runner, error) {
	switch driver {
	case config.DriverPostgres, config.DriverDuckDB:
		return &Runner{fsys: embeddedFS}, nil
	default:
		return nil, errs.E(errs.KindConfiguration, "seed.NewRunner",
			fmt.Sprintf("demo dataset cannot be seeded into %q targets", driver), nil)
	}
}

type Step struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Steps lists the embedded steps in version order.
func (r *Runner) Steps() ([]Step, error) {
	return loadSteps(r.fsys)
}

// Up applies pending steps in version order. steps <= 0 applies all of them.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	items, err := loadSteps(r.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db, "ASC")
	if err != nil {
		return 0, err
	}

	done := make(map[int64]struct{}, len(applied))
	for _, version := range applied {
		done[version] = struct{}{}
	}

	count := 0
	for _, item := range items {
		if _, ok := done[item.Version]; ok {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}
		if err := runStep(ctx, db, item.Version, item.UpSQL, `INSERT INTO `+VersionTable+` (version) VALUES ($1)`); err != nil {
			return count, fmt.Errorf("apply step %d (%s): %w", item.Version, item.Name, err)
		}
		count++
	}
	return count, nil
}

// Down reverts the most recently applied steps, newest first. steps <= 0
// reverts one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}

	items, err := loadSteps(r.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db, "DESC")
	if err != nil {
		return 0, err
	}

	lookup := make(map[int64]Step, len(items))
	for _, item := range items {
		lookup[item.Version] = item
	}

	count := 0
	for _, version := range applied {
		if count >= steps {
			break
		}
		item, ok := lookup[version]
		if !ok {
			return count, fmt.Errorf("applied step %d is missing from the embedded dataset", version)
		}
		if err := runStep(ctx, db, item.Version, item.DownSQL, `DELETE FROM `+VersionTable+` WHERE version = $1`); err != nil {
			return count, fmt.Errorf("revert step %d (%s): %w", item.Version, item.Name, err)
		}
		count++
	}
	return count, nil
}

// Applied returns the applied versions in ascending order.
func (r *Runner) Applied(ctx context.Context, db *sql.DB) ([]int64, error) {
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	return appliedVersions(ctx, db, "ASC")
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + VersionTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure version table: %w", err)
	}
	return nil
}

// runStep executes script and the bookkeeping statement in one transaction.
func runStep(ctx context.Context, db *sql.DB, version int64, script, bookkeeping string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, order string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+VersionTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return versions, nil
}

func loadSteps(fsys fs.FS) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	items := map[int64]Step{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := stepNamePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse step version for %q: %w", base, err)
		}

		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read step %q: %w", entry.Name(), err)
		}

		item := items[version]
		if item.Name != "" && item.Name != matches[2] {
			return nil, fmt.Errorf("step %d has conflicting names %q and %q", version, item.Name, matches[2])
		}
		item.Version = version
		item.Name = matches[2]
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	versions := make([]int64, 0, len(items))
	for version := range items {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	steps := make([]Step, 0, len(versions))
	for _, version := range versions {
		item := items[version]
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("step %d missing up SQL", version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("step %d missing down SQL", version)
		}
		steps = append(steps, item)
	}
	return steps, nil
}
