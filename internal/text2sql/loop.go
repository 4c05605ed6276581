// Package text2sql turns questions into executed SQL: it selects schema
// context, asks the generator for a query, runs it and feeds execution
// errors back for a bounded number of corrections.
package text2sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/nl2sql"
	"github.com/Beni-V/text2sql/internal/observability"
	"github.com/Beni-V/text2sql/internal/prompt"
	"github.com/Beni-V/text2sql/internal/query"
)

const (
	ModeRAG  = config.ModeRAG
	ModeFull = config.ModeFull
)

// SchemaSelector returns the schema context for text. In full mode topK is
// ignored and the whole catalog is returned.
type SchemaSelector interface {
	Select(ctx context.Context, mode, text string, topK int) (*catalog.Graph, error)
}

type LoopConfig struct {
	// MaxAttempts bounds generate+execute rounds per question, the first
	// round included.
	MaxAttempts int
	TopK        int
	RefineTopK  int
	Prompt      prompt.Options
}

// Trace records how a question was answered. Attempts counts refinements,
// so a query that worked the first time reports zero.
type Trace struct {
	Question      string
	Mode          string
	Query         string
	Result        *query.Result
	Executed      bool
	Rounds        int
	Refined       bool
	Attempts      int
	OriginalQuery string
	LastError     string
}

type Loop struct {
	schemas   SchemaSelector
	generator nl2sql.Generator
	executor  query.Executor
	logger    *slog.Logger
	cfg       LoopConfig
}

func NewLoop(schemas SchemaSelector, generator nl2sql.Generator, executor query.Executor, logger *slog.Logger, cfg LoopConfig) *Loop {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.RefineTopK <= 0 {
		cfg.RefineTopK = 15
	}
	return &Loop{schemas: schemas, generator: generator, executor: executor, logger: logger, cfg: cfg}
}

// Generate produces a query for question without executing it. Nothing can
// be refined without an execution error, so this is a single round.
func (l *Loop) Generate(ctx context.Context, question, mode string) (Trace, error) {
	trace := Trace{Question: question, Mode: mode}
	sqlText, err := l.generate(ctx, question, mode)
	if err != nil {
		return trace, err
	}
	trace.Query = sqlText
	trace.Rounds = 1
	return trace, nil
}

// Run generates, executes and, on execution errors, refines until a query
// succeeds or MaxAttempts rounds have failed.
func (l *Loop) Run(ctx context.Context, question, mode string) (Trace, error) {
	const op = "text2sql.Run"
	logger := observability.LoggerFor(ctx, l.logger)
	trace := Trace{Question: question, Mode: mode}

	candidate, err := l.generate(ctx, question, mode)
	if err != nil {
		return trace, err
	}

	for {
		trace.Query = candidate
		trace.Rounds++
		result, err := l.executor.Execute(ctx, candidate)
		trace.Executed = true
		if err == nil {
			trace.Result = &result
			if trace.Attempts > 0 {
				logger.Info("refined query succeeded", "attempts", trace.Attempts)
			}
			return trace, nil
		}
		if !errs.Is(err, errs.KindQueryExecution) {
			return trace, err
		}

		message := err.Error()
		if trace.OriginalQuery == "" {
			trace.OriginalQuery = candidate
		}
		trace.LastError = message
		logger.Debug("query execution failed", "round", trace.Rounds, "error", message)

		if trace.Rounds >= l.cfg.MaxAttempts {
			observability.IncrementRefinementExhausted()
			logger.Warn("query refinement exhausted", "rounds", trace.Rounds, "error", message)
			return trace, errs.E(errs.KindQueryGeneration, op,
				fmt.Sprintf("Failed to generate a working query after %d attempts: %s", trace.Rounds, message), err)
		}

		candidate, err = l.refine(ctx, question, mode, candidate, message)
		if err != nil {
			return trace, err
		}
		trace.Refined = true
		trace.Attempts++
		observability.IncrementRefinement()
	}
}

func (l *Loop) generate(ctx context.Context, question, mode string) (string, error) {
	const op = "text2sql.generate"
	schema, err := l.schemas.Select(ctx, mode, question, l.cfg.TopK)
	if err != nil {
		return "", err
	}
	text, err := prompt.Build(l.cfg.Prompt, schema, question)
	if err != nil {
		return "", err
	}
	return l.complete(ctx, op, text)
}

// refine retrieves with the failure folded into the search text, since the
// error usually names the table or column that was missing.
func (l *Loop) refine(ctx context.Context, question, mode, failedQuery, message string) (string, error) {
	const op = "text2sql.refine"
	searchText := strings.Join([]string{question, failedQuery, message}, "\n")
	schema, err := l.schemas.Select(ctx, mode, searchText, l.cfg.RefineTopK)
	if err != nil {
		return "", err
	}
	text, err := prompt.BuildRefinement(l.cfg.Prompt, schema, question, failedQuery, message)
	if err != nil {
		return "", err
	}
	return l.complete(ctx, op, text)
}

func (l *Loop) complete(ctx context.Context, op, promptText string) (string, error) {
	raw, err := l.generator.Generate(ctx, promptText)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.KindUnavailable, op, "generation aborted", ctx.Err())
		}
		kind := errs.KindOf(err)
		if kind == errs.KindUnknown {
			kind = errs.KindQueryGeneration
		}
		return "", errs.Wrap(kind, op, "Failed to generate SQL", err)
	}
	sqlText := nl2sql.StripMarkdownSQL(raw)
	if sqlText == "" {
		return "", errs.E(errs.KindQueryGeneration, op, "Failed to generate SQL: model returned no query", nil)
	}
	return sqlText, nil
}
