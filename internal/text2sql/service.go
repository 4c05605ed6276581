package text2sql

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/nl2sql"
	"github.com/Beni-V/text2sql/internal/observability"
	"github.com/Beni-V/text2sql/internal/query"
	"github.com/Beni-V/text2sql/internal/retrieval"
	"github.com/Beni-V/text2sql/internal/schemadoc"
	"github.com/Beni-V/text2sql/internal/vectorindex"
)

type ServiceConfig struct {
	DefaultMode string
	Loop        LoopConfig
}

type AskRequest struct {
	Question string
	// Execute defaults to true when nil.
	Execute *bool
	OnlySQL bool
	Mode    string
}

type AskResponse struct {
	RequestID          string           `json:"request_id"`
	Mode               string           `json:"mode"`
	SQLQuery           *string          `json:"sql_query"`
	Columns            []string         `json:"columns,omitempty"`
	Results            []map[string]any `json:"results,omitempty"`
	Truncated          bool             `json:"truncated,omitempty"`
	ExecutionSeconds   float64          `json:"execution_seconds,omitempty"`
	Executed           bool             `json:"executed"`
	Refined            bool             `json:"refined"`
	RefinementAttempts int              `json:"refinement_attempts"`
	OriginalQuery      string           `json:"original_query,omitempty"`
	RefinementError    string           `json:"refinement_error,omitempty"`
	Error              string           `json:"error,omitempty"`
}

type SchemaSnapshot struct {
	Fingerprint string            `json:"fingerprint"`
	Tables      int               `json:"tables"`
	LoadedAt    time.Time         `json:"loaded_at"`
	Index       *vectorindex.Info `json:"index,omitempty"`
	Schema      *catalog.Graph    `json:"schema"`
}

type RefreshResult struct {
	Fingerprint string            `json:"fingerprint"`
	Tables      int               `json:"tables"`
	Index       *vectorindex.Info `json:"index,omitempty"`
}

// Service owns the process-wide schema cache and vector index and answers
// questions against them.
type Service struct {
	cache     *catalog.Cache
	indexer   *schemadoc.Indexer
	retriever *retrieval.Retriever
	executor  query.Executor
	loop      *Loop
	logger    *slog.Logger
	cfg       ServiceConfig

	refreshMu sync.Mutex
}

func NewService(cache *catalog.Cache, indexer *schemadoc.Indexer, retriever *retrieval.Retriever, generator nl2sql.Generator, executor query.Executor, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeRAG
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		cache:     cache,
		indexer:   indexer,
		retriever: retriever,
		executor:  executor,
		logger:    logger,
		cfg:       cfg,
	}
	svc.loop = NewLoop(svc, generator, executor, logger, cfg.Loop)
	return svc
}

// Ask answers one question. The response is filled as far as the request
// got, so a failed execution still reports the generated query.
func (s *Service) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	const op = "text2sql.Ask"
	resp := AskResponse{RequestID: uuid.NewString()}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return resp, errs.E(errs.KindInvalidInput, op, "No question provided", nil)
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = s.cfg.DefaultMode
	}
	if mode != ModeRAG && mode != ModeFull {
		return resp, errs.E(errs.KindInvalidInput, op, "mode must be one of: rag, full", nil)
	}
	resp.Mode = mode

	execute := req.Execute == nil || *req.Execute
	if req.OnlySQL {
		execute = false
	}

	logger := observability.LoggerFor(ctx, s.logger).With("request_id", resp.RequestID, "mode", mode)
	var (
		trace Trace
		err   error
	)
	if execute {
		trace, err = s.loop.Run(ctx, question, mode)
	} else {
		trace, err = s.loop.Generate(ctx, question, mode)
	}
	fillResponse(&resp, trace)

	outcome := "ok"
	if err != nil {
		outcome = errs.KindOf(err).String()
		resp.Error = errs.Message(err)
		logger.Warn("ask failed", "error", err, "rounds", trace.Rounds)
	} else {
		logger.Info("ask answered", "rounds", trace.Rounds, "refined", trace.Refined, "executed", trace.Executed)
	}
	observability.ObserveAsk(mode, outcome, trace.Rounds)
	return resp, err
}

func fillResponse(resp *AskResponse, trace Trace) {
	if trace.Query != "" {
		sqlText := trace.Query
		resp.SQLQuery = &sqlText
	}
	resp.Executed = trace.Executed
	resp.Refined = trace.Refined
	resp.RefinementAttempts = trace.Attempts
	resp.OriginalQuery = trace.OriginalQuery
	resp.RefinementError = trace.LastError
	if trace.Result != nil {
		resp.Columns = trace.Result.Columns
		resp.Results = trace.Result.Rows
		if resp.Results == nil {
			resp.Results = []map[string]any{}
		}
		resp.Truncated = trace.Result.Truncated
		resp.ExecutionSeconds = trace.Result.ExecutionSeconds()
	}
}

// Select implements SchemaSelector over the cache and index. In rag mode
// the index is built on first use for the cached schema version. A request
// whose schema is replaced by a refresh mid-flight searches an index for the
// schema it loaded, and that index is never published.
func (s *Service) Select(ctx context.Context, mode, text string, topK int) (*catalog.Graph, error) {
	graph, generation, err := s.cache.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if mode == ModeFull {
		return graph, nil
	}
	index, _, err := s.indexer.EnsureCurrent(ctx, graph, false, s.isCurrent(generation))
	if err != nil {
		return nil, err
	}
	return s.retriever.RetrieveFrom(ctx, index, text, topK)
}

func (s *Service) isCurrent(generation uint64) func() bool {
	return func() bool { return s.cache.Generation() == generation }
}

// RefreshSchema drops the cached schema and index together, then reloads
// the schema and rebuilds the index for it.
func (s *Service) RefreshSchema(ctx context.Context) (RefreshResult, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.cache.Invalidate()
	s.indexer.Store().Reset()

	graph, err := s.cache.Get(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	index, _, err := s.indexer.Ensure(ctx, graph, true)
	if err != nil {
		return RefreshResult{}, err
	}
	info := index.Info()
	s.logger.Info("schema refreshed", "fingerprint", info.Fingerprint, "tables", graph.Len(), "documents", info.Documents)
	return RefreshResult{Fingerprint: graph.Fingerprint(), Tables: graph.Len(), Index: &info}, nil
}

func (s *Service) Schema(ctx context.Context) (SchemaSnapshot, error) {
	graph, err := s.cache.Get(ctx)
	if err != nil {
		return SchemaSnapshot{}, err
	}
	_, loadedAt, _ := s.cache.Peek()
	snapshot := SchemaSnapshot{
		Fingerprint: graph.Fingerprint(),
		Tables:      graph.Len(),
		LoadedAt:    loadedAt,
		Schema:      graph,
	}
	if index := s.indexer.Store().Load(); index != nil {
		info := index.Info()
		snapshot.Index = &info
	}
	return snapshot, nil
}

// Warm loads the schema and publishes the persisted index for it when one
// exists. With build set, a missing index is embedded instead.
func (s *Service) Warm(ctx context.Context, build bool) error {
	graph, generation, err := s.cache.Snapshot(ctx)
	if err != nil {
		return err
	}
	loaded, err := s.indexer.LoadSnapshot(ctx, graph)
	if err != nil {
		s.logger.Warn("schema index snapshot not loaded", "error", err)
	}
	if loaded || !build {
		return nil
	}
	_, _, err = s.indexer.EnsureCurrent(ctx, graph, false, s.isCurrent(generation))
	return err
}

// IndexInfo reports the published index, if any.
func (s *Service) IndexInfo() (vectorindex.Info, bool) {
	index := s.indexer.Store().Load()
	if index == nil {
		return vectorindex.Info{}, false
	}
	return index.Info(), true
}

// Execute runs sql directly, bypassing generation.
func (s *Service) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, errs.E(errs.KindInvalidInput, "text2sql.Execute", "sql is required", nil)
	}
	return s.executor.Execute(ctx, sqlText)
}
