// Package traffic drives a running text2sql API with sample questions about
// the demo shop dataset so dashboards and alerts have data to show.
package traffic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const readyPollInterval = time.Second

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	generator *Generator
}

type askRequest struct {
	Question string `json:"question"`
	Execute  *bool  `json:"execute,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

type askResponse struct {
	RequestID          string  `json:"request_id"`
	Mode               string  `json:"mode"`
	SQLQuery           *string `json:"sql_query"`
	Executed           bool    `json:"executed"`
	Refined            bool    `json:"refined"`
	RefinementAttempts int     `json:"refinement_attempts"`
	ExecutionSeconds   float64 `json:"execution_seconds"`
	Error              string  `json:"error"`
	ErrorCode          string  `json:"error_code"`
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		generator: NewGenerator(cfg.Seed),
	}, nil
}

// Run asks one question per interval until ctx is done or MaxQuestions have
// been asked. Failed questions are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.WaitForReady {
		if err := s.waitForReady(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.askOnce(ctx); err != nil {
			s.log.Error("demo question failed", slog.Any("error", err))
		}
		if s.cfg.MaxQuestions > 0 && s.generator.Asked() >= s.cfg.MaxQuestions {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) waitForReady(ctx context.Context) error {
	for {
		status, body, err := s.doJSON(ctx, http.MethodGet, "/v1/ready", nil, nil)
		switch {
		case err != nil:
			s.log.Info("api not reachable yet", slog.Any("error", err))
		case status == http.StatusOK:
			return nil
		default:
			s.log.Info("api not ready yet", slog.Int("status", status), slog.String("body", strings.TrimSpace(string(body))))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

func (s *Service) askOnce(ctx context.Context) error {
	question := s.generator.NextQuestion()
	request := askRequest{Question: question, Mode: s.cfg.Mode}
	execute := s.cfg.Execute
	request.Execute = &execute

	var response askResponse
	status, body, err := s.doJSON(ctx, http.MethodPost, "/v1/ask", request, &response)
	if err != nil {
		return fmt.Errorf("ask request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("ask %q status %d: %s", question, status, strings.TrimSpace(string(body)))
	}

	sqlText := ""
	if response.SQLQuery != nil {
		sqlText = *response.SQLQuery
	}
	s.log.Info(
		"answered demo question",
		slog.String("request_id", response.RequestID),
		slog.String("question", question),
		slog.String("mode", response.Mode),
		slog.String("sql", sqlText),
		slog.Bool("executed", response.Executed),
		slog.Bool("refined", response.Refined),
		slog.Int("refinement_attempts", response.RefinementAttempts),
		slog.Float64("execution_seconds", response.ExecutionSeconds),
	)
	return nil
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	if responseBody != nil && resp.StatusCode == http.StatusOK && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}
