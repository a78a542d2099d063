package analyzer

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

	"github.com/kyvernlabs/shield/internal/metrics"
)

// SemanticConfig holds parameters for the LLM-backed semantic layer. The
// endpoint is any OpenAI-compatible chat completions URL.
type SemanticConfig struct {
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// SemanticAnalyzer sends the intent's reasoning to an LLM for consistency
// and manipulation review. It has a hard deadline; a layer that cannot
// answer in time reports unavailable rather than blocking the pipeline.
type SemanticAnalyzer struct {
	cfg    SemanticConfig
	client *http.Client
	logger *slog.Logger
}

func NewSemanticAnalyzer(cfg SemanticConfig, logger *slog.Logger) *SemanticAnalyzer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticAnalyzer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Configured reports whether an endpoint is set. An unconfigured analyzer
// always yields an unavailable result.
func (a *SemanticAnalyzer) Configured() bool {
	return a.cfg.APIURL != ""
}

// Analyze runs the semantic review in normal or sandbox mode. The returned
// result is always usable: on timeout, transport failure, or a malformed
// judgment it carries Available=false and maximal risk contribution.
func (a *SemanticAnalyzer) Analyze(ctx context.Context, intent *TransactionIntent, sandbox bool, riskDetails []string) *LLMResult {
	if !a.Configured() {
		return unavailableResult(fmt.Errorf("%w: endpoint not configured", ErrUpstreamUnavailable))
	}

	start := time.Now()
	judgment, err := a.complete(ctx, buildPrompt(intent, sandbox, riskDetails))
	metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Warn("semantic analysis failed",
			"agent_id", intent.AgentID,
			"sandbox", sandbox,
			"error", err)
		switch {
		case ctx.Err() != nil || strings.Contains(err.Error(), "deadline"):
			metrics.LLMRequestsTotal.WithLabelValues("timeout").Inc()
		case strings.Contains(err.Error(), "parse"):
			metrics.LLMRequestsTotal.WithLabelValues("malformed").Inc()
		default:
			metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		}
		return unavailableResult(err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()

	res := &LLMResult{Available: true, Judgment: judgment}
	res.RiskContribution = judgmentScore(judgment)
	res.Passed = judgment.Safe && !judgment.ManipulationDetected
	if judgment.Analysis != "" {
		res.Details = append(res.Details, judgment.Analysis)
	}
	return res
}

func (a *SemanticAnalyzer) complete(ctx context.Context, prompt string) (*LLMJudgment, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	messages := []map[string]string{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": prompt},
	}
	body, _ := json.Marshal(map[string]interface{}{
		"model":       a.cfg.Model,
		"messages":    messages,
		"max_tokens":  a.cfg.MaxTokens,
		"temperature": 0,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return nil, fmt.Errorf("parse completion envelope: empty or invalid response")
	}

	return parseJudgment(result.Choices[0].Message.Content)
}

// parseJudgment extracts the structured verdict from raw model output,
// tolerating markdown fences around the JSON.
func parseJudgment(raw string) (*LLMJudgment, error) {
	raw = cleanJSON(raw)
	var j LLMJudgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("parse judgment: %s", truncate(raw, 200))
	}
	if j.Confidence < 0 || j.Confidence > 1 {
		return nil, fmt.Errorf("parse judgment: confidence %v out of range", j.Confidence)
	}
	return &j, nil
}

// judgmentScore maps a verdict to a 0-100 layer contribution. Detected
// manipulation scores highest, an unsafe call without explicit manipulation
// lands in the high band, and a confident safe verdict scores near zero.
func judgmentScore(j *LLMJudgment) int {
	switch {
	case j.ManipulationDetected:
		return clampScore(70 + int(30*j.Confidence))
	case !j.Safe:
		return clampScore(50 + int(30*j.Confidence))
	default:
		return clampScore(int(40 * (1 - j.Confidence)))
	}
}

func unavailableResult(err error) *LLMResult {
	return &LLMResult{
		LayerResult: LayerResult{
			Passed:           false,
			RiskContribution: 100,
			Flags:            []string{FlagLLMUnavailable},
			Details:          []string{err.Error()},
		},
		Available: false,
	}
}

// cleanJSON strips markdown fences and surrounding whitespace.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
