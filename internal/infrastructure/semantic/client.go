// Package semantic calls an external language model service to propose
// field candidates from clustered regions. It is the second extraction
// opinion next to the deterministic rule-based extractor; its proposals
// enter the same candidate pool and get no special treatment.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/extract"
	"github.com/antonkurs/docextract/internal/core/money"
	"github.com/antonkurs/docextract/internal/infrastructure/resilience"
)

const originSemantic = "semantic"

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Option func(*Client)

// WithRateLimit caps outbound model calls; the service side usually
// enforces a hard concurrency limit and answers 429 beyond it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// proposedField is the model's wire shape for one candidate.
type proposedField struct {
	FieldName  string  `json:"field_name"`
	Kind       string  `json:"kind"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

func (c *Client) ExtractFields(ctx context.Context, regions []domain.Region) ([]domain.FieldCandidate, error) {
	if len(regions) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var proposed []proposedField
	call := func(callCtx context.Context) error {
		var err error
		proposed, err = c.requestFields(callCtx, regions)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "semantic.extract_fields", call, classifySemanticError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("semantic extract fields", err)
	}

	return convertProposals(proposed), nil
}

func (c *Client) requestFields(ctx context.Context, regions []domain.Region) ([]proposedField, error) {
	request := map[string]any{
		"model":  c.model,
		"prompt": buildExtractionPrompt(regions),
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", request, &response, "extract_fields"); err != nil {
		return nil, err
	}

	var payload struct {
		Fields []proposedField `json:"fields"`
	}
	raw := extractJSONObject(response.Response)
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse model field json: %w", err)
	}
	return payload.Fields, nil
}

// convertProposals turns wire proposals into typed candidates. Proposals
// the model got structurally wrong (unparsable amounts or dates, bad
// confidence) are dropped rather than degraded; the deterministic
// extractor already covers the document.
func convertProposals(proposed []proposedField) []domain.FieldCandidate {
	candidates := make([]domain.FieldCandidate, 0, len(proposed))
	for _, p := range proposed {
		if p.FieldName == "" || strings.TrimSpace(p.Value) == "" {
			continue
		}
		if p.Confidence <= 0 || p.Confidence > 1 {
			continue
		}

		var value domain.FieldValue
		switch p.Kind {
		case string(domain.ValueAmount):
			amount, currency, err := money.ParseAmount(p.Value)
			if err != nil {
				continue
			}
			value = domain.AmountValue(amount, currency)
		case string(domain.ValueDate):
			iso, err := extract.ParseDate(p.Value)
			if err != nil {
				continue
			}
			value = domain.DateValue(iso)
		default:
			value = domain.TextValue(strings.TrimSpace(p.Value))
		}

		candidates = append(candidates, domain.FieldCandidate{
			FieldName:  p.FieldName,
			Value:      value,
			Confidence: p.Confidence,
			Origin:     originSemantic,
		})
	}
	return candidates
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
