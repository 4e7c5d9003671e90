package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kiranshivaraju/redmeters/internal/config"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// HTTPScorer scores batches against a remote model service over HTTP.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScorer creates a new HTTPScorer.
func NewHTTPScorer(cfg config.MLHTTPConfig, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScorer) Name() string { return "http" }

func (s *HTTPScorer) Score(ctx context.Context, readings []models.MeterReading) ([]models.AnomalyResult, error) {
	body, err := json.Marshal(buildRequest(readings))
	if err != nil {
		return nil, fmt.Errorf("encoding score request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/score", s.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrScorerUnavailable, resp.StatusCode)
	}

	var scoreResp scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&scoreResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return parseResults(readings, scoreResp)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrScoreTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrScoreTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
}

// Compile-time check that HTTPScorer implements MLScorer.
var _ models.MLScorer = (*HTTPScorer)(nil)
