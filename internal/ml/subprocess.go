package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kiranshivaraju/redmeters/internal/config"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// SubprocessScorer scores batches by invoking a local scoring script. The
// batch goes in as JSON on stdin and results come back as JSON on stdout.
// A non-zero exit is a scorer failure regardless of what stdout holds.
type SubprocessScorer struct {
	interpreter string
	scriptPath  string
	timeout     time.Duration
}

// NewSubprocessScorer creates a new SubprocessScorer.
func NewSubprocessScorer(cfg config.MLSubprocessConfig, timeout time.Duration) *SubprocessScorer {
	return &SubprocessScorer{
		interpreter: cfg.Interpreter,
		scriptPath:  cfg.ScriptPath,
		timeout:     timeout,
	}
}

func (s *SubprocessScorer) Name() string { return "subprocess" }

func (s *SubprocessScorer) Score(ctx context.Context, readings []models.MeterReading) ([]models.AnomalyResult, error) {
	body, err := json.Marshal(buildRequest(readings))
	if err != nil {
		return nil, fmt.Errorf("encoding score request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.interpreter, s.scriptPath)
	cmd.Stdin = bytes.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrScoreTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrScorerUnavailable, err, firstLine(stderr.String()))
	}

	var scoreResp scoreResponse
	if err := json.Unmarshal(stdout.Bytes(), &scoreResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return parseResults(readings, scoreResp)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Compile-time check that SubprocessScorer implements MLScorer.
var _ models.MLScorer = (*SubprocessScorer)(nil)
