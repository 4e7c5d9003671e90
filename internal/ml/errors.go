package ml

import "errors"

var (
	ErrScorerUnavailable = errors.New("ml scorer unavailable")
	ErrScoreTimeout      = errors.New("ml scoring timeout")
	ErrInvalidResponse   = errors.New("ml scorer returned invalid response")
)
