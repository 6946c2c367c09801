package domain

import "errors"

var (
	ErrNoRateMatch        = errors.New("no_rate_match")
	ErrAmbiguousRateMatch = errors.New("ambiguous_rate_match")
)
