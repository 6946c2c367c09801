package domain

import (
	"context"
	"errors"
)

type Service interface {
	CalculatePremium(ctx context.Context, req Request) (*Breakdown, error)
}

var (
	ErrNoPricedMembers         = errors.New("no_priced_members")
	ErrInvalidBillingFrequency = errors.New("invalid_billing_frequency")
	ErrInvalidMode             = errors.New("invalid_quote_mode")
	ErrInvalidInceptionDate    = errors.New("invalid_inception_date")
	ErrRateCardPlanMismatch    = errors.New("rate_card_plan_mismatch")
)
