package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

// errorKind groups domain errors by how they surface over HTTP.
type errorKind struct {
	status  int
	typ     string
	message string
}

var (
	kindValidation   = errorKind{http.StatusBadRequest, "validation_error", "validation error"}
	kindNotFound     = errorKind{http.StatusNotFound, "not_found", "not found"}
	kindConflict     = errorKind{http.StatusConflict, "conflict", "conflict"}
	kindUnresolvable = errorKind{http.StatusUnprocessableEntity, "pricing_error", "request cannot be priced"}
	kindRateLimited  = errorKind{http.StatusTooManyRequests, "rate_limited", "too many requests"}
)

type errorRule struct {
	err  error
	kind errorKind
}

// errorRules is matched in order; the first sentinel found in the chain
// decides status and code.
var errorRules = []errorRule{
	{ErrRateLimited, kindRateLimited},

	{applicationdomain.ErrInvalidStateTransition, kindConflict},
	{applicationdomain.ErrConversionInProgress, kindConflict},
	{applicationdomain.ErrNotDraft, kindConflict},
	{applicationdomain.ErrNotUnderwriting, kindConflict},
	{versioningdomain.ErrBackdatedActivation, kindConflict},
	{discountdomain.ErrPromoExhausted, kindConflict},

	{applicationdomain.ErrNotSubmittable, kindUnresolvable},
	{applicationdomain.ErrNoMembers, kindUnresolvable},
	{applicationdomain.ErrMembersNotCleared, kindUnresolvable},
	{ratingdomain.ErrNoRateMatch, kindUnresolvable},
	{ratingdomain.ErrAmbiguousRateMatch, kindUnresolvable},
	{ratecarddomain.ErrNotEffective, kindUnresolvable},
	{ratecarddomain.ErrNoEffectiveRateCard, kindUnresolvable},
	{addondomain.ErrNoActiveRate, kindUnresolvable},
	{addondomain.ErrUnsupportedPricingConfiguration, kindUnresolvable},
	{addondomain.ErrAmbiguousAddonRate, kindUnresolvable},
	{premiumdomain.ErrNoPricedMembers, kindUnresolvable},
	{premiumdomain.ErrRateCardPlanMismatch, kindUnresolvable},
	{discountdomain.ErrManualRuleNotEligible, kindUnresolvable},
	{discountdomain.ErrPromoExpired, kindUnresolvable},
	{discountdomain.ErrPromoNotApplicable, kindUnresolvable},

	{ErrNotFound, kindNotFound},
	{applicationdomain.ErrNotFound, kindNotFound},
	{applicationdomain.ErrMemberNotFound, kindNotFound},
	{ratecarddomain.ErrNotFound, kindNotFound},
	{addondomain.ErrAddonNotFound, kindNotFound},
	{addondomain.ErrRateNotFound, kindNotFound},
	{discountdomain.ErrRuleNotFound, kindNotFound},
	{versioningdomain.ErrTargetNotFound, kindNotFound},
	{gorm.ErrRecordNotFound, kindNotFound},

	{ErrInvalidRequest, kindValidation},
	{applicationdomain.ErrInvalidApplication, kindValidation},
	{applicationdomain.ErrInvalidMember, kindValidation},
	{applicationdomain.ErrInvalidEvent, kindValidation},
	{applicationdomain.ErrInvalidActor, kindValidation},
	{applicationdomain.ErrReasonRequired, kindValidation},
	{premiumdomain.ErrInvalidBillingFrequency, kindValidation},
	{premiumdomain.ErrInvalidMode, kindValidation},
	{premiumdomain.ErrInvalidInceptionDate, kindValidation},
	{ratecarddomain.ErrInvalidPlan, kindValidation},
	{ratecarddomain.ErrInvalidName, kindValidation},
	{ratecarddomain.ErrInvalidCurrency, kindValidation},
	{ratecarddomain.ErrInvalidPricingModel, kindValidation},
	{ratecarddomain.ErrInvalidValidity, kindValidation},
	{ratecarddomain.ErrInvalidEntry, kindValidation},
	{ratecarddomain.ErrOverlappingEntries, kindValidation},
	{ratecarddomain.ErrInvalidTier, kindValidation},
	{ratecarddomain.ErrEmptyRateCard, kindValidation},
	{ratecarddomain.ErrInvalidMemberProfile, kindValidation},
	{addondomain.ErrInvalidAddon, kindValidation},
	{addondomain.ErrInvalidRate, kindValidation},
	{addondomain.ErrInvalidMemberCount, kindValidation},
	{loadingdomain.ErrInvalidLoadingRule, kindValidation},
	{discountdomain.ErrInvalidRule, kindValidation},
	{discountdomain.ErrInvalidPromo, kindValidation},
	{discountdomain.ErrInvalidPromoCode, kindValidation},
	{versioningdomain.ErrInvalidTarget, kindValidation},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	rule, ok := matchErrorRule(err)
	if !ok {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	code := rule.err.Error()
	payload := errorPayload{
		Type:    rule.kind.typ,
		Code:    code,
		Message: rule.kind.message,
	}

	if rule.kind == kindValidation {
		payload.Errors = []ValidationError{
			{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			},
		}
	}

	var transitionErr *applicationdomain.InvalidStateTransitionError
	if errors.As(err, &transitionErr) {
		payload.Message = transitionErr.Error()
	}

	return rule.kind.status, payload
}

func matchErrorRule(err error) (errorRule, bool) {
	for _, rule := range errorRules {
		if errors.Is(err, rule.err) {
			return rule, true
		}
	}
	return errorRule{}, false
}

// classifyErrorForLog feeds the request logger's error_type and error_code
// fields.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if asValidationErrors(err) != nil {
		return "validation_error", "invalid_request"
	}
	rule, ok := matchErrorRule(err)
	if !ok {
		return "internal_error", "internal_error"
	}
	return rule.kind.typ, rule.err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "reason_required" {
		return "reason"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "reason_required":
		return "reason is required"
	default:
		return "invalid value"
	}
}
