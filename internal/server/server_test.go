package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"github.com/smallbiznis/medrate/internal/observability"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePremiumService struct {
	last premiumdomain.Request
	err  error
}

func (f *fakePremiumService) CalculatePremium(ctx context.Context, req premiumdomain.Request) (*premiumdomain.Breakdown, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &premiumdomain.Breakdown{
		Mode:              premiumdomain.ModePreliminary,
		PlanID:            req.PlanID,
		AnnualTotal:       decimal.RequireFromString("1200"),
		InstallmentAmount: decimal.RequireFromString("100"),
	}, nil
}

type fakeApplicationService struct {
	applicationdomain.Service
	lastTransition applicationdomain.TransitionRequest
	transitionErr  error
}

func (f *fakeApplicationService) Get(ctx context.Context, id snowflake.ID) (*applicationdomain.Application, error) {
	return nil, applicationdomain.ErrNotFound
}

func (f *fakeApplicationService) Transition(ctx context.Context, req applicationdomain.TransitionRequest) (*applicationdomain.TransitionResult, error) {
	f.lastTransition = req
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	return &applicationdomain.TransitionResult{
		Application: &applicationdomain.Application{ID: req.ApplicationID, Status: applicationdomain.StatusQuoted},
	}, nil
}

type fakeRateCardService struct {
	ratecarddomain.Service
}

func (f *fakeRateCardService) Create(ctx context.Context, req ratecarddomain.CreateRequest) (*ratecarddomain.RateCard, error) {
	return nil, ratecarddomain.ErrInvalidCurrency
}

type fakeVersionGuard struct {
	versioningdomain.Guard
	scope string
}

func (f *fakeVersionGuard) History(ctx context.Context, kind versioningdomain.Kind, scopeKey string) ([]versioningdomain.Version, error) {
	f.scope = scopeKey
	return []versioningdomain.Version{}, nil
}

type testServer struct {
	engine   *gin.Engine
	premium  *fakePremiumService
	apps     *fakeApplicationService
	versions *fakeVersionGuard
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		engine:   NewEngine(observability.Config{}),
		premium:  &fakePremiumService{},
		apps:     &fakeApplicationService{},
		versions: &fakeVersionGuard{},
	}
	NewServer(ServerParams{
		Gin:          ts.engine,
		Premium:      ts.premium,
		Applications: ts.apps,
		RateCards:    &fakeRateCardService{},
		Addons:       struct{ addondomain.Service }{},
		Loadings:     struct{ loadingdomain.Service }{},
		Discounts:    struct{ discountdomain.Service }{},
		Versions:     ts.versions,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func errorOf(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	errBody, ok := payload["error"].(map[string]any)
	require.True(t, ok, "missing error body: %v", payload)
	return errBody
}

func TestCalculateQuote(t *testing.T) {
	ts := newTestServer(t)

	body := `{
		"plan_id": "42",
		"inception_date": "2026-01-01T00:00:00Z",
		"billing_frequency": "monthly",
		"promo_code": "  SPRING  ",
		"members": [{"id": "1", "date_of_birth": "1990-05-01T00:00:00Z", "gender": "F", "region_code": "JKT", "member_type": "principal"}]
	}`
	rec, payload := ts.do(t, http.MethodPost, "/api/quotes", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := payload["data"].(map[string]any)
	assert.Equal(t, "1200", data["annual_total"])
	assert.Equal(t, "100", data["installment_amount"])

	assert.Equal(t, snowflake.ID(42), ts.premium.last.PlanID)
	assert.Equal(t, premiumdomain.BillingMonthly, ts.premium.last.BillingFrequency)
	assert.Equal(t, "SPRING", ts.premium.last.PromoCode)
	require.Len(t, ts.premium.last.Members, 1)
	assert.Equal(t, ratingdomain.MemberType("principal"), ts.premium.last.Members[0].MemberType)
}

func TestCalculateQuoteMapsPricingErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no rate match", fmt.Errorf("member 1: %w", ratingdomain.ErrNoRateMatch), http.StatusUnprocessableEntity, "no_rate_match"},
		{"promo exhausted", discountdomain.ErrPromoExhausted, http.StatusConflict, "promo_exhausted"},
		{"invalid promo", discountdomain.ErrInvalidPromoCode, http.StatusBadRequest, "invalid_promo_code"},
		{"bad frequency", premiumdomain.ErrInvalidBillingFrequency, http.StatusBadRequest, "invalid_billing_frequency"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.premium.err = tc.err

			rec, payload := ts.do(t, http.MethodPost, "/api/quotes", `{"plan_id":"42"}`, nil)
			require.Equal(t, tc.status, rec.Code)
			errBody := errorOf(t, payload)
			if tc.code == "" {
				assert.Equal(t, "internal_error", errBody["type"])
				return
			}
			assert.Equal(t, tc.code, errBody["code"])
		})
	}
}

func TestCalculateQuoteRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodPost, "/api/quotes", `{"plan_id":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorOf(t, payload)["type"])
}

func TestTransitionUsesHeaderActor(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodPost, "/api/applications/77/transitions", `{"event":" QUOTE "}`, map[string]string{
		"X-Actor-Id": "agent-9",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snowflake.ID(77), ts.apps.lastTransition.ApplicationID)
	assert.Equal(t, applicationdomain.EventQuote, ts.apps.lastTransition.Event)
	assert.Equal(t, "agent-9", ts.apps.lastTransition.Actor)

	app := payload["data"].(map[string]any)["application"].(map[string]any)
	assert.Equal(t, "quoted", app["status"])
}

func TestTransitionConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.apps.transitionErr = &applicationdomain.InvalidStateTransitionError{
		Subject:   "application",
		Current:   "draft",
		Attempted: "approved",
	}

	rec, payload := ts.do(t, http.MethodPost, "/api/applications/77/transitions", `{"event":"approve","actor":"uw-1"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	errBody := errorOf(t, payload)
	assert.Equal(t, "invalid_state_transition", errBody["code"])
	assert.Contains(t, errBody["message"], "cannot move from draft to approved")
	assert.Equal(t, "uw-1", ts.apps.lastTransition.Actor)
}

func TestInvalidPathID(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodGet, "/api/applications/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errs := errorOf(t, payload)["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "id", errs[0].(map[string]any)["field"])
}

func TestApplicationNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodGet, "/api/applications/5", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application_not_found", errorOf(t, payload)["code"])
}

func TestValidationErrorCarriesField(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodPost, "/admin/rate-cards", `{"name":"gold"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errs := errorOf(t, payload)["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "currency", errs[0].(map[string]any)["field"])
}

func TestRateCardHistoryScope(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/admin/plans/42/rate-card/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plan_id=42", ts.versions.scope)
}

func TestUnknownRouteAndHealth(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorOf(t, payload)["type"])

	rec, payload = ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(fmt.Errorf("wrap: %w", applicationdomain.ErrConversionInProgress))
	assert.Equal(t, "conflict", typ)
	assert.Equal(t, "conversion_in_progress", code)

	typ, code = classifyErrorForLog(invalidRequestError())
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_request", code)

	typ, _ = classifyErrorForLog(fmt.Errorf("boom"))
	assert.Equal(t, "internal_error", typ)
}
