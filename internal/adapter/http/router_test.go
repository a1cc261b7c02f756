package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/qsbs"
)

type MockBalanceReader struct {
	mock.Mock
}

func (m *MockBalanceReader) GetAccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (domain.Money, error) {
	args := m.Called(ctx, accountID, asOf)
	return args.Get(0).(domain.Money), args.Error(1)
}

type MockSummaryReader struct {
	mock.Mock
}

func (m *MockSummaryReader) GetSummary(ctx context.Context, asOf time.Time) (*qsbs.Summary, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qsbs.Summary), args.Error(1)
}

const token = "secret"

func serve(t *testing.T, h http.Handler, path string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRouter_Health(t *testing.T) {
	router := NewRouter(new(MockBalanceReader), new(MockSummaryReader), token, logging.Discard())

	rec := serve(t, router, "/healthz", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRouter_RequiresToken(t *testing.T) {
	router := NewRouter(new(MockBalanceReader), new(MockSummaryReader), token, logging.Discard())

	rec := serve(t, router, "/api/qsbs/summary", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decode(t, rec)["error"])
}

func TestRouter_AccountBalance(t *testing.T) {
	balances := new(MockBalanceReader)
	router := NewRouter(balances, new(MockSummaryReader), token, logging.Discard())
	accountID := uuid.New()
	missing := uuid.New()
	asOf := domain.NewDate(2024, time.June, 30)

	balances.On("GetAccountBalance", mock.Anything, accountID, (*time.Time)(nil)).
		Return(domain.MustMoney(1234.5, "USD"), nil).Once()
	balances.On("GetAccountBalance", mock.Anything, accountID, mock.MatchedBy(func(d *time.Time) bool {
		return d != nil && d.Equal(asOf)
	})).Return(domain.MustMoney(-10, "USD"), nil).Once()
	balances.On("GetAccountBalance", mock.Anything, missing, (*time.Time)(nil)).
		Return(domain.Money{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, missing)).Once()

	rec := serve(t, router, "/api/accounts/"+accountID.String()+"/balance", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "1234.50", body["amount"])
	assert.Equal(t, "USD", body["currency"])
	assert.NotContains(t, body, "as_of")

	rec = serve(t, router, "/api/accounts/"+accountID.String()+"/balance?as_of=2024-06-30", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "-10.00", body["amount"])
	assert.Equal(t, "2024-06-30", body["as_of"])

	rec = serve(t, router, "/api/accounts/"+missing.String()+"/balance", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, router, "/api/accounts/not-a-uuid/balance", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, router, "/api/accounts/"+accountID.String()+"/balance?as_of=06/30/2024", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	balances.AssertExpectations(t)
}

func TestRouter_QSBSSummary(t *testing.T) {
	summaries := new(MockSummaryReader)
	router := NewRouter(new(MockBalanceReader), summaries, token, logging.Discard())
	asOf := domain.NewDate(2025, time.January, 1)
	usd := func(v float64) domain.Money { return domain.MustMoney(v, "USD") }

	summary := &qsbs.Summary{
		AsOf:     asOf,
		Currency: domain.USD,
		Qualified: []qsbs.Holding{{
			LotID:              uuid.New(),
			Symbol:             "STRT",
			Issuer:             "Startup Inc",
			AcquisitionDate:    domain.NewDate(2019, time.January, 1),
			QualificationDate:  domain.NewDate(2023, time.December, 31),
			Quantity:           domain.QuantityOf(1000),
			CostBasis:          usd(50000),
			HoldingPeriodDays:  2192,
			IsQualified:        true,
			PotentialExclusion: usd(10000000),
		}},
		TotalQualifiedBasis:     usd(50000),
		TotalPendingBasis:       usd(0),
		TotalPotentialExclusion: usd(10000000),
		Issuers: []qsbs.IssuerSummary{{
			Issuer:             "Startup Inc",
			Holdings:           1,
			QualifiedBasis:     usd(50000),
			PendingBasis:       usd(0),
			PotentialExclusion: usd(10000000),
		}},
	}
	summaries.On("GetSummary", mock.Anything, asOf).Return(summary, nil).Once()

	rec := serve(t, router, "/api/qsbs/summary?as_of=2025-01-01", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2025-01-01", body.AsOf)
	require.Len(t, body.Qualified, 1)
	assert.Empty(t, body.Pending)
	assert.Equal(t, "STRT", body.Qualified[0].Symbol)
	assert.Equal(t, "2023-12-31", body.Qualified[0].QualificationDate)
	assert.Equal(t, "10000000", body.TotalPotentialExclusion)
	require.Len(t, body.Issuers, 1)
	assert.Equal(t, "Startup Inc", body.Issuers[0].Issuer)

	summaries.On("GetSummary", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(nil, fmt.Errorf("%w: EUR vs USD", domain.ErrCurrencyMismatch)).Once()
	rec = serve(t, router, "/api/qsbs/summary", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	summaries.AssertExpectations(t)
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	summaries := new(MockSummaryReader)
	router := NewRouter(new(MockBalanceReader), summaries, "", logging.Discard())
	summaries.On("GetSummary", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("boom") })

	rec := serve(t, router, "/api/qsbs/summary", false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}
