package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/qsbs"
)

type balanceResponse struct {
	AccountID string `json:"account_id"`
	AsOf      string `json:"as_of,omitempty"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

type holdingResponse struct {
	LotID              string `json:"lot_id"`
	AccountID          string `json:"account_id"`
	SecurityID         string `json:"security_id"`
	Symbol             string `json:"symbol"`
	Issuer             string `json:"issuer"`
	AcquisitionDate    string `json:"acquisition_date"`
	QualificationDate  string `json:"qualification_date"`
	Quantity           string `json:"quantity"`
	CostBasis          string `json:"cost_basis"`
	HoldingPeriodDays  int    `json:"holding_period_days"`
	DaysUntilQualified int    `json:"days_until_qualified"`
	IsQualified        bool   `json:"is_qualified"`
	PotentialExclusion string `json:"potential_exclusion"`
}

type issuerResponse struct {
	Issuer             string `json:"issuer"`
	Holdings           int    `json:"holdings"`
	QualifiedBasis     string `json:"qualified_basis"`
	PendingBasis       string `json:"pending_basis"`
	PotentialExclusion string `json:"potential_exclusion"`
}

type summaryResponse struct {
	AsOf                    string            `json:"as_of"`
	Currency                string            `json:"currency"`
	Qualified               []holdingResponse `json:"qualified"`
	Pending                 []holdingResponse `json:"pending"`
	TotalQualifiedBasis     string            `json:"total_qualified_basis"`
	TotalPendingBasis       string            `json:"total_pending_basis"`
	TotalPotentialExclusion string            `json:"total_potential_exclusion"`
	Issuers                 []issuerResponse  `json:"issuers"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseAsOf reads the optional as_of query parameter
func parseAsOf(r *http.Request) (time.Time, bool, error) {
	value := r.URL.Query().Get("as_of")
	if value == "" {
		return time.Time{}, false, nil
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (h *handler) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	asOf, ok, err := parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var asOfPtr *time.Time
	if ok {
		asOfPtr = &asOf
	}
	balance, err := h.balances.GetAccountBalance(r.Context(), accountID, asOfPtr)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := balanceResponse{
		AccountID: accountID.String(),
		Amount:    balance.Amount().StringFixed(balance.Currency().Fraction()),
		Currency:  string(balance.Currency()),
	}
	if ok {
		resp.AsOf = asOf.Format(domain.DateFormat)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getQSBSSummary(w http.ResponseWriter, r *http.Request) {
	asOf, ok, err := parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		asOf = domain.DateOf(h.now())
	}

	summary, err := h.summaries.GetSummary(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func newSummaryResponse(summary *qsbs.Summary) summaryResponse {
	resp := summaryResponse{
		AsOf:                    summary.AsOf.Format(domain.DateFormat),
		Currency:                string(summary.Currency),
		Qualified:               holdingResponses(summary.Qualified),
		Pending:                 holdingResponses(summary.Pending),
		TotalQualifiedBasis:     summary.TotalQualifiedBasis.Amount().String(),
		TotalPendingBasis:       summary.TotalPendingBasis.Amount().String(),
		TotalPotentialExclusion: summary.TotalPotentialExclusion.Amount().String(),
		Issuers:                 make([]issuerResponse, 0, len(summary.Issuers)),
	}
	for _, is := range summary.Issuers {
		resp.Issuers = append(resp.Issuers, issuerResponse{
			Issuer:             is.Issuer,
			Holdings:           is.Holdings,
			QualifiedBasis:     is.QualifiedBasis.Amount().String(),
			PendingBasis:       is.PendingBasis.Amount().String(),
			PotentialExclusion: is.PotentialExclusion.Amount().String(),
		})
	}
	return resp
}

func holdingResponses(holdings []qsbs.Holding) []holdingResponse {
	out := make([]holdingResponse, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, holdingResponse{
			LotID:              h.LotID.String(),
			AccountID:          h.AccountID.String(),
			SecurityID:         h.SecurityID.String(),
			Symbol:             h.Symbol,
			Issuer:             h.Issuer,
			AcquisitionDate:    h.AcquisitionDate.Format(domain.DateFormat),
			QualificationDate:  h.QualificationDate.Format(domain.DateFormat),
			Quantity:           h.Quantity.String(),
			CostBasis:          h.CostBasis.Amount().String(),
			HoldingPeriodDays:  h.HoldingPeriodDays,
			DaysUntilQualified: h.DaysUntilQualified,
			IsQualified:        h.IsQualified,
			PotentialExclusion: h.PotentialExclusion.Amount().String(),
		})
	}
	return out
}
