// Package http serves the read-only reporting gateway
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/qsbs"
)

// BalanceReader is implemented by ledger.LedgerService
type BalanceReader interface {
	GetAccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (domain.Money, error)
}

// SummaryReader is implemented by qsbs.QSBSService
type SummaryReader interface {
	GetSummary(ctx context.Context, asOf time.Time) (*qsbs.Summary, error)
}

// NewRouter builds the HTTP API router. A non-empty apiToken is required as a
// bearer token on every /api route.
func NewRouter(balances BalanceReader, summaries SummaryReader, apiToken string, logger *slog.Logger) http.Handler {
	logger = logging.OrDefault(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization"},
	}))

	h := &handler{balances: balances, summaries: summaries, now: time.Now}

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Use(tokenAuth(apiToken))
		r.Get("/accounts/{id}/balance", h.getAccountBalance)
		r.Get("/qsbs/summary", h.getQSBSSummary)
	})

	return r
}

type handler struct {
	balances  BalanceReader
	summaries SummaryReader
	now       func() time.Time
}

func tokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if lw, ok := w.(*loggingResponseWriter); ok {
		lw.SetErrorMessage(message)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error class to an HTTP status
func writeDomainError(w http.ResponseWriter, err error) {
	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.ErrCodeNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case domain.ErrCodeCapacity:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
