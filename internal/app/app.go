// Package app wires the use case services over one storage backend.
package app

import (
	"log/slog"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/keylock"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/corpaction"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/ledger"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/lotmatch"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/qsbs"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/trading"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/washsale"
)

// Services holds every use case service. All of them share one lock map so
// writes to a position serialize across services.
type Services struct {
	Repos            domain.Repositories
	Ledger           *ledger.LedgerService
	Lots             *lotmatch.LotMatchingService
	WashSales        *washsale.WashSaleService
	CorporateActions *corpaction.CorporateActionService
	QSBS             *qsbs.QSBSService
	Trading          *trading.TradingService
}

// New builds the services over repos; baseCurrency is the QSBS reporting currency
func New(repos domain.Repositories, baseCurrency domain.Currency, logger *slog.Logger) *Services {
	logger = logging.OrDefault(logger)
	locks := keylock.New()

	ledgerSvc := ledger.NewLedgerService(repos.Accounts, repos.Transactions, repos.Transactor, logger)
	lots := lotmatch.NewLotMatchingService(repos.TaxLots, repos.Transactor, locks, logger)
	washSales := washsale.NewWashSaleService(repos.Accounts, repos.Positions, repos.TaxLots, repos.Transactor, locks, logger)

	return &Services{
		Repos:            repos,
		Ledger:           ledgerSvc,
		Lots:             lots,
		WashSales:        washSales,
		CorporateActions: corpaction.NewCorporateActionService(repos.Securities, repos.Positions, repos.TaxLots, repos.CorporateActions, repos.Transactor, locks, logger),
		QSBS:             qsbs.NewQSBSService(repos.Securities, repos.Positions, repos.TaxLots, baseCurrency, logger),
		Trading:          trading.NewTradingService(repos.Securities, repos.Positions, repos.TaxLots, repos.Transactor, ledgerSvc, lots, washSales, locks, logger),
	}
}
