package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/app"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/corpaction"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/ledger"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/lotmatch"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/qsbs"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/trading"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/washsale"
)

// Server implements the LedgerService gRPC server
type Server struct {
	LedgerService          *ledger.LedgerService
	LotService             *lotmatch.LotMatchingService
	WashSaleService        *washsale.WashSaleService
	CorporateActionService *corpaction.CorporateActionService
	QSBSService            *qsbs.QSBSService
	TradingService         *trading.TradingService
}

// NewServer creates a new gRPC server instance
func NewServer(services *app.Services) *Server {
	return &Server{
		LedgerService:          services.Ledger,
		LotService:             services.Lots,
		WashSaleService:        services.WashSales,
		CorporateActionService: services.CorporateActions,
		QSBSService:            services.QSBS,
		TradingService:         services.Trading,
	}
}

// NewGRPCServer builds a grpc.Server with the ledger, health and reflection services.
// Every RPC is logged and, except health checks, must carry apiToken.
func NewGRPCServer(srv *Server, apiToken string, logger *slog.Logger) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(logging.OrDefault(logger)),
			AuthInterceptor(apiToken),
		),
	)
	RegisterLedgerServiceServer(grpcServer, srv)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)
	return grpcServer, healthServer
}

// PostTransaction handles the PostTransaction RPC.
// Entries carry account_id, debit, credit, currency, memo and an optional tax_lot_id.
func (s *Server) PostTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	tx := &domain.Transaction{
		TransactionDate: r.date("transaction_date"),
		Memo:            r.str("memo"),
		Reference:       r.str("reference"),
	}
	for _, e := range r.structs("entries") {
		cur := e.currency("currency", "")
		if cur == "" {
			e.fail("currency", "is required")
		}
		debit, _ := e.optionalDecimal("debit")
		credit, _ := e.optionalDecimal("credit")
		entry := domain.Entry{
			AccountID:    e.uuid("account_id"),
			DebitAmount:  domain.MoneyIn(debit, cur),
			CreditAmount: domain.MoneyIn(credit, cur),
			Memo:         e.str("memo"),
		}
		if lotID := e.optionalUUID("tax_lot_id"); lotID != uuid.Nil {
			entry = entry.WithTaxLot(lotID)
		}
		r.merge(e)
		tx.Entries = append(tx.Entries, entry)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = time.Now()
	}

	if err := s.LedgerService.PostTransaction(ctx, tx); err != nil {
		return nil, mapError(err)
	}
	return toStruct(map[string]any{"transaction": transactionFields(tx)})
}

// ReverseTransaction handles the ReverseTransaction RPC
func (s *Server) ReverseTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	id := r.uuid("transaction_id")
	date := r.date("date")
	memo := r.str("memo")
	if err := r.Err(); err != nil {
		return nil, err
	}

	reversal, err := s.LedgerService.ReverseTransaction(ctx, id, date, memo)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(map[string]any{"transaction": transactionFields(reversal)})
}

// GetAccountBalance handles the GetAccountBalance RPC; as_of is optional
func (s *Server) GetAccountBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	accountID := r.uuid("account_id")
	asOf := r.date("as_of")
	if err := r.Err(); err != nil {
		return nil, err
	}

	var asOfPtr *time.Time
	if !asOf.IsZero() {
		asOfPtr = &asOf
	}
	balance, err := s.LedgerService.GetAccountBalance(ctx, accountID, asOfPtr)
	if err != nil {
		return nil, mapError(err)
	}
	fields := moneyFields(balance)
	fields["account_id"] = accountID.String()
	fields["as_of"] = formatDate(asOf)
	return toStruct(fields)
}

// saleRequest parses the lot matching fields shared by MatchSale and ExecuteSale
func saleRequest(r *request) (lotmatch.SaleRequest, domain.Currency) {
	cur := r.currency("currency", domain.USD)
	sale := lotmatch.SaleRequest{
		PositionID:   r.uuid("position_id"),
		Quantity:     r.quantity("quantity"),
		LotIDs:       r.uuids("lot_ids"),
		CurrentPrice: r.optionalMoney("current_price", cur),
		SaleDate:     r.date("sale_date"),
	}
	method, err := lotmatch.ParseMethod(r.required("method"))
	if err != nil && r.err == nil {
		r.err = status.Error(codes.InvalidArgument, err.Error())
	}
	sale.Method = method
	return sale, cur
}

// MatchSale handles the MatchSale RPC. Dispositions carry zero proceeds.
func (s *Server) MatchSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	sale, _ := saleRequest(r)
	if err := r.Err(); err != nil {
		return nil, err
	}

	dispositions, err := s.LotService.MatchSale(ctx, sale)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(map[string]any{"dispositions": dispositionsFields(dispositions)})
}

// ExecuteSale handles the ExecuteSale RPC
func (s *Server) ExecuteSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	sale, cur := saleRequest(r)
	proceeds := r.money("proceeds", cur)
	if err := r.Err(); err != nil {
		return nil, err
	}

	dispositions, err := s.LotService.ExecuteSale(ctx, sale, proceeds)
	if err != nil {
		return nil, mapError(err)
	}
	totals, err := domain.SumDispositions(cur, dispositions)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(map[string]any{
		"dispositions": dispositionsFields(dispositions),
		"totals":       totalsFields(totals),
	})
}

// DetectWashSales handles the DetectWashSales RPC. The loss may be given with either sign.
func (s *Server) DetectWashSales(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	positionID := r.uuid("position_id")
	saleDate := r.date("sale_date")
	loss := r.money("loss", r.currency("currency", domain.USD))
	exclude := r.uuids("exclude_lot_ids")
	if saleDate.IsZero() {
		r.fail("sale_date", "is required")
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	lots, err := s.WashSaleService.DetectWashSales(ctx, positionID, saleDate, loss, exclude)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]any, 0, len(lots))
	for _, lot := range lots {
		out = append(out, lotFields(lot))
	}
	return toStruct(map[string]any{"lots": out, "is_wash_sale": len(lots) > 0})
}

// ApplyWashSale handles the ApplyWashSale RPC. It defers a loss sale's unreplaced
// shares into replacement lots bought since; RecordSale reports what is left unreplaced.
func (s *Server) ApplyWashSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	positionID := r.uuid("position_id")
	saleDate := r.date("sale_date")
	loss := r.money("loss", r.currency("currency", domain.USD))
	quantitySold := r.quantity("quantity_sold")
	exclude := r.uuids("exclude_lot_ids")
	if saleDate.IsZero() {
		r.fail("sale_date", "is required")
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	result, err := s.WashSaleService.ApplyWashSale(ctx, positionID, saleDate, loss, quantitySold, exclude)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(washSaleFields(result))
}

// ApplySplit handles the ApplySplit RPC
func (s *Server) ApplySplit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	in := corpaction.SplitInput{
		ActionID:      r.str("action_id"),
		SecurityID:    r.uuid("security_id"),
		Numerator:     r.decimal("numerator"),
		Denominator:   r.decimal("denominator"),
		EffectiveDate: r.date("effective_date"),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	result, err := s.CorporateActionService.ApplySplit(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(corporateActionFields(result))
}

// ApplySpinoff handles the ApplySpinoff RPC; share_ratio defaults to 1
func (s *Server) ApplySpinoff(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	in := corpaction.SpinoffInput{
		ActionID:         r.str("action_id"),
		ParentSecurityID: r.uuid("parent_security_id"),
		ChildSecurityID:  r.uuid("child_security_id"),
		AllocationRatio:  r.decimal("allocation_ratio"),
		EffectiveDate:    r.date("effective_date"),
	}
	in.ShareRatio, _ = r.optionalDecimal("share_ratio")
	if err := r.Err(); err != nil {
		return nil, err
	}

	result, err := s.CorporateActionService.ApplySpinoff(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(corporateActionFields(result))
}

// ApplyMerger handles the ApplyMerger RPC
func (s *Server) ApplyMerger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	in := corpaction.MergerInput{
		ActionID:           r.str("action_id"),
		OldSecurityID:      r.uuid("old_security_id"),
		NewSecurityID:      r.uuid("new_security_id"),
		ExchangeRatio:      r.decimal("exchange_ratio"),
		CashInLieuPerShare: r.optionalMoney("cash_in_lieu_per_share", r.currency("currency", domain.USD)),
		EffectiveDate:      r.date("effective_date"),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	result, err := s.CorporateActionService.ApplyMerger(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(corporateActionFields(result))
}

// ApplySymbolChange handles the ApplySymbolChange RPC
func (s *Server) ApplySymbolChange(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	in := corpaction.SymbolChangeInput{
		ActionID:      r.str("action_id"),
		SecurityID:    r.uuid("security_id"),
		NewSymbol:     r.required("new_symbol"),
		NewName:       r.str("new_name"),
		EffectiveDate: r.date("effective_date"),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	result, err := s.CorporateActionService.ApplySymbolChange(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(corporateActionFields(result))
}

// GetQSBSSummary handles the GetQSBSSummary RPC; as_of defaults to today
func (s *Server) GetQSBSSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	asOf := r.date("as_of")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = domain.DateOf(time.Now())
	}

	summary, err := s.QSBSService.GetSummary(ctx, asOf)
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(summaryFields(summary))
}

// RecordPurchase handles the RecordPurchase RPC. Without cash_account_id no transaction is posted.
func (s *Server) RecordPurchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	cur := r.currency("currency", domain.USD)
	in := trading.PurchaseInput{
		InvestmentAccountID: r.uuid("investment_account_id"),
		CashAccountID:       r.optionalUUID("cash_account_id"),
		SecurityID:          r.uuid("security_id"),
		Quantity:            r.quantity("quantity"),
		CostPerShare:        r.money("cost_per_share", cur),
		AcquisitionType:     domain.AcquisitionType(strings.ToUpper(r.str("acquisition_type"))),
		TradeDate:           r.date("trade_date"),
		Memo:                r.str("memo"),
		Reference:           r.str("reference"),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	result, err := s.TradingService.RecordPurchase(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	fields := map[string]any{
		"position_id": result.Position.ID.String(),
		"lot":         lotFields(result.Lot),
	}
	if result.Transaction != nil {
		fields["transaction"] = transactionFields(result.Transaction)
	}
	return toStruct(fields)
}

// RecordSale handles the RecordSale RPC; method defaults to FIFO
func (s *Server) RecordSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	cur := r.currency("currency", domain.USD)
	in := trading.SaleInput{
		InvestmentAccountID: r.uuid("investment_account_id"),
		CashAccountID:       r.uuid("cash_account_id"),
		GainAccountID:       r.uuid("gain_account_id"),
		SecurityID:          r.uuid("security_id"),
		Quantity:            r.quantity("quantity"),
		Proceeds:            r.money("proceeds", cur),
		LotIDs:              r.uuids("lot_ids"),
		CurrentPrice:        r.optionalMoney("current_price", cur),
		TradeDate:           r.date("trade_date"),
		ApplyWashSale:       r.boolean("apply_wash_sale"),
		Memo:                r.str("memo"),
		Reference:           r.str("reference"),
	}
	if method := r.str("method"); method != "" {
		parsed, err := lotmatch.ParseMethod(method)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		in.Method = parsed
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	result, err := s.TradingService.RecordSale(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	fields := map[string]any{
		"position_id":   result.PositionID.String(),
		"dispositions":  dispositionsFields(result.Dispositions),
		"totals":        totalsFields(result.Totals),
		"realized_gain": moneyFields(result.RealizedGain),
	}
	if result.Transaction != nil {
		fields["transaction"] = transactionFields(result.Transaction)
	}
	if result.WashSale != nil {
		fields["wash_sale"] = washSaleFields(result.WashSale)
	}
	return toStruct(fields)
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation:
		return status.Errorf(codes.InvalidArgument, "%s", err.Error())
	case domain.ErrCodeNotFound:
		return status.Errorf(codes.NotFound, "%s", err.Error())
	case domain.ErrCodeCapacity:
		return status.Errorf(codes.FailedPrecondition, "%s", err.Error())
	}
	return status.Errorf(codes.Internal, "%s", err.Error())
}
