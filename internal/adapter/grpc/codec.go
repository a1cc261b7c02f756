package grpc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/corpaction"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/qsbs"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/washsale"
)

// request reads typed fields out of a Struct message and keeps the first error
type request struct {
	fields map[string]*structpb.Value
	err    error
}

func newRequest(in *structpb.Struct) *request {
	return &request{fields: in.GetFields()}
}

// Err returns the first field error as an InvalidArgument status
func (r *request) Err() error {
	return r.err
}

func (r *request) fail(name, format string, args ...any) {
	if r.err == nil {
		r.err = status.Errorf(codes.InvalidArgument, "invalid %s: %s", name, fmt.Sprintf(format, args...))
	}
}

func (r *request) str(name string) string {
	v, ok := r.fields[name]
	if !ok || v == nil {
		return ""
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	case *structpb.Value_NullValue:
		return ""
	}
	r.fail(name, "expected a scalar")
	return ""
}

func (r *request) required(name string) string {
	s := r.str(name)
	if s == "" {
		r.fail(name, "is required")
	}
	return s
}

func (r *request) uuid(name string) uuid.UUID {
	s := r.required(name)
	if s == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return id
}

// optionalUUID returns uuid.Nil when the field is absent
func (r *request) optionalUUID(name string) uuid.UUID {
	if r.str(name) == "" {
		return uuid.Nil
	}
	return r.uuid(name)
}

func (r *request) uuids(name string) []uuid.UUID {
	v, ok := r.fields[name]
	if !ok || v == nil {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		r.fail(name, "expected a list of ids")
		return nil
	}
	ids := make([]uuid.UUID, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		id, err := uuid.Parse(item.GetStringValue())
		if err != nil {
			r.fail(fmt.Sprintf("%s[%d]", name, i), "%v", err)
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}

// optionalDecimal reads a decimal string; number values are rejected
func (r *request) optionalDecimal(name string) (decimal.Decimal, bool) {
	if v, ok := r.fields[name]; ok && v != nil {
		if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); isNumber {
			r.fail(name, "must be a decimal string")
			return decimal.Zero, false
		}
	}
	s := r.str(name)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		r.fail(name, "%v", err)
		return decimal.Zero, false
	}
	return d, true
}

func (r *request) decimal(name string) decimal.Decimal {
	d, ok := r.optionalDecimal(name)
	if !ok && r.str(name) == "" {
		r.fail(name, "is required")
	}
	return d
}

func (r *request) quantity(name string) domain.Quantity {
	return domain.NewQuantity(r.decimal(name))
}

func (r *request) currency(name string, fallback domain.Currency) domain.Currency {
	s := r.str(name)
	if s == "" {
		return fallback
	}
	cur, err := domain.ParseCurrency(s)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return cur
}

func (r *request) money(name string, cur domain.Currency) domain.Money {
	return domain.MoneyIn(r.decimal(name), cur)
}

func (r *request) optionalMoney(name string, cur domain.Currency) *domain.Money {
	d, ok := r.optionalDecimal(name)
	if !ok {
		return nil
	}
	m := domain.MoneyIn(d, cur)
	return &m
}

// date returns the zero time when the field is absent
func (r *request) date(name string) time.Time {
	s := r.str(name)
	if s == "" {
		return time.Time{}
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return t
}

func (r *request) boolean(name string) bool {
	v, ok := r.fields[name]
	if !ok || v == nil {
		return false
	}
	if b, ok := v.GetKind().(*structpb.Value_BoolValue); ok {
		return b.BoolValue
	}
	s := r.str(name)
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.fail(name, "expected a boolean")
	}
	return b
}

// structs returns the list items of name as nested requests sharing this request's error
func (r *request) structs(name string) []*request {
	v, ok := r.fields[name]
	if !ok || v == nil {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		r.fail(name, "expected a list")
		return nil
	}
	items := make([]*request, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		fields := item.GetStructValue()
		if fields == nil {
			r.fail(fmt.Sprintf("%s[%d]", name, i), "expected an object")
			return nil
		}
		items = append(items, newRequest(fields))
	}
	return items
}

// merge copies the first error of nested into r
func (r *request) merge(nested *request) {
	if r.err == nil && nested.err != nil {
		r.err = nested.err
	}
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateFormat)
}

func moneyFields(m domain.Money) map[string]any {
	return map[string]any{
		"amount":   m.Amount().String(),
		"currency": string(m.Currency()),
	}
}

func transactionFields(tx *domain.Transaction) map[string]any {
	if tx == nil {
		return nil
	}
	entries := make([]any, 0, len(tx.Entries))
	for _, e := range tx.Entries {
		entry := map[string]any{
			"id":         e.ID.String(),
			"account_id": e.AccountID.String(),
			"debit":      e.DebitAmount.Amount().String(),
			"credit":     e.CreditAmount.Amount().String(),
			"currency":   string(e.Currency()),
			"memo":       e.Memo,
		}
		if e.TaxLotID != nil {
			entry["tax_lot_id"] = e.TaxLotID.String()
		}
		entries = append(entries, entry)
	}
	fields := map[string]any{
		"id":               tx.ID.String(),
		"transaction_date": formatDate(tx.TransactionDate),
		"posted_date":      formatDate(tx.PostedDate),
		"memo":             tx.Memo,
		"reference":        tx.Reference,
		"is_reversed":      tx.IsReversed,
		"entries":          entries,
	}
	if tx.ReversesTransactionID != nil {
		fields["reverses_transaction_id"] = tx.ReversesTransactionID.String()
	}
	return fields
}

func dispositionsFields(dispositions []domain.LotDisposition) []any {
	out := make([]any, 0, len(dispositions))
	for _, d := range dispositions {
		item := map[string]any{
			"lot_id":           d.LotID.String(),
			"quantity_sold":    d.QuantitySold.String(),
			"cost_basis":       d.CostBasis.Amount().String(),
			"proceeds":         d.Proceeds.Amount().String(),
			"realized_gain":    d.RealizedGain().Amount().String(),
			"currency":         string(d.CostBasis.Currency()),
			"acquisition_date": formatDate(d.AcquisitionDate),
			"disposition_date": formatDate(d.DispositionDate),
			"holding_days":     d.HoldingPeriodDays(),
			"long_term":        d.IsLongTerm(),
		}
		if d.WashSaleAdjustment.Currency() != "" {
			item["wash_sale_adjustment"] = d.WashSaleAdjustment.Amount().String()
		}
		out = append(out, item)
	}
	return out
}

func totalsFields(t domain.DispositionTotals) map[string]any {
	return map[string]any{
		"quantity":        t.Quantity.String(),
		"cost_basis":      t.CostBasis.Amount().String(),
		"proceeds":        t.Proceeds.Amount().String(),
		"realized_gain":   t.RealizedGain.Amount().String(),
		"short_term_gain": t.ShortTermGain.Amount().String(),
		"long_term_gain":  t.LongTermGain.Amount().String(),
		"currency":        string(t.CostBasis.Currency()),
	}
}

func lotFields(lot *domain.TaxLot) map[string]any {
	fields := map[string]any{
		"id":                   lot.ID.String(),
		"position_id":          lot.PositionID.String(),
		"acquisition_date":     formatDate(lot.AcquisitionDate),
		"acquisition_type":     string(lot.AcquisitionType),
		"cost_per_share":       lot.CostPerShare.Amount().String(),
		"adjusted_cost":        lot.AdjustedCostPerShare().Amount().String(),
		"currency":             string(lot.Currency()),
		"original_quantity":    lot.OriginalQuantity.String(),
		"remaining_quantity":   lot.RemainingQuantity.String(),
		"wash_sale_disallowed": lot.WashSaleDisallowed,
		"wash_sale_replaced":   lot.WashSaleReplaced.String(),
	}
	if lot.DispositionDate != nil {
		fields["disposition_date"] = formatDate(*lot.DispositionDate)
	}
	return fields
}

func washSaleFields(result *washsale.Result) map[string]any {
	if result == nil {
		return nil
	}
	adjustments := make([]any, 0, len(result.Adjustments))
	for _, adj := range result.Adjustments {
		adjustments = append(adjustments, map[string]any{
			"lot_id":      adj.LotID.String(),
			"position_id": adj.PositionID.String(),
			"absorbed":    adj.Absorbed.String(),
			"disallowed":  adj.Disallowed.Amount().String(),
		})
	}
	return map[string]any{
		"disallowed":      moneyFields(result.Disallowed),
		"adjustments":     adjustments,
		"unreplaced":      result.Unreplaced.String(),
		"unreplaced_loss": moneyFields(result.UnreplacedLoss),
	}
}

func corporateActionFields(result *corpaction.Result) map[string]any {
	fields := map[string]any{
		"action_id":       result.ActionID,
		"lots_affected":   result.LotsAffected,
		"lots_created":    result.LotsCreated,
		"already_applied": result.AlreadyApplied,
	}
	if result.CashInLieu.Currency() != "" {
		fields["cash_in_lieu"] = moneyFields(result.CashInLieu)
	}
	return fields
}

func holdingsFields(holdings []qsbs.Holding) []any {
	out := make([]any, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, map[string]any{
			"lot_id":               h.LotID.String(),
			"position_id":          h.PositionID.String(),
			"account_id":           h.AccountID.String(),
			"security_id":          h.SecurityID.String(),
			"symbol":               h.Symbol,
			"issuer":               h.Issuer,
			"acquisition_date":     formatDate(h.AcquisitionDate),
			"qualification_date":   formatDate(h.QualificationDate),
			"quantity":             h.Quantity.String(),
			"cost_basis":           h.CostBasis.Amount().String(),
			"holding_period_days":  h.HoldingPeriodDays,
			"days_until_qualified": h.DaysUntilQualified,
			"is_qualified":         h.IsQualified,
			"potential_exclusion":  h.PotentialExclusion.Amount().String(),
		})
	}
	return out
}

// summaryFields encodes a QSBS summary
func summaryFields(summary *qsbs.Summary) map[string]any {
	issuers := make([]any, 0, len(summary.Issuers))
	for _, is := range summary.Issuers {
		issuers = append(issuers, map[string]any{
			"issuer":              is.Issuer,
			"holdings":            is.Holdings,
			"qualified_basis":     is.QualifiedBasis.Amount().String(),
			"pending_basis":       is.PendingBasis.Amount().String(),
			"potential_exclusion": is.PotentialExclusion.Amount().String(),
		})
	}
	return map[string]any{
		"as_of":                     formatDate(summary.AsOf),
		"currency":                  string(summary.Currency),
		"qualified":                 holdingsFields(summary.Qualified),
		"pending":                   holdingsFields(summary.Pending),
		"total_qualified_basis":     summary.TotalQualifiedBasis.Amount().String(),
		"total_pending_basis":       summary.TotalPendingBasis.Amount().String(),
		"total_potential_exclusion": summary.TotalPotentialExclusion.Amount().String(),
		"issuers":                   issuers,
	}
}
