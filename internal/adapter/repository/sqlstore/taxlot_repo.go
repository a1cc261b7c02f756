package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// taxLotRepository implements domain.TaxLotRepository
type taxLotRepository struct {
	db *DB
}

// NewTaxLotRepository creates a new tax lot repository
func NewTaxLotRepository(db *DB) domain.TaxLotRepository {
	return &taxLotRepository{db: db}
}

const taxLotColumns = `id, position_id, acquisition_date, cost_per_share, currency, original_quantity,
	remaining_quantity, acquisition_type, disposition_date, is_covered, wash_sale_disallowed, wash_sale_adjustment,
	wash_sale_replaced`

// Add stores a new lot
func (r *taxLotRepository) Add(ctx context.Context, lot *domain.TaxLot) error {
	if err := lot.Validate(); err != nil {
		return err
	}
	_, err := r.db.exec(ctx, `
		INSERT INTO tax_lots (`+taxLotColumns+`, is_open)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		lot.ID.String(),
		lot.PositionID.String(),
		formatDate(lot.AcquisitionDate),
		lot.CostPerShare.Amount().String(),
		string(lot.Currency()),
		lot.OriginalQuantity.String(),
		lot.RemainingQuantity.String(),
		string(lot.AcquisitionType),
		nullDate(lot.DispositionDate),
		lot.IsCovered,
		lot.WashSaleDisallowed,
		washAdjustment(lot),
		lot.WashSaleReplaced.String(),
		lot.IsOpen(),
	)
	if err != nil {
		return fmt.Errorf("failed to add tax lot: %w", err)
	}
	return nil
}

// Update overwrites the lot's quantities, cost and wash-sale state
func (r *taxLotRepository) Update(ctx context.Context, lot *domain.TaxLot) error {
	if err := lot.Validate(); err != nil {
		return err
	}
	result, err := r.db.exec(ctx, `
		UPDATE tax_lots
		SET cost_per_share = ?, original_quantity = ?, remaining_quantity = ?, is_open = ?,
			disposition_date = ?, is_covered = ?, wash_sale_disallowed = ?, wash_sale_adjustment = ?,
			wash_sale_replaced = ?
		WHERE id = ?
	`,
		lot.CostPerShare.Amount().String(),
		lot.OriginalQuantity.String(),
		lot.RemainingQuantity.String(),
		lot.IsOpen(),
		nullDate(lot.DispositionDate),
		lot.IsCovered,
		lot.WashSaleDisallowed,
		washAdjustment(lot),
		lot.WashSaleReplaced.String(),
		lot.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update tax lot: %w", err)
	}
	return expectOneRow(result, domain.ErrTaxLotNotFound, lot.ID)
}

// GetByID retrieves a lot by its ID
func (r *taxLotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TaxLot, error) {
	lot, err := scanTaxLot(r.db.queryRow(ctx, `SELECT `+taxLotColumns+` FROM tax_lots WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaxLotNotFound, id)
		}
		return nil, fmt.Errorf("failed to get tax lot by ID: %w", err)
	}
	return lot, nil
}

// ListOpenByPosition retrieves the open lots of a position
func (r *taxLotRepository) ListOpenByPosition(ctx context.Context, positionID uuid.UUID) ([]*domain.TaxLot, error) {
	return r.list(ctx, `position_id = ? AND is_open = ?`, positionID.String(), true)
}

// ListByPosition retrieves every lot of a position
func (r *taxLotRepository) ListByPosition(ctx context.Context, positionID uuid.UUID) ([]*domain.TaxLot, error) {
	return r.list(ctx, `position_id = ?`, positionID.String())
}

// ListWashSaleCandidates retrieves the lots acquired inside the window around saleDate
func (r *taxLotRepository) ListWashSaleCandidates(ctx context.Context, positionID uuid.UUID, saleDate time.Time) ([]*domain.TaxLot, error) {
	start, end := domain.WashSaleWindow(saleDate)
	return r.list(ctx, `position_id = ? AND acquisition_date >= ? AND acquisition_date <= ?`,
		positionID.String(), formatDate(start), formatDate(end))
}

func (r *taxLotRepository) list(ctx context.Context, where string, args ...any) ([]*domain.TaxLot, error) {
	rows, err := r.db.query(ctx, `SELECT `+taxLotColumns+` FROM tax_lots WHERE `+where+` ORDER BY acquisition_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tax lots: %w", err)
	}
	defer rows.Close()

	lots := make([]*domain.TaxLot, 0)
	for rows.Next() {
		lot, err := scanTaxLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tax lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax lots: %w", err)
	}
	return lots, nil
}

func washAdjustment(lot *domain.TaxLot) string {
	if lot.WashSaleAdjustment.Currency() == "" {
		return "0"
	}
	return lot.WashSaleAdjustment.Amount().String()
}

func scanTaxLot(row rowScanner) (*domain.TaxLot, error) {
	var lot domain.TaxLot
	var id, positionID, acquired, cps, cur string
	var original, remaining, acquisitionType, adjustment, replaced string
	var disposed sql.NullString
	err := row.Scan(&id, &positionID, &acquired, &cps, &cur, &original, &remaining,
		&acquisitionType, &disposed, &lot.IsCovered, &lot.WashSaleDisallowed, &adjustment, &replaced)
	if err != nil {
		return nil, err
	}

	currency := domain.Currency(cur)
	if lot.ID, err = parseUUID("id", id); err != nil {
		return nil, err
	}
	if lot.PositionID, err = parseUUID("position_id", positionID); err != nil {
		return nil, err
	}
	if lot.AcquisitionDate, err = parseDate("acquisition_date", acquired); err != nil {
		return nil, err
	}
	if lot.CostPerShare, err = parseMoney("cost_per_share", cps, currency); err != nil {
		return nil, err
	}
	if lot.OriginalQuantity, err = parseQuantity("original_quantity", original); err != nil {
		return nil, err
	}
	if lot.RemainingQuantity, err = parseQuantity("remaining_quantity", remaining); err != nil {
		return nil, err
	}
	if lot.DispositionDate, err = parseNullDate("disposition_date", disposed); err != nil {
		return nil, err
	}
	if lot.WashSaleAdjustment, err = parseMoney("wash_sale_adjustment", adjustment, currency); err != nil {
		return nil, err
	}
	if lot.WashSaleReplaced, err = parseQuantity("wash_sale_replaced", replaced); err != nil {
		return nil, err
	}
	lot.AcquisitionType = domain.AcquisitionType(acquisitionType)
	return &lot, nil
}
