package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// corporateActionRepository implements domain.CorporateActionRepository
type corporateActionRepository struct {
	db *DB
}

// NewCorporateActionRepository creates a new corporate action repository
func NewCorporateActionRepository(db *DB) domain.CorporateActionRepository {
	return &corporateActionRepository{db: db}
}

const corporateActionColumns = `security_id, action_id, action_type, effective_date, description,
	lots_affected, lots_created, cash_in_lieu, cash_in_lieu_currency, applied_at`

// Add records an applied action; (security_id, action_id) is the primary key
func (r *corporateActionRepository) Add(ctx context.Context, action *domain.CorporateAction) error {
	if err := action.Validate(); err != nil {
		return err
	}
	cash := "0"
	if action.CashInLieu.Currency() != "" {
		cash = action.CashInLieu.Amount().String()
	}
	_, err := r.db.exec(ctx, `INSERT INTO corporate_actions (`+corporateActionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.SecurityID.String(),
		action.ID,
		string(action.Type),
		formatDate(action.EffectiveDate),
		action.Description,
		action.LotsAffected,
		action.LotsCreated,
		cash,
		string(action.CashInLieu.Currency()),
		formatTimestamp(action.AppliedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add corporate action: %w", err)
	}
	return nil
}

// Get retrieves the action recorded under (securityID, actionID)
func (r *corporateActionRepository) Get(ctx context.Context, securityID uuid.UUID, actionID string) (*domain.CorporateAction, error) {
	row := r.db.queryRow(ctx, `SELECT `+corporateActionColumns+` FROM corporate_actions WHERE security_id = ? AND action_id = ?`,
		securityID.String(), actionID)
	action, err := scanCorporateAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrCorporateActionNotFound, securityID, actionID)
		}
		return nil, fmt.Errorf("failed to get corporate action: %w", err)
	}
	return action, nil
}

// ListBySecurity retrieves the actions of a security in effective-date order
func (r *corporateActionRepository) ListBySecurity(ctx context.Context, securityID uuid.UUID) ([]*domain.CorporateAction, error) {
	rows, err := r.db.query(ctx, `SELECT `+corporateActionColumns+` FROM corporate_actions WHERE security_id = ? ORDER BY effective_date, action_id`,
		securityID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list corporate actions: %w", err)
	}
	defer rows.Close()

	actions := make([]*domain.CorporateAction, 0)
	for rows.Next() {
		action, err := scanCorporateAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan corporate action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corporate actions: %w", err)
	}
	return actions, nil
}

func scanCorporateAction(row rowScanner) (*domain.CorporateAction, error) {
	var action domain.CorporateAction
	var securityID, actionType, effective, applied, cash, cur string
	err := row.Scan(&securityID, &action.ID, &actionType, &effective, &action.Description,
		&action.LotsAffected, &action.LotsCreated, &cash, &cur, &applied)
	if err != nil {
		return nil, err
	}
	if action.SecurityID, err = parseUUID("security_id", securityID); err != nil {
		return nil, err
	}
	if action.EffectiveDate, err = parseDate("effective_date", effective); err != nil {
		return nil, err
	}
	if action.AppliedAt, err = parseTimestamp("applied_at", applied); err != nil {
		return nil, err
	}
	if cur != "" {
		if action.CashInLieu, err = parseMoney("cash_in_lieu", cash, domain.Currency(cur)); err != nil {
			return nil, err
		}
	}
	action.Type = domain.CorporateActionType(actionType)
	return &action, nil
}
