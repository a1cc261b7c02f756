package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// positionRepository implements domain.PositionRepository
type positionRepository struct {
	db *DB
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *DB) domain.PositionRepository {
	return &positionRepository{db: db}
}

// Create creates a new position
func (r *positionRepository) Create(ctx context.Context, position *domain.Position) error {
	_, err := r.db.exec(ctx, `INSERT INTO positions (id, account_id, security_id) VALUES (?, ?, ?)`,
		position.ID.String(),
		position.AccountID.String(),
		position.SecurityID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID
func (r *positionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	position, err := scanPosition(r.db.queryRow(ctx, `SELECT id, account_id, security_id FROM positions WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get position by ID: %w", err)
	}
	return position, nil
}

// GetByAccountAndSecurity retrieves the position of a security in an account
func (r *positionRepository) GetByAccountAndSecurity(ctx context.Context, accountID, securityID uuid.UUID) (*domain.Position, error) {
	row := r.db.queryRow(ctx, `SELECT id, account_id, security_id FROM positions WHERE account_id = ? AND security_id = ?`,
		accountID.String(), securityID.String())
	position, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s security %s", domain.ErrPositionNotFound, accountID, securityID)
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return position, nil
}

// ListBySecurity retrieves every position in a security ordered by id
func (r *positionRepository) ListBySecurity(ctx context.Context, securityID uuid.UUID) ([]*domain.Position, error) {
	rows, err := r.db.query(ctx, `SELECT id, account_id, security_id FROM positions WHERE security_id = ? ORDER BY id`, securityID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var id, accountID, securityID string
	if err := row.Scan(&id, &accountID, &securityID); err != nil {
		return nil, err
	}
	var position domain.Position
	var err error
	if position.ID, err = parseUUID("id", id); err != nil {
		return nil, err
	}
	if position.AccountID, err = parseUUID("account_id", accountID); err != nil {
		return nil, err
	}
	if position.SecurityID, err = parseUUID("security_id", securityID); err != nil {
		return nil, err
	}
	return &position, nil
}
