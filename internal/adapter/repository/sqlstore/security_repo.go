package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// securityRepository implements domain.SecurityRepository
type securityRepository struct {
	db *DB
}

// NewSecurityRepository creates a new security repository
func NewSecurityRepository(db *DB) domain.SecurityRepository {
	return &securityRepository{db: db}
}

const securityColumns = `id, symbol, name, issuer, asset_class, is_qsbs_eligible, is_active`

// Create creates a new security; symbols are unique regardless of case
func (r *securityRepository) Create(ctx context.Context, security *domain.Security) error {
	if err := security.Validate(); err != nil {
		return err
	}
	if existing, err := r.GetBySymbol(ctx, security.Symbol); err == nil {
		return fmt.Errorf("%w: symbol %s already exists", domain.ErrInvalidSecurity, existing.Symbol)
	} else if !domain.IsNotFound(err) {
		return err
	}

	_, err := r.db.exec(ctx, `INSERT INTO securities (`+securityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		security.ID.String(),
		security.Symbol,
		security.Name,
		security.Issuer,
		string(security.AssetClass),
		security.IsQSBSEligible,
		security.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create security: %w", err)
	}
	return nil
}

// GetByID retrieves a security by its ID
func (r *securityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	security, err := scanSecurity(r.db.queryRow(ctx, `SELECT `+securityColumns+` FROM securities WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSecurityNotFound, id)
		}
		return nil, fmt.Errorf("failed to get security by ID: %w", err)
	}
	return security, nil
}

// GetBySymbol retrieves a security by symbol, case-insensitively
func (r *securityRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Security, error) {
	security, err := scanSecurity(r.db.queryRow(ctx, `SELECT `+securityColumns+` FROM securities WHERE UPPER(symbol) = UPPER(?)`, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: symbol %s", domain.ErrSecurityNotFound, symbol)
		}
		return nil, fmt.Errorf("failed to get security by symbol: %w", err)
	}
	return security, nil
}

// Update overwrites the mutable fields of a security
func (r *securityRepository) Update(ctx context.Context, security *domain.Security) error {
	if err := security.Validate(); err != nil {
		return err
	}
	result, err := r.db.exec(ctx, `
		UPDATE securities
		SET symbol = ?, name = ?, issuer = ?, asset_class = ?, is_qsbs_eligible = ?, is_active = ?
		WHERE id = ?
	`,
		security.Symbol,
		security.Name,
		security.Issuer,
		string(security.AssetClass),
		security.IsQSBSEligible,
		security.IsActive,
		security.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update security: %w", err)
	}
	return expectOneRow(result, domain.ErrSecurityNotFound, security.ID)
}

// ListQSBSEligible retrieves the QSBS-eligible securities ordered by symbol
func (r *securityRepository) ListQSBSEligible(ctx context.Context) ([]*domain.Security, error) {
	rows, err := r.db.query(ctx, `SELECT `+securityColumns+` FROM securities WHERE is_qsbs_eligible = ? ORDER BY symbol`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible securities: %w", err)
	}
	defer rows.Close()

	securities := make([]*domain.Security, 0)
	for rows.Next() {
		security, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, security)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}
	return securities, nil
}

func scanSecurity(row rowScanner) (*domain.Security, error) {
	var security domain.Security
	var id, assetClass string
	if err := row.Scan(&id, &security.Symbol, &security.Name, &security.Issuer, &assetClass, &security.IsQSBSEligible, &security.IsActive); err != nil {
		return nil, err
	}
	var err error
	if security.ID, err = parseUUID("id", id); err != nil {
		return nil, err
	}
	security.AssetClass = domain.AssetClass(assetClass)
	return &security, nil
}

// expectOneRow turns an update that matched nothing into notFound
func expectOneRow(result sql.Result, notFound error, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", notFound, id)
	}
	return nil
}
