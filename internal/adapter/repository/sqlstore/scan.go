package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/shopspring/decimal"
)

func formatDate(t time.Time) string {
	return domain.DateOf(t).Format(domain.DateFormat)
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatDate(*t)
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseUUID(column, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return id, nil
}

func parseNullUUID(column string, value sql.NullString) (*uuid.UUID, error) {
	if !value.Valid {
		return nil, nil
	}
	id, err := parseUUID(column, value.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseDate(column, value string) (time.Time, error) {
	t, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t, nil
}

func parseNullDate(column string, value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseDate(column, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTimestamp(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseDecimal(column, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return d, nil
}

func parseMoney(column, amount string, cur domain.Currency) (domain.Money, error) {
	d, err := parseDecimal(column, amount)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.MoneyIn(d, cur), nil
}

func parseQuantity(column, value string) (domain.Quantity, error) {
	d, err := parseDecimal(column, value)
	if err != nil {
		return domain.Quantity{}, err
	}
	return domain.NewQuantity(d), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}
