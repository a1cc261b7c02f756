//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcadapter "github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/grpc"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/sqlstore"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

var (
	db           *sqlstore.DB
	grpcClient   *grpcadapter.LedgerServiceClient
	grpcConn     *grpc.ClientConn
	testAccounts map[string]uuid.UUID // Maps account name to ID
	securityID   uuid.UUID
)

// TestMain connects to the database the server runs against and to the server itself
func TestMain(m *testing.M) {
	ctx := context.Background()

	// 1. Connect to Database
	driver := getEnv("LEDGER_DB_DRIVER", sqlstore.DriverPostgres)
	dsn := getEnv("LEDGER_DB_DSN", "host=localhost port=5432 user=postgres password=postgres dbname=ledger sslmode=disable")
	if err := sqlstore.MigrateUp(driver, dsn); err != nil {
		panic(fmt.Sprintf("Failed to migrate database: %v", err))
	}
	var err error
	db, err = sqlstore.Open(ctx, driver, dsn, 2)
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}

	// 2. Connect to gRPC Server
	grpcConn, err = grpc.NewClient(getEnv("GRPC_ADDRESS", "localhost:50051"),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to gRPC server: %v", err))
	}
	grpcClient = grpcadapter.NewLedgerServiceClient(grpcConn)

	// 3. Seed fresh accounts and a security for this run
	if err := seed(ctx); err != nil {
		panic(fmt.Sprintf("Failed to seed test data: %v", err))
	}

	code := m.Run()

	grpcConn.Close()
	db.Close()
	os.Exit(code)
}

func seed(ctx context.Context) error {
	repos := sqlstore.NewRepositories(db)
	entityID := uuid.New()

	testAccounts = make(map[string]uuid.UUID)
	for name, accountType := range map[string]domain.AccountType{
		"Brokerage":      domain.AccountTypeAsset,
		"Operating Cash": domain.AccountTypeAsset,
		"Realized Gains": domain.AccountTypeIncome,
	} {
		account := &domain.Account{
			ID:       uuid.New(),
			EntityID: entityID,
			Name:     name,
			Type:     accountType,
			Currency: domain.USD,
			IsActive: true,
		}
		if err := repos.Accounts.Create(ctx, account); err != nil {
			return err
		}
		testAccounts[name] = account.ID
	}

	security := &domain.Security{
		ID:         uuid.New(),
		Symbol:     "E2E" + strings.ToUpper(uuid.NewString()[:6]),
		Name:       "End To End Corp",
		AssetClass: domain.AssetClassEquity,
		IsActive:   true,
	}
	if err := repos.Securities.Create(ctx, security); err != nil {
		return err
	}
	securityID = security.ID
	return nil
}

// getAuthContext returns a context with the API token from environment or the default
func getAuthContext() context.Context {
	md := metadata.New(map[string]string{
		"authorization": getEnv("LEDGER_API_TOKEN", "secret-token"),
	})
	return metadata.NewOutgoingContext(context.Background(), md)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func field(s *structpb.Struct, path ...string) *structpb.Value {
	v := structpb.NewStructValue(s)
	for _, key := range path {
		v = v.GetStructValue().GetFields()[key]
	}
	return v
}

func decimalField(t *testing.T, s *structpb.Struct, path ...string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(field(s, path...).GetStringValue())
	require.NoError(t, err, "field %v", path)
	return d
}

func balance(t *testing.T, ctx context.Context, account string, asOf string) decimal.Decimal {
	t.Helper()
	fields := map[string]any{"account_id": testAccounts[account].String()}
	if asOf != "" {
		fields["as_of"] = asOf
	}
	resp, err := grpcClient.Call(ctx, "GetAccountBalance", fields)
	require.NoError(t, err, "GetAccountBalance should succeed")
	return decimalField(t, resp, "amount")
}

// TestEndToEndFlow tests the complete flow: Purchase -> Sale -> Reversal
func TestEndToEndFlow(t *testing.T) {
	ctx := getAuthContext()
	brokerage := testAccounts["Brokerage"].String()
	cash := testAccounts["Operating Cash"].String()
	gains := testAccounts["Realized Gains"].String()

	// Step A: Two purchases at different prices
	for _, buy := range []struct{ date, qty, price string }{
		{"2023-02-01", "100", "20"},
		{"2024-03-01", "50", "30"},
	} {
		resp, err := grpcClient.Call(ctx, "RecordPurchase", map[string]any{
			"investment_account_id": brokerage,
			"cash_account_id":       cash,
			"security_id":           securityID.String(),
			"quantity":              buy.qty,
			"cost_per_share":        buy.price,
			"trade_date":            buy.date,
		})
		require.NoError(t, err, "RecordPurchase should succeed")
		assert.NotEmpty(t, field(resp, "transaction", "id").GetStringValue(), "Transaction ID should be returned")
	}
	assert.True(t, balance(t, ctx, "Operating Cash", "").Equal(decimal.NewFromInt(-3500)))
	assert.True(t, balance(t, ctx, "Brokerage", "").Equal(decimal.NewFromInt(3500)))

	// Step B: HIFO sale takes the 30 lot first, then 10 shares of the 20 lot
	sale, err := grpcClient.Call(ctx, "RecordSale", map[string]any{
		"investment_account_id": brokerage,
		"cash_account_id":       cash,
		"gain_account_id":       gains,
		"security_id":           securityID.String(),
		"quantity":              "60",
		"proceeds":              "2100",
		"method":                "HIFO",
		"trade_date":            "2024-06-03",
	})
	require.NoError(t, err, "RecordSale should succeed")
	assert.Len(t, field(sale, "dispositions").GetListValue().GetValues(), 2)
	assert.True(t, decimalField(t, sale, "totals", "cost_basis").Equal(decimal.NewFromInt(1700)))
	assert.True(t, decimalField(t, sale, "realized_gain", "amount").Equal(decimal.NewFromInt(400)))

	// Step C: Verify the lots in storage
	var openLots int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tax_lots l
		JOIN positions p ON p.id = l.position_id
		WHERE p.security_id = $1 AND l.is_open`, securityID.String()).Scan(&openLots)
	require.NoError(t, err, "Should be able to count open lots")
	assert.Equal(t, 1, openLots, "only the partially sold 2023 lot stays open")

	assert.True(t, balance(t, ctx, "Operating Cash", "").Equal(decimal.NewFromInt(-1400)))
	assert.True(t, balance(t, ctx, "Brokerage", "").Equal(decimal.NewFromInt(1800)))
	assert.True(t, balance(t, ctx, "Realized Gains", "").Equal(decimal.NewFromInt(-400)))
	assert.True(t, balance(t, ctx, "Operating Cash", "2024-01-01").Equal(decimal.NewFromInt(-2000)))

	// Step D: Reverse the sale posting
	saleTxID := field(sale, "transaction", "id").GetStringValue()
	_, err = grpcClient.Call(ctx, "ReverseTransaction", map[string]any{
		"transaction_id": saleTxID,
		"date":           "2024-06-04",
	})
	require.NoError(t, err, "ReverseTransaction should succeed")
	assert.True(t, balance(t, ctx, "Realized Gains", "").IsZero())

	_, err = grpcClient.Call(ctx, "ReverseTransaction", map[string]any{"transaction_id": saleTxID})
	assert.Equal(t, codes.InvalidArgument, status.Code(err), "a reversed transaction cannot be reversed again")
}

func TestNegativeScenarios(t *testing.T) {
	ctx := getAuthContext()

	t.Run("MissingToken", func(t *testing.T) {
		_, err := grpcClient.Call(context.Background(), "GetQSBSSummary", map[string]any{})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("UnbalancedTransaction", func(t *testing.T) {
		_, err := grpcClient.Call(ctx, "PostTransaction", map[string]any{
			"transaction_date": "2024-01-01",
			"entries": []any{
				map[string]any{"account_id": testAccounts["Operating Cash"].String(), "debit": "100"},
				map[string]any{"account_id": testAccounts["Brokerage"].String(), "credit": "99.99"},
			},
		})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("NonExistentAccount", func(t *testing.T) {
		_, err := grpcClient.Call(ctx, "GetAccountBalance", map[string]any{"account_id": uuid.NewString()})
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("MalformedUUID", func(t *testing.T) {
		_, err := grpcClient.Call(ctx, "ReverseTransaction", map[string]any{"transaction_id": "not-a-uuid"})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("OversizedSale", func(t *testing.T) {
		_, err := grpcClient.Call(ctx, "RecordSale", map[string]any{
			"investment_account_id": testAccounts["Brokerage"].String(),
			"cash_account_id":       testAccounts["Operating Cash"].String(),
			"gain_account_id":       testAccounts["Realized Gains"].String(),
			"security_id":           securityID.String(),
			"quantity":              "100000",
			"proceeds":              "1",
		})
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})
}
