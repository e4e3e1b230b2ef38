package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sejinoh/pickupz-backend/pkg/migrate"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestValidateDirRequiresCoreTables(t *testing.T) {
	dir := t.TempDir()
	content := `-- +goose Up
-- +goose StatementBegin
CREATE TABLE IF NOT EXISTS users (id UUID PRIMARY KEY);
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
DROP TABLE IF EXISTS users;
-- +goose StatementEnd
`
	path := filepath.Join(dir, "20250801090000_create_users.sql")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}

	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatalf("dir missing core tables should fail validation")
	}
	if !strings.Contains(err.Error(), "core table") {
		t.Fatalf("error should name the missing core table, got %v", err)
	}

	// An empty dir stays valid; the check only binds once migrations exist.
	if err := migrate.ValidateDir(t.TempDir()); err != nil {
		t.Fatalf("empty dir should validate: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matches %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestReservationsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_reservations.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS reservations",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"FOREIGN KEY (delivery_order_id) REFERENCES delivery_orders(id) ON DELETE SET NULL",
		"CHECK (quantity >= 1)",
		"idx_reservations_display_code",
		"DROP TABLE IF EXISTS reservations",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_point_transactions.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS point_transactions",
		"CHECK (amount <> 0)",
		"CHECK (balance_after >= 0)",
		"idx_point_transactions_reference",
		"DROP TABLE IF EXISTS point_transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrderMigrationsGuardPointUsage(t *testing.T) {
	for _, pattern := range []string{"*_create_delivery_orders.sql", "*_create_courier_orders.sql"} {
		content := readMigration(t, pattern)
		if !strings.Contains(content, "CHECK (point_used <= total_amount)") {
			t.Errorf("%s missing point usage guard", pattern)
		}
	}
}
