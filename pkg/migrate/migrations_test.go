package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestOrdersMigrationCarriesIdempotencyConstraints(t *testing.T) {
	content := readMigration(t, "create_orders")

	checks := []string{
		"CONSTRAINT uq_orders_transaction_id UNIQUE (transaction_id)",
		"CONSTRAINT uq_payments_transaction_id UNIQUE (transaction_id)",
		"CONSTRAINT uq_orders_order_number UNIQUE (order_number)",
		"stock_adjusted_at timestamptz",
		"CHECK (quantity > 0)",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCatalogMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_catalog")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_variants",
		"CHECK (stock >= 0)",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS products",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestNotificationsMigrationHasDedupKey(t *testing.T) {
	content := readMigration(t, "create_notifications")
	if !strings.Contains(content, "CONSTRAINT uq_notifications_dedup UNIQUE (target_type, target_id, type)") {
		t.Fatalf("notifications migration must carry the dedup constraint")
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations failed validation: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Columns")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_refund_columns.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	if err := migrate.ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations failed validation: %v", err)
	}
}
