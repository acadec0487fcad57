package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/taxcredit-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded(), "migrations"); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20260301090000_ok.sql":         "-- +goose Up\n-- +goose Down\n",
		"20260301090000_dup.sql":        "-- +goose Up\n-- +goose Down\n",
		"bad-name.sql":                  "-- +goose Up\n-- +goose Down\n",
		"20260301090100_unbalanced.sql": "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n",
		"README.md":                     "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"already used", "bad-name.sql", "StatementBegin vs"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := fs.Glob(migrate.Embedded(), "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded=%d on disk=%d", len(embedded), len(onDisk))
	}
}

func TestCreditLotMigrationGuardsAvailability(t *testing.T) {
	content := readMigration(t, "*_create_credit_lots.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS credit_lots",
		"CHECK (available_usd >= 0 AND available_usd <= face_value_usd)",
		"price_per_dollar <= 1",
		"DROP TABLE IF EXISTS credit_lots",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrderMigrationConstrainsStates(t *testing.T) {
	content := readMigration(t, "*_create_holds_and_orders.sql")

	checks := []string{
		"'PENDING_PAYMENT', 'PROCESSING', 'PAID', 'PAID_TEST', 'CANCELED', 'FAILED', 'REFUNDED'",
		"'ACTIVE', 'EXPIRED', 'CONSUMED', 'CANCELLED'",
		"ux_purchase_orders_hold",
		"ux_payment_transfers_tx_hash UNIQUE (tx_hash)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Lot Notes")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_lot_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration failed validation: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
