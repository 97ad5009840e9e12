package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tiny11/tiny11-backend/pkg/migrate"
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

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_oauth": {
			"CREATE TABLE IF NOT EXISTS oauth",
			"email       TEXT PRIMARY KEY",
			"CONSTRAINT oauth_license_key_key UNIQUE (license_key)",
			"DROP TABLE IF EXISTS oauth",
		},
		"create_premiumusers": {
			"CREATE TABLE IF NOT EXISTS premiumusers",
			"DROP TABLE IF EXISTS premiumusers",
		},
		"create_os_release": {
			"CONSTRAINT os_release_route_key UNIQUE (route)",
			"CHECK (price >= 0)",
			"DROP TABLE IF EXISTS os_release",
		},
		"create_standalone_purchases": {
			"CONSTRAINT standalone_purchases_email_route_key UNIQUE (email, route)",
			"DROP TABLE IF EXISTS standalone_purchases",
		},
		"create_paypal_transactions": {
			"id             TEXT PRIMARY KEY",
			"DROP TABLE IF EXISTS paypal_transactions",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations failed validation: %v", err)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Column!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_refund_column.sql") {
		t.Fatalf("unexpected migration path %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration failed validation: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write bad migration: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestEmbeddedMigrationsMatchSource(t *testing.T) {
	sub, err := fs.Sub(migrate.Embedded(), "migrations")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}
	if err := migrate.ValidateFS(sub); err != nil {
		t.Fatalf("embedded migrations failed validation: %v", err)
	}

	embedded, err := fs.ReadDir(sub, ".")
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	onDisk, err := os.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if len(embedded) != len(onDisk) {
		t.Fatalf("embedded has %d files, source has %d", len(embedded), len(onDisk))
	}
}
