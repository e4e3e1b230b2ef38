package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

// coreTables is the schema the services cannot run without. A migration dir
// that stops creating one of these is a packaging mistake, not a schema choice.
var coreTables = []string{
	"users",
	"products",
	"point_transactions",
	"reservations",
	"delivery_orders",
	"courier_orders",
	"courier_order_items",
	"courier_claims",
}

// ValidateDir validates migration filenames, basic SQL headers, and that the
// directory still creates every core table.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename
	var all strings.Builder

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read file %q: %w", full, err)
		}

		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
		all.WriteString(txt)
	}

	if len(seen) == 0 {
		return nil
	}
	schema := all.String()
	for _, table := range coreTables {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			return fmt.Errorf("migration dir %q does not create core table %q", dir, table)
		}
	}
	return nil
}
