package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one schema step.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded steps for a direction ("up" or "down").
// Up steps are ordered ascending, down steps descending.
func Migrations(direction string) ([]Migration, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("unknown migration direction %q", direction)
	}
	suffix := "." + direction + ".sql"

	names, err := fs.Glob(migrationFS, "migrations/*"+suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, Migration{
			Name: strings.TrimPrefix(name, "migrations/"),
			SQL:  string(data),
		})
	}
	return out, nil
}

// Migrate applies every step of the given direction.
func (db *DB) Migrate(ctx context.Context, direction string) error {
	steps, err := Migrations(direction)
	if err != nil {
		return err
	}
	for _, m := range steps {
		if _, err := db.Pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("exec %s: %w", m.Name, err)
		}
		slog.Info("migration applied", "file", m.Name)
	}
	return nil
}
