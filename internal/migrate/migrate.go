// Package migrate runs the embedded schema migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"

	"github.com/inferchain/inferchain/migrations"
)

// Source opens the embedded NNNNNN_name.{up,down}.sql files.
func Source() (source.Driver, error) {
	return iofs.New(migrations.FS, ".")
}

// Runner applies the embedded migrations to one database.
type Runner struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New opens a Runner for databaseURL. Versions are tracked in schema_migrations.
func New(databaseURL string, logger *slog.Logger) (*Runner, error) {
	src, err := Source()
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	m.Log = logAdapter{logger: logger}
	return &Runner{m: m, logger: logger}, nil
}

// Up applies every pending migration. It reports whether anything changed.
func (r *Runner) Up() (bool, error) {
	err := r.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("migrate up: %w", err)
	}
	return true, nil
}

// Down reverts the newest steps migrations. Asking for more steps than are
// applied reverts everything that is.
func (r *Runner) Down(steps int) (bool, error) {
	if steps <= 0 {
		return false, fmt.Errorf("steps must be positive, got %d", steps)
	}

	err := r.m.Steps(-steps)
	var short migrate.ErrShortLimit
	switch {
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, migrate.ErrNilVersion):
		return false, nil
	case errors.As(err, &short) && short.Short >= uint(steps):
		return false, nil
	case errors.As(err, &short):
		r.logger.Warn("fewer migrations to revert than requested", "requested", steps, "short", short.Short)
		return true, nil
	case err != nil:
		return false, fmt.Errorf("migrate down: %w", err)
	}
	return true, nil
}

// Version returns the applied version. Zero means none.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and the database connection.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return multierr.Combine(srcErr, dbErr)
}

// logAdapter routes golang-migrate output to slog.
type logAdapter struct {
	logger *slog.Logger
}

func (l logAdapter) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l logAdapter) Verbose() bool { return false }
