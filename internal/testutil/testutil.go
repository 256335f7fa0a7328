// Package testutil holds helpers shared by unit and integration tests.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// MigrationFiles returns the migration files with the given suffix
// ("up.sql" or "down.sql"), in apply order.
func MigrationFiles(suffix string) ([]string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "."+suffix) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if suffix == "down.sql" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	return files, nil
}

// ResetSchema drops every table through the down migrations and recreates them.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, suffix := range []string{"down.sql", "up.sql"} {
		files, err := MigrationFiles(suffix)
		if err != nil {
			return err
		}
		for _, path := range files {
			sql, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", filepath.Base(path), err)
			}
			if _, err := pool.Exec(ctx, string(sql)); err != nil {
				return fmt.Errorf("apply %s: %w", filepath.Base(path), err)
			}
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// UniqueWallet returns a random lowercased address.
func UniqueWallet() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}

// NewTestUser creates a wallet user with the given roles.
func NewTestUser(t testing.TB, roles ...string) *model.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{model.RoleCustomer}
	}
	wallet := UniqueWallet()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.User{
		ID:        ulid.Make().String(),
		Wallet:    &wallet,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestModel creates an active model owned by wallet. chainID may be empty.
func NewTestModel(t testing.TB, owner, chainID string) *model.Model {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	m := &model.Model{
		ID:             ulid.Make().String(),
		OwnerWallet:    owner,
		Name:           "Test Model",
		Description:    "test",
		ContentPointer: "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		PricePerMinute: "1000000000000000",
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if chainID != "" {
		m.ChainModelID = &chainID
	}
	return m
}

// NewTestRental creates an active rental expiring after ttl.
func NewTestRental(t testing.TB, modelID string, customer *model.User, ttl time.Duration) *model.Rental {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	digest := make([]byte, 32)
	_, _ = rand.Read(digest)
	return &model.Rental{
		ID:          ulid.Make().String(),
		ModelID:     modelID,
		CustomerID:  customer.ID,
		Customer:    customer.Identity(),
		TokenHash:   hex.EncodeToString(digest),
		TokenSealed: []byte("sealed"),
		TokenPrefix: "ik_test_" + hex.EncodeToString(digest[:4]),
		ExpiresAt:   now.Add(ttl),
		Active:      true,
		CreatedAt:   now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
