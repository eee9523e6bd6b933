package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs-lzh/cave-sale/internal/model"
)

var (
	testDB *gorm.DB
	pgC    *postgres.PostgresContainer
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	if err := startPostgres(ctx); err != nil {
		// no container runtime, the repository tests skip themselves
		fmt.Printf("postgres container unavailable: %v\n", err)
		testDB = nil
	}

	code := m.Run()

	if pgC != nil {
		_ = pgC.Terminate(ctx)
	}
	os.Exit(code)
}

func startPostgres(ctx context.Context) (err error) {
	defer func() {
		// testcontainers panics when no docker host can be found
		if r := recover(); r != nil {
			err = fmt.Errorf("start container: %v", r)
		}
	}()

	pgC, err = postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = dumpContainerLogs(ctx, pgC)
		return fmt.Errorf("connection string: %w", err)
	}

	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		_ = dumpContainerLogs(ctx, pgC)
		return fmt.Errorf("gorm open: %w", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	testDB = db
	return nil
}

func dumpContainerLogs(ctx context.Context, c *postgres.PostgresContainer) error {
	r, err := c.Logs(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	b, _ := io.ReadAll(r)
	fmt.Printf("\n--- postgres container logs ---\n%s\n--- end logs ---\n", string(b))
	return nil
}

func requireDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container not available")
	}
	cleanDB(t)
	return testDB
}

func cleanDB(t *testing.T) {
	t.Helper()

	err := testDB.Exec(`
		TRUNCATE TABLE
			notifications,
			order_lines,
			orders,
			cart_lines,
			sessions,
			admission_grants,
			event_products,
			products,
			events,
			users
		RESTART IDENTITY CASCADE;
	`).Error
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
