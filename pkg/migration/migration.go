package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/postgresql"
)

// Migration is one schema change, read from a pair of .up.sql / .down.sql files.
type Migration struct {
	ID        string
	Name      string
	Timestamp time.Time
	UpSQL     string
	DownSQL   string
}

// Runner applies SQL migrations against PostgreSQL, tracking applied ids in a
// migrations table.
type Runner struct {
	client       postgresql.PostgreSQLClient
	logger       logger.Interface
	migrationDir string
	schema       string
	tableName    string
}

// Config for the migration runner.
type Config struct {
	MigrationDir string
	Schema       string // defaults to "public"
	TableName    string // defaults to "schema_migrations"
}

// NewRunner creates a migration runner.
func NewRunner(client postgresql.PostgreSQLClient, log logger.Interface, config Config) *Runner {
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.TableName == "" {
		config.TableName = "schema_migrations"
	}

	return &Runner{
		client:       client,
		logger:       log,
		migrationDir: config.MigrationDir,
		schema:       config.Schema,
		tableName:    config.TableName,
	}
}

// EnsureMigrationTable creates the tracking table if it does not exist.
func (r *Runner) EnsureMigrationTable(ctx context.Context) error {
	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
	`, r.schema, r.tableName)

	_, err := r.client.Exec(ctx, createTableSQL)
	return err
}

// GetAppliedMigrations returns the set of applied migration ids.
func (r *Runner) GetAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	applied := make(map[string]bool)

	query := fmt.Sprintf("SELECT id FROM %s.%s ORDER BY applied_at", r.schema, r.tableName)
	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}

	return applied, nil
}

// LoadMigrations reads all migrations from the migration directory, ordered
// by file name.
func (r *Runner) LoadMigrations() ([]Migration, error) {
	upFiles, err := filepath.Glob(filepath.Join(r.migrationDir, "*.up.sql"))
	if err != nil {
		return nil, err
	}

	sort.Strings(upFiles)

	var migrations []Migration
	for _, upFile := range upFiles {
		migration, err := r.parseMigrationFiles(upFile)
		if err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %v", upFile, err)
		}
		migrations = append(migrations, migration)
	}

	return migrations, nil
}

func (r *Runner) parseMigrationFiles(upFilePath string) (Migration, error) {
	upContent, err := os.ReadFile(upFilePath)
	if err != nil {
		return Migration{}, err
	}

	fileName := filepath.Base(upFilePath)
	id := strings.TrimSuffix(fileName, ".up.sql")
	downFilePath := strings.Replace(upFilePath, ".up.sql", ".down.sql", 1)

	// File names are either YYYYMMDDHHMMSS_name or NNN_name.
	parts := strings.SplitN(id, "_", 2)
	timestampStr := parts[0]
	var name string
	if len(parts) > 1 {
		name = parts[1]
	} else {
		name = id
	}

	timestamp, err := time.Parse("20060102150405", timestampStr)
	if err != nil {
		timestamp = time.Unix(0, 0)
	}

	var downSQL string
	if downContent, err := os.ReadFile(downFilePath); err == nil {
		downSQL = strings.TrimSpace(string(downContent))
	}

	return Migration{
		ID:        id,
		Name:      name,
		Timestamp: timestamp,
		UpSQL:     strings.TrimSpace(string(upContent)),
		DownSQL:   downSQL,
	}, nil
}

// MigrateUp applies pending migrations, at most steps of them when steps > 0.
func (r *Runner) MigrateUp(ctx context.Context, steps int) error {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	migrations, err := r.LoadMigrations()
	if err != nil {
		return err
	}

	applied, err := r.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var toApply []Migration
	for _, migration := range migrations {
		if !applied[migration.ID] {
			toApply = append(toApply, migration)
		}
	}

	if steps > 0 && len(toApply) > steps {
		toApply = toApply[:steps]
	}

	for _, migration := range toApply {
		if migration.UpSQL == "" {
			r.logger.Warn("migration has no UP SQL, skipping", logger.Field{
				Key:   "migration",
				Value: migration.ID,
			})
			continue
		}

		err := postgresql.WithTx(ctx, r.client, func(txCtx context.Context) error {
			if _, err := r.client.Exec(txCtx, migration.UpSQL); err != nil {
				return err
			}

			recordSQL := fmt.Sprintf(
				"INSERT INTO %s.%s (id, name, applied_at) VALUES ($1, $2, NOW())",
				r.schema, r.tableName,
			)
			_, err := r.client.Exec(txCtx, recordSQL, migration.ID, migration.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %v", migration.ID, err)
		}

		r.logger.Info("applied migration", logger.Field{
			Key:   "migration",
			Value: migration.ID,
		})
	}

	return nil
}

// MigrateDown reverts the most recently applied migrations.
func (r *Runner) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be greater than 0 for down migrations")
	}

	migrations, err := r.LoadMigrations()
	if err != nil {
		return err
	}

	applied, err := r.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var toRevert []Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if applied[migration.ID] {
			toRevert = append(toRevert, migration)
			if len(toRevert) >= steps {
				break
			}
		}
	}

	for _, migration := range toRevert {
		if migration.DownSQL == "" {
			return fmt.Errorf("no DOWN SQL found for migration %s - cannot revert", migration.ID)
		}

		err := postgresql.WithTx(ctx, r.client, func(txCtx context.Context) error {
			if _, err := r.client.Exec(txCtx, migration.DownSQL); err != nil {
				return err
			}

			removeSQL := fmt.Sprintf("DELETE FROM %s.%s WHERE id = $1", r.schema, r.tableName)
			_, err := r.client.Exec(txCtx, removeSQL, migration.ID)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to revert migration %s: %v", migration.ID, err)
		}

		r.logger.Info("reverted migration", logger.Field{
			Key:   "migration",
			Value: migration.ID,
		})
	}

	return nil
}
