package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/spanner"
	admin "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	instanceadmin "cloud.google.com/go/spanner/admin/instance/apiv1"
	"cloud.google.com/go/spanner/admin/instance/apiv1/instancepb"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/config"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ledgerTable = "schema_migrations"

var ledgerDDL = `CREATE TABLE ` + ledgerTable + ` (
  version STRING(64) NOT NULL,
  applied_at TIMESTAMP NOT NULL OPTIONS (allow_commit_timestamp=true),
) PRIMARY KEY (version)`

// Migration is one .sql file. Version is the file name without extension.
type Migration struct {
	Version    string
	Path       string
	Statements []string
}

// Runner applies pending migrations to a Spanner database, creating the
// instance and database first when they do not exist.
type Runner struct {
	cfg    config.SpannerConfig
	dir    string
	logger *slog.Logger
}

// NewRunner creates a runner. An empty dir means the migrations/ directory at
// the module root.
func NewRunner(cfg config.SpannerConfig, dir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, dir: dir, logger: logger}
}

// Run executes every migration that is not yet recorded in schema_migrations.
// It returns the versions it applied.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	opts := r.cfg.ClientOptions()
	if r.cfg.EmulatorHost != "" {
		r.logger.Info("using spanner emulator", "host", r.cfg.EmulatorHost)
	}

	dir := r.dir
	if dir == "" {
		var err error
		if dir, err = FindMigrationsDir(); err != nil {
			return nil, fmt.Errorf("failed to find migrations directory: %w", err)
		}
	}
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if len(migrations) == 0 {
		r.logger.Info("no migration files found", "dir", dir)
		return nil, nil
	}

	if err := r.ensureInstance(ctx, opts); err != nil {
		return nil, err
	}

	adminClient, err := admin.NewDatabaseAdminClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create database admin client: %w", err)
	}
	defer adminClient.Close()

	if err := r.ensureDatabase(ctx, adminClient); err != nil {
		return nil, err
	}

	client, err := spanner.NewClient(ctx, r.cfg.DatabasePath(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create spanner client: %w", err)
	}
	defer client.Close()

	applied, err := appliedVersions(ctx, client)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, m := range Pending(migrations, applied) {
		log := r.logger.With("version", m.Version)
		if len(m.Statements) > 0 {
			log.Info("applying migration", "statements", len(m.Statements))
			op, err := adminClient.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
				Database:   r.cfg.DatabasePath(),
				Statements: m.Statements,
			})
			if err != nil {
				return done, fmt.Errorf("failed to start migration %s: %w", m.Version, err)
			}
			if err := op.Wait(ctx); err != nil {
				return done, fmt.Errorf("failed to complete migration %s: %w", m.Version, err)
			}
		} else {
			log.Info("recording migration without DDL statements")
		}

		_, err := client.Apply(ctx, []*spanner.Mutation{
			spanner.Insert(ledgerTable, []string{"version", "applied_at"}, []interface{}{m.Version, spanner.CommitTimestamp}),
		})
		if err != nil {
			return done, fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		done = append(done, m.Version)
	}

	r.logger.Info("migrations complete", "applied", len(done), "total", len(migrations))
	return done, nil
}

func (r *Runner) ensureInstance(ctx context.Context, opts []option.ClientOption) error {
	instanceAdminClient, err := instanceadmin.NewInstanceAdminClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create instance admin client: %w", err)
	}
	defer instanceAdminClient.Close()

	instanceName := r.cfg.InstancePath()
	_, err = instanceAdminClient.GetInstance(ctx, &instancepb.GetInstanceRequest{Name: instanceName})
	if err == nil {
		r.logger.Debug("instance exists", "instance", instanceName)
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to check instance existence: %w", err)
	}

	r.logger.Info("creating instance", "instance", instanceName)
	op, err := instanceAdminClient.CreateInstance(ctx, &instancepb.CreateInstanceRequest{
		Parent:     r.cfg.ProjectPath(),
		InstanceId: r.cfg.InstanceID,
		Instance: &instancepb.Instance{
			DisplayName: r.cfg.InstanceID,
			NodeCount:   1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	if _, err := op.Wait(ctx); err != nil {
		return fmt.Errorf("instance creation failed: %w", err)
	}
	return nil
}

// ensureDatabase creates the database with only the ledger table; schema
// files are then applied like on any existing database.
func (r *Runner) ensureDatabase(ctx context.Context, adminClient *admin.DatabaseAdminClient) error {
	dbPath := r.cfg.DatabasePath()
	_, err := adminClient.GetDatabase(ctx, &databasepb.GetDatabaseRequest{Name: dbPath})
	if err == nil {
		return r.ensureLedger(ctx, adminClient)
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	r.logger.Info("creating database", "database", dbPath)
	op, err := adminClient.CreateDatabase(ctx, &databasepb.CreateDatabaseRequest{
		Parent:          r.cfg.InstancePath(),
		CreateStatement: fmt.Sprintf("CREATE DATABASE `%s`", r.cfg.DatabaseID),
		ExtraStatements: []string{ledgerDDL},
	})
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	if _, err := op.Wait(ctx); err != nil {
		return fmt.Errorf("database creation failed: %w", err)
	}
	return nil
}

// ensureLedger adds schema_migrations to databases created before it existed.
func (r *Runner) ensureLedger(ctx context.Context, adminClient *admin.DatabaseAdminClient) error {
	resp, err := adminClient.GetDatabaseDdl(ctx, &databasepb.GetDatabaseDdlRequest{Database: r.cfg.DatabasePath()})
	if err != nil {
		return fmt.Errorf("failed to read database schema: %w", err)
	}
	for _, stmt := range resp.GetStatements() {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "CREATE TABLE "+strings.ToUpper(ledgerTable)) {
			return nil
		}
	}

	op, err := adminClient.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
		Database:   r.cfg.DatabasePath(),
		Statements: []string{ledgerDDL},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", ledgerTable, err)
	}
	return op.Wait(ctx)
}

func appliedVersions(ctx context.Context, client *spanner.Client) (map[string]bool, error) {
	applied := make(map[string]bool)
	iter := client.Single().Read(ctx, ledgerTable, spanner.AllKeys(), []string{"version"})
	err := iter.Do(func(row *spanner.Row) error {
		var version string
		if err := row.Columns(&version); err != nil {
			return err
		}
		applied[version] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ledgerTable, err)
	}
	return applied, nil
}

// Pending returns the migrations not present in applied, in version order.
func Pending(migrations []Migration, applied map[string]bool) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// FindMigrationsDir walks up from the working directory to the module root
// and returns its migrations/ directory.
func FindMigrationsDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for dir := wd; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			migrationsPath := filepath.Join(dir, "migrations")
			if _, err := os.Stat(migrationsPath); err != nil {
				return "", fmt.Errorf("migrations directory not found at %s", migrationsPath)
			}
			return migrationsPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find migrations directory (searched from %s)", wd)
}

// LoadMigrations reads and parses every .sql file in dir, sorted by name.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		sql, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", path, err)
		}
		version := strings.TrimSuffix(name, ".sql")
		if version == ledgerTable {
			return nil, errors.New("migration file name clashes with the ledger table")
		}
		migrations = append(migrations, Migration{
			Version:    version,
			Path:       path,
			Statements: ParseDDLStatements(string(sql)),
		})
	}
	return migrations, nil
}

// ParseDDLStatements splits a SQL file into statements on trailing semicolons,
// dropping -- comments. Spanner DDL requests take statements without the
// terminator.
func ParseDDLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(sql, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(trimmed)

		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return statements
}
