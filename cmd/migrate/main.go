package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// fileCommands work on the migrations directory and never dial the database.
var fileCommands = map[string]func(options) error{
	"create": func(o options) error {
		if o.name == "" {
			return errors.New("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(diskDir(o), o.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	},
	"validate": func(o options) error {
		var err error
		if o.dir == "" {
			err = migrate.ValidateFS(migrate.Embedded(), "migrations")
		} else {
			err = migrate.ValidateDir(o.dir)
		}
		if err == nil {
			fmt.Println("migrations ok")
		}
		return err
	},
}

var dbCommands = map[string]func(context.Context, *sql.DB, options) error{
	"up":      goose("up"),
	"down":    goose("down"),
	"status":  goose("status"),
	"version": toVersion,
}

func goose(command string) func(context.Context, *sql.DB, options) error {
	return func(ctx context.Context, sqlDB *sql.DB, o options) error {
		return migrate.Run(ctx, sqlDB, o.dir, command)
	}
}

func toVersion(ctx context.Context, sqlDB *sql.DB, o options) error {
	if o.version == "" {
		return errors.New("-version is required for version")
	}
	return migrate.MigrateToVersion(ctx, sqlDB, o.dir, o.version)
}

func main() {
	var opts options
	cmd := flag.String("cmd", "up", "one of: "+strings.Join(commandNames(), "|"))
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty uses the set embedded in the binary")
	flag.StringVar(&opts.name, "name", "", "migration name, for create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS version, for version")
	flag.Parse()

	_ = godotenv.Load()

	if run, ok := fileCommands[*cmd]; ok {
		exitOn(run(opts), *cmd)
		return
	}
	run, ok := dbCommands[*cmd]
	if !ok {
		exitOn(fmt.Errorf("unknown -cmd %q", *cmd), *cmd)
	}

	cfg, err := config.Load()
	exitOn(err, "config")
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"source": sourceLabel(opts),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "migrate.db_unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "migrate.db_unavailable", err)
		os.Exit(1)
	}

	logg.Info(ctx, "migrate.start")
	if err := run(ctx, sqlDB, opts); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate.done")
}

func diskDir(o options) string {
	if o.dir != "" {
		return o.dir
	}
	return migrate.DefaultDir
}

func sourceLabel(o options) string {
	if o.dir == "" {
		return "embedded"
	}
	return o.dir
}

func commandNames() []string {
	names := make([]string, 0, len(fileCommands)+len(dbCommands))
	for name := range fileCommands {
		names = append(names, name)
	}
	for name := range dbCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exitOn(err error, what string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "migrate %s: %v\n", what, err)
	os.Exit(1)
}
