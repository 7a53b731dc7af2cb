package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/congo-pay/paystream/internal/config"
	"github.com/congo-pay/paystream/internal/infra"
	"github.com/congo-pay/paystream/internal/logging"
)

type migrateCmd struct {
	print bool
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the Postgres schema" }
func (*migrateCmd) Usage() string {
	return `api migrate [-print]

  Applies the ledger, identity, wallet and stream tables to DATABASE_URL.
  Every statement is idempotent.
`
}

func (m *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.print, "print", false, "print the schema instead of applying it")
}

func (m *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if m.print {
		fmt.Print(infra.Schema())
		return subcommands.ExitSuccess
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return subcommands.ExitFailure
	}
	logger := logging.New(cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL must be set to migrate")
		return subcommands.ExitUsageError
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := infra.Migrate(ctx, db); err != nil {
		logger.Error("migrate", "error", err)
		return subcommands.ExitFailure
	}
	logger.Info("schema applied")
	return subcommands.ExitSuccess
}
