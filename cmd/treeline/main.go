package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/treeline-app/treeline/internal/config"
)

const version = "0.4.0"

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a := &app{cfg: cfg, logger: logger}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&syncCmd{app: a}, "data")
	commander.Register(&importCmd{app: a}, "data")
	commander.Register(&listAccountsCmd{app: a}, "accounts")
	commander.Register(&addAccountCmd{app: a}, "accounts")
	commander.Register(&deleteAccountCmd{app: a}, "accounts")
	commander.Register(&listTransactionsCmd{app: a}, "transactions")
	commander.Register(&tagTransactionsCmd{app: a}, "transactions")
	commander.Register(&deleteTransactionCmd{app: a}, "transactions")
	commander.Register(&addBalanceCmd{app: a}, "balances")
	commander.Register(&backfillCmd{app: a}, "balances")
	commander.Register(&queryCmd{app: a}, "query")
	commander.Register(&listRulesCmd{app: a}, "rules")
	commander.Register(&saveRuleCmd{app: a}, "rules")
	commander.Register(&deleteRuleCmd{app: a}, "rules")
	commander.Register(&applyRulesCmd{app: a}, "rules")
	commander.Register(&listIntegrationsCmd{app: a}, "integrations")
	commander.Register(&setupIntegrationCmd{app: a}, "integrations")
	commander.Register(&removeIntegrationCmd{app: a}, "integrations")
	commander.Register(&encryptCmd{app: a}, "encryption")
	commander.Register(&decryptCmd{app: a}, "encryption")
	commander.Register(&backupCmd{app: a}, "backups")
	commander.Register(&listBackupsCmd{app: a}, "backups")
	commander.Register(&restoreCmd{app: a}, "backups")
	commander.Register(&pruneBackupsCmd{app: a}, "backups")
	commander.Register(&clearBackupsCmd{app: a}, "backups")
	commander.Register(&compactCmd{app: a}, "maintenance")
	commander.Register(&doctorCmd{app: a}, "maintenance")
	commander.Register(&statusCmd{app: a}, "maintenance")
	commander.Register(&demoModeCmd{app: a}, "settings")
	commander.Register(&listProfilesCmd{app: a}, "settings")
	commander.Register(&saveProfileCmd{app: a}, "settings")
	commander.Register(&deleteProfileCmd{app: a}, "settings")
	commander.Register(&logsCmd{app: a}, "logs")
	commander.Register(&exportLogsCmd{app: a}, "logs")
	commander.Register(&pruneLogsCmd{app: a}, "logs")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func logLevel() slog.Level {
	switch os.Getenv("TREELINE_LOG") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
