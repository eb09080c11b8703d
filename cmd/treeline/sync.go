package main

import (
	"context"
	"errors"
	"flag"

	"github.com/google/subcommands"

	"github.com/treeline-app/treeline/internal/provider"
	"github.com/treeline-app/treeline/internal/provider/demo"
	"github.com/treeline-app/treeline/internal/provider/simplefin"
	"github.com/treeline-app/treeline/internal/sync"
	"github.com/treeline-app/treeline/internal/tag"
)

var errIntegrationFailed = errors.New("one or more integrations failed")

type syncCmd struct {
	app         *app
	dryRun      bool
	integration string
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "pull accounts and transactions from configured providers" }
func (*syncCmd) Usage() string {
	return `treeline sync [-dry-run] [-integration <name>]

  Syncs every configured integration, or just the named one. A dry run
  fetches and classifies but writes nothing.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "Fetch and classify without writing.")
	f.StringVar(&c.integration, "integration", "", "Sync only this integration.")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	providers := []provider.DataProvider{simplefin.New(), demo.New()}
	tagger := tag.NewService(s.repo, c.app.logger)
	engine := sync.NewEngine(s.repo, providers, tagger, c.app.logger)

	result, err := engine.Run(ctx, sync.Options{DryRun: c.dryRun, Integration: c.integration})
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := printJSON(result); err != nil {
		return c.app.fail(c.Name(), err)
	}

	for _, ir := range result.Integrations {
		if ir.Error != "" {
			return c.app.fail(c.Name(), errIntegrationFailed)
		}
	}
	return c.app.done(c.Name())
}
