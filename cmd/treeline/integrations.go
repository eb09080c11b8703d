package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/provider/simplefin"
)

type listIntegrationsCmd struct {
	app *app
}

func (*listIntegrationsCmd) Name() string     { return "integrations" }
func (*listIntegrationsCmd) Synopsis() string { return "list configured integrations" }
func (*listIntegrationsCmd) Usage() string {
	return `treeline integrations
`
}

func (*listIntegrationsCmd) SetFlags(*flag.FlagSet) {}

func (c *listIntegrationsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	integrations, err := s.repo.ListIntegrations()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCONFIGURED")
	for _, in := range integrations {
		fmt.Fprintf(w, "%s\t%s\n", in.Name, in.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()
	return c.app.done(c.Name())
}

type setupIntegrationCmd struct {
	app       *app
	token     string
	accessURL string
}

func (*setupIntegrationCmd) Name() string     { return "setup-integration" }
func (*setupIntegrationCmd) Synopsis() string { return "configure a data provider" }
func (*setupIntegrationCmd) Usage() string {
	return `treeline setup-integration simplefin (-token <setup token> | -access-url <url>)
treeline setup-integration demo

  Configures a provider connection. A SimpleFIN setup token is claimed
  once and exchanged for a permanent access URL; the demo provider
  needs no credentials.
`
}

func (c *setupIntegrationCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.token, "token", "", "SimpleFIN one-time setup token.")
	f.StringVar(&c.accessURL, "access-url", "", "SimpleFIN access URL, if already claimed.")
}

func (c *setupIntegrationCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a provider name is required")
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)

	var settings string
	switch name {
	case "simplefin":
		options, err := json.Marshal(simplefin.SetupOptions{SetupToken: c.token, AccessURL: c.accessURL})
		if err != nil {
			return c.app.fail(c.Name(), err)
		}
		settings, err = simplefin.New().Setup(ctx, string(options))
		if err != nil {
			return c.app.fail(c.Name(), err)
		}
	case "demo":
		settings = "{}"
	default:
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "unknown provider %q", name))
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	if err := s.repo.UpsertIntegration(name, settings); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Configured %s\n", name)
	return c.app.done(c.Name())
}

type removeIntegrationCmd struct {
	app *app
}

func (*removeIntegrationCmd) Name() string     { return "remove-integration" }
func (*removeIntegrationCmd) Synopsis() string { return "remove a configured integration" }
func (*removeIntegrationCmd) Usage() string {
	return `treeline remove-integration <name>
`
}

func (*removeIntegrationCmd) SetFlags(*flag.FlagSet) {}

func (c *removeIntegrationCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: an integration name is required")
		return subcommands.ExitUsageError
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	existed, err := s.repo.DeleteIntegration(f.Arg(0))
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if !existed {
		return c.app.fail(c.Name(), fmt.Errorf("integration %s: %w", f.Arg(0), domain.ErrNotFound))
	}
	fmt.Printf("Removed %s\n", f.Arg(0))
	return c.app.done(c.Name())
}
