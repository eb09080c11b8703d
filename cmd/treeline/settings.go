package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/treeline-app/treeline/internal/config"
	"github.com/treeline-app/treeline/internal/domain"
)

type demoModeCmd struct {
	app *app
}

func (*demoModeCmd) Name() string     { return "demo-mode" }
func (*demoModeCmd) Synopsis() string { return "show or switch demo mode" }
func (*demoModeCmd) Usage() string {
	return `treeline demo-mode [on|off]

  Demo mode points every command at a separate database seeded by the
  demo provider. Without an argument the current mode is printed.
`
}

func (*demoModeCmd) SetFlags(*flag.FlagSet) {}

func (c *demoModeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	settings, err := c.app.loadSettings()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	if f.NArg() == 0 {
		if c.app.demoMode(settings) {
			fmt.Println("on")
		} else {
			fmt.Println("off")
		}
		return c.app.done(c.Name())
	}

	value, ok := config.ParseBoolFlag(f.Arg(0))
	if !ok {
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "expected on or off, got %q", f.Arg(0)))
	}
	if err := settings.SetDemoMode(value); err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := settings.Save(); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Demo mode %s\n", f.Arg(0))
	return c.app.done(c.Name())
}

type listProfilesCmd struct {
	app *app
}

func (*listProfilesCmd) Name() string     { return "profiles" }
func (*listProfilesCmd) Synopsis() string { return "list saved CSV import profiles" }
func (*listProfilesCmd) Usage() string {
	return `treeline profiles
`
}

func (*listProfilesCmd) SetFlags(*flag.FlagSet) {}

func (c *listProfilesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	settings, err := c.app.loadSettings()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATE\tAMOUNT\tDESCRIPTION\tSKIP\tOPTIONS")
	for name, p := range settings.ImportProfiles() {
		options := ""
		if p.Options.FlipSigns {
			options += "flip-signs "
		}
		if p.Options.DebitNegative {
			options += "debit-negative "
		}
		if p.Options.NumberFormat != "" {
			options += p.Options.NumberFormat
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			name,
			orAuto(p.ColumnMappings.Date),
			orAuto(p.ColumnMappings.Amount),
			orAuto(p.ColumnMappings.Description),
			p.SkipRows,
			options)
	}
	w.Flush()
	return c.app.done(c.Name())
}

func orAuto(s string) string {
	if s == "" {
		return "(auto)"
	}
	return s
}

type saveProfileCmd struct {
	app           *app
	name          string
	dateCol       string
	amountCol     string
	descCol       string
	creditCol     string
	debitCol      string
	balanceCol    string
	dateFormat    string
	skipRows      int
	flipSigns     bool
	debitNegative bool
	numberFormat  string
}

func (*saveProfileCmd) Name() string     { return "save-profile" }
func (*saveProfileCmd) Synopsis() string { return "save a CSV import profile" }
func (*saveProfileCmd) Usage() string {
	return `treeline save-profile -name <name> [column and option flags]

  Saves a named CSV import profile. Unset columns stay auto-detected.
`
}

func (c *saveProfileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Profile name.")
	f.StringVar(&c.dateCol, "date-col", "", "Date column header.")
	f.StringVar(&c.amountCol, "amount-col", "", "Amount column header.")
	f.StringVar(&c.descCol, "description-col", "", "Description column header.")
	f.StringVar(&c.creditCol, "credit-col", "", "Credit column header.")
	f.StringVar(&c.debitCol, "debit-col", "", "Debit column header.")
	f.StringVar(&c.balanceCol, "balance-col", "", "Running balance column header.")
	f.StringVar(&c.dateFormat, "date-format", "", "Explicit date layout, e.g. 01/02/2006.")
	f.IntVar(&c.skipRows, "skip-rows", 0, "Preamble rows to skip before the header.")
	f.BoolVar(&c.flipSigns, "flip-signs", false, "Negate every amount after parsing.")
	f.BoolVar(&c.debitNegative, "debit-negative", false, "Treat positive debit values as negative.")
	f.StringVar(&c.numberFormat, "number-format", "", "Amount format: us (default), eu or eu_space.")
}

func (c *saveProfileCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "a profile name is required"))
	}
	settings, err := c.app.loadSettings()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	profile := config.ImportProfile{
		ColumnMappings: config.ColumnMappings{
			Date:        c.dateCol,
			Amount:      c.amountCol,
			Description: c.descCol,
			Credit:      c.creditCol,
			Debit:       c.debitCol,
			Balance:     c.balanceCol,
		},
		DateFormat: c.dateFormat,
		SkipRows:   c.skipRows,
		Options: config.ProfileOptions{
			FlipSigns:     c.flipSigns,
			DebitNegative: c.debitNegative,
			NumberFormat:  c.numberFormat,
		},
	}
	if err := settings.SaveImportProfile(c.name, profile); err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := settings.Save(); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Saved profile %s\n", c.name)
	return c.app.done(c.Name())
}

type deleteProfileCmd struct {
	app *app
}

func (*deleteProfileCmd) Name() string     { return "delete-profile" }
func (*deleteProfileCmd) Synopsis() string { return "delete a saved import profile" }
func (*deleteProfileCmd) Usage() string {
	return `treeline delete-profile <name>
`
}

func (*deleteProfileCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteProfileCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a profile name is required")
		return subcommands.ExitUsageError
	}
	settings, err := c.app.loadSettings()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	existed, err := settings.DeleteImportProfile(f.Arg(0))
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if !existed {
		return c.app.fail(c.Name(), fmt.Errorf("profile %s: %w", f.Arg(0), domain.ErrNotFound))
	}
	if err := settings.Save(); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Deleted profile %s\n", f.Arg(0))
	return c.app.done(c.Name())
}
