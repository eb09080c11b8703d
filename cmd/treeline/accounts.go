package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/domain"
)

type listAccountsCmd struct {
	app *app
}

func (*listAccountsCmd) Name() string     { return "accounts" }
func (*listAccountsCmd) Synopsis() string { return "list accounts" }
func (*listAccountsCmd) Usage() string {
	return `treeline accounts

  Lists every account with its latest balance.
`
}

func (*listAccountsCmd) SetFlags(*flag.FlagSet) {}

func (c *listAccountsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	accounts, err := s.repo.ListAccounts()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tCURRENCY\tBALANCE")
	for _, a := range accounts {
		name := a.Name
		if a.Nickname != nil && *a.Nickname != "" {
			name = *a.Nickname
		}
		balance := ""
		if a.Balance != nil {
			balance = a.Balance.StringFixed(2)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, name, strOrDash(a.AccountType), a.Currency, balance)
	}
	w.Flush()
	return c.app.done(c.Name())
}

type addAccountCmd struct {
	app         *app
	name        string
	accountType string
	currency    string
	nickname    string
}

func (*addAccountCmd) Name() string     { return "add-account" }
func (*addAccountCmd) Synopsis() string { return "create a manual account" }
func (*addAccountCmd) Usage() string {
	return `treeline add-account -name <name> [-type <type>] [-currency USD] [-nickname <nick>]

  Creates a manual account. Credit and loan types are classified as
  liabilities, everything else as assets.
`
}

func (c *addAccountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Account name.")
	f.StringVar(&c.accountType, "type", "", "Account type (depository, credit, investment, loan, other).")
	f.StringVar(&c.currency, "currency", "USD", "ISO 4217 currency code.")
	f.StringVar(&c.nickname, "nickname", "", "Display nickname.")
}

func (c *addAccountCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	account := domain.NewAccount(uuid.New(), c.name)
	account.Currency = domain.NormalizeCurrency(c.currency)
	account.IsManual = true
	if c.accountType != "" {
		account.AccountType = &c.accountType
	}
	classification := domain.ComputeClassification(account.AccountType)
	account.Classification = &classification
	if c.nickname != "" {
		account.Nickname = &c.nickname
	}
	if err := account.Validate(); err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := s.repo.UpsertAccount(&account); err != nil {
		return c.app.fail(c.Name(), err)
	}

	fmt.Printf("Created account %s (%s)\n", account.Name, account.ID)
	return c.app.done(c.Name())
}

type deleteAccountCmd struct {
	app *app
}

func (*deleteAccountCmd) Name() string     { return "delete-account" }
func (*deleteAccountCmd) Synopsis() string { return "delete an account and all its data" }
func (*deleteAccountCmd) Usage() string {
	return `treeline delete-account <id>

  Deletes an account together with its transactions and snapshots.
`
}

func (*deleteAccountCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteAccountCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: an account id is required")
		return subcommands.ExitUsageError
	}
	id, err := uuid.Parse(f.Arg(0))
	if err != nil {
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "invalid account id: %v", err))
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	if err := s.repo.DeleteAccountCascade(id); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Deleted account %s\n", id)
	return c.app.done(c.Name())
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
