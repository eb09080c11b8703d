package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/tag"
)

type listTransactionsCmd struct {
	app     *app
	account string
	limit   int
}

func (*listTransactionsCmd) Name() string     { return "transactions" }
func (*listTransactionsCmd) Synopsis() string { return "list transactions" }
func (*listTransactionsCmd) Usage() string {
	return `treeline transactions [-account <id>] [-limit <n>]

  Lists live transactions, newest first.
`
}

func (c *listTransactionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Restrict to one account.")
	f.IntVar(&c.limit, "limit", 50, "Show at most N transactions (0 for all).")
}

func (c *listTransactionsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var accountID *uuid.UUID
	if c.account != "" {
		id, err := uuid.Parse(c.account)
		if err != nil {
			return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "invalid account id: %v", err))
		}
		accountID = &id
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	transactions, err := s.repo.ListTransactions(accountID)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if c.limit > 0 && len(transactions) > c.limit {
		transactions = transactions[:c.limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tDESCRIPTION\tTAGS")
	for _, tx := range transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tx.ID,
			tx.TransactionDate.Format("2006-01-02"),
			tx.Amount.StringFixed(2),
			strOrDash(tx.Description),
			strings.Join(tx.Tags, ","))
	}
	w.Flush()
	return c.app.done(c.Name())
}

type tagTransactionsCmd struct {
	app     *app
	add     string
	replace string
	remove  string
}

func (*tagTransactionsCmd) Name() string     { return "tag" }
func (*tagTransactionsCmd) Synopsis() string { return "tag transactions" }
func (*tagTransactionsCmd) Usage() string {
	return `treeline tag (-add a,b | -replace a,b | -remove a,b) <tx-id> [<tx-id>...]

  Applies, replaces or removes tags on the given transactions. Each
  transaction succeeds or fails independently.
`
}

func (c *tagTransactionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.add, "add", "", "Merge these tags into each transaction.")
	f.StringVar(&c.replace, "replace", "", "Replace each transaction's tags with these.")
	f.StringVar(&c.remove, "remove", "", "Remove these tags from each transaction.")
}

func (c *tagTransactionsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	set := 0
	for _, v := range []string{c.add, c.replace, c.remove} {
		if v != "" {
			set++
		}
	}
	if set != 1 || f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -add, -replace, -remove and at least one transaction id are required")
		return subcommands.ExitUsageError
	}

	ids := make([]uuid.UUID, 0, f.NArg())
	for _, arg := range f.Args() {
		id, err := uuid.Parse(arg)
		if err != nil {
			return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "invalid transaction id %q: %v", arg, err))
		}
		ids = append(ids, id)
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	svc := tag.NewService(s.repo, c.app.logger)
	var result *tag.BatchResult
	switch {
	case c.add != "":
		result, err = svc.Apply(ids, splitTags(c.add))
	case c.replace != "":
		result, err = svc.Replace(ids, splitTags(c.replace))
	default:
		result, err = svc.Remove(ids, splitTags(c.remove))
	}
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := printJSON(result); err != nil {
		return c.app.fail(c.Name(), err)
	}
	if result.Failed > 0 {
		return c.app.fail(c.Name(), fmt.Errorf("%d of %d transactions failed", result.Failed, len(ids)))
	}
	return c.app.done(c.Name())
}

type deleteTransactionCmd struct {
	app *app
}

func (*deleteTransactionCmd) Name() string     { return "delete-transaction" }
func (*deleteTransactionCmd) Synopsis() string { return "soft-delete a transaction" }
func (*deleteTransactionCmd) Usage() string {
	return `treeline delete-transaction <id>

  Marks a transaction deleted. The row stays behind so a later sync or
  import cannot resurrect it.
`
}

func (*deleteTransactionCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteTransactionCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a transaction id is required")
		return subcommands.ExitUsageError
	}
	id, err := uuid.Parse(f.Arg(0))
	if err != nil {
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "invalid transaction id: %v", err))
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	if err := s.repo.SoftDeleteTransaction(id); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Deleted transaction %s\n", id)
	return c.app.done(c.Name())
}
