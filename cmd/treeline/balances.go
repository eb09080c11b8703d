package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treeline-app/treeline/internal/balance"
	"github.com/treeline-app/treeline/internal/domain"
)

type addBalanceCmd struct {
	app     *app
	account string
	amount  string
	date    string
}

func (*addBalanceCmd) Name() string     { return "add-balance" }
func (*addBalanceCmd) Synopsis() string { return "record a manual balance snapshot" }
func (*addBalanceCmd) Usage() string {
	return `treeline add-balance -account <id> -balance <amount> [-date YYYY-MM-DD]

  Records an end-of-day balance snapshot. The date defaults to today.
`
}

func (c *addBalanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account id.")
	f.StringVar(&c.amount, "balance", "", "Balance amount.")
	f.StringVar(&c.date, "date", "", "Snapshot date (YYYY-MM-DD), default today.")
}

func (c *addBalanceCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	accountID, amount, date, err := parseBalanceArgs(c.account, c.amount, c.date)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	svc := balance.NewService(s.repo, c.app.logger)
	snap, err := svc.AddManual(accountID, amount, date)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Recorded balance %s on %s\n", snap.Balance.StringFixed(2), snap.SnapshotTime.Format("2006-01-02"))
	return c.app.done(c.Name())
}

type backfillCmd struct {
	app     *app
	account string
	amount  string
	date    string
	from    string
	to      string
	execute bool
}

func (*backfillCmd) Name() string     { return "backfill" }
func (*backfillCmd) Synopsis() string { return "reconstruct historical balances from transactions" }
func (*backfillCmd) Usage() string {
	return `treeline backfill -account <id> -balance <amount> -date YYYY-MM-DD [-from YYYY-MM-DD] [-to YYYY-MM-DD] [-execute]

  Walks backwards from a known balance, subtracting each day's net
  transaction amount. Without -execute the computed days are printed
  and nothing is written.
`
}

func (c *backfillCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account id.")
	f.StringVar(&c.amount, "balance", "", "Known end-of-day balance on the anchor date.")
	f.StringVar(&c.date, "date", "", "Anchor date (YYYY-MM-DD).")
	f.StringVar(&c.from, "from", "", "Oldest date to write (YYYY-MM-DD).")
	f.StringVar(&c.to, "to", "", "Newest date to write (YYYY-MM-DD).")
	f.BoolVar(&c.execute, "execute", false, "Write the computed snapshots.")
}

func (c *backfillCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.date == "" {
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "an anchor date is required"))
	}
	accountID, amount, date, err := parseBalanceArgs(c.account, c.amount, c.date)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	opts := balance.BackfillOptions{AccountID: accountID, Balance: amount, Date: date}
	if c.from != "" {
		if opts.WindowStart, err = parseDay(c.from); err != nil {
			return c.app.fail(c.Name(), err)
		}
	}
	if c.to != "" {
		if opts.WindowEnd, err = parseDay(c.to); err != nil {
			return c.app.fail(c.Name(), err)
		}
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	svc := balance.NewService(s.repo, c.app.logger)
	if !c.execute {
		days, err := svc.Preview(opts)
		if err != nil {
			return c.app.fail(c.Name(), err)
		}
		if err := printJSON(days); err != nil {
			return c.app.fail(c.Name(), err)
		}
		return c.app.done(c.Name())
	}

	result, err := svc.Execute(opts)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Replaced %d snapshots with %d backfilled snapshots\n", result.Deleted, result.Inserted)
	return c.app.done(c.Name())
}

func parseBalanceArgs(account, amount, date string) (uuid.UUID, decimal.Decimal, time.Time, error) {
	id, err := uuid.Parse(account)
	if err != nil {
		return uuid.Nil, decimal.Zero, time.Time{}, domain.Errorf(domain.KindValidation, "invalid account id: %v", err)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return uuid.Nil, decimal.Zero, time.Time{}, domain.Errorf(domain.KindValidation, "invalid balance: %v", err)
	}
	day := time.Now().UTC()
	if date != "" {
		if day, err = parseDay(date); err != nil {
			return uuid.Nil, decimal.Zero, time.Time{}, err
		}
	}
	return id, value, day, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, domain.Errorf(domain.KindValidation, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
