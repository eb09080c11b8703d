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

type listRulesCmd struct {
	app *app
}

func (*listRulesCmd) Name() string     { return "rules" }
func (*listRulesCmd) Synopsis() string { return "list auto-tag rules" }
func (*listRulesCmd) Usage() string {
	return `treeline rules

  Lists every stored auto-tag rule in evaluation order.
`
}

func (*listRulesCmd) SetFlags(*flag.FlagSet) {}

func (c *listRulesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	rules, err := s.repo.ListAutoTagRules(false)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tTAGS\tCONDITION")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			r.RuleID, r.Name, r.Enabled, strings.Join(r.Tags, ","), r.SQLCondition)
	}
	w.Flush()
	return c.app.done(c.Name())
}

type saveRuleCmd struct {
	app       *app
	id        string
	name      string
	condition string
	tags      string
	disabled  bool
	order     int
}

func (*saveRuleCmd) Name() string     { return "save-rule" }
func (*saveRuleCmd) Synopsis() string { return "create or update an auto-tag rule" }
func (*saveRuleCmd) Usage() string {
	return `treeline save-rule -id <rule-id> -condition "<predicate>" -tags a,b [-name <name>] [-disabled] [-order <n>]

  Stores an auto-tag rule. The condition is a SQL predicate evaluated
  against the transactions view, e.g. "description ILIKE '%coffee%'".
`
}

func (c *saveRuleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Rule id.")
	f.StringVar(&c.name, "name", "", "Display name (defaults to the id).")
	f.StringVar(&c.condition, "condition", "", "SQL predicate over the transactions view.")
	f.StringVar(&c.tags, "tags", "", "Comma-separated tags the rule applies.")
	f.BoolVar(&c.disabled, "disabled", false, "Store the rule disabled.")
	f.IntVar(&c.order, "order", 0, "Evaluation sort order.")
}

func (c *saveRuleCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	name := c.name
	if name == "" {
		name = c.id
	}
	rule := domain.AutoTagRule{
		RuleID:       c.id,
		Name:         name,
		SQLCondition: c.condition,
		Tags:         splitTags(c.tags),
		Enabled:      !c.disabled,
		SortOrder:    c.order,
	}

	svc := tag.NewService(s.repo, c.app.logger)
	if err := svc.SaveRule(&rule); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Saved rule %s\n", rule.RuleID)
	return c.app.done(c.Name())
}

type deleteRuleCmd struct {
	app *app
}

func (*deleteRuleCmd) Name() string     { return "delete-rule" }
func (*deleteRuleCmd) Synopsis() string { return "delete an auto-tag rule" }
func (*deleteRuleCmd) Usage() string {
	return `treeline delete-rule <rule-id>
`
}

func (*deleteRuleCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteRuleCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a rule id is required")
		return subcommands.ExitUsageError
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	svc := tag.NewService(s.repo, c.app.logger)
	if err := svc.DeleteRule(f.Arg(0)); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Deleted rule %s\n", f.Arg(0))
	return c.app.done(c.Name())
}

type applyRulesCmd struct {
	app     *app
	account string
}

func (*applyRulesCmd) Name() string     { return "apply-rules" }
func (*applyRulesCmd) Synopsis() string { return "run auto-tag rules over existing transactions" }
func (*applyRulesCmd) Usage() string {
	return `treeline apply-rules [-account <id>]

  Evaluates every enabled rule against all live transactions (or one
  account's) and merges the matching tags in.
`
}

func (c *applyRulesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Restrict to one account.")
}

func (c *applyRulesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	ids := make([]uuid.UUID, len(transactions))
	for i, tx := range transactions {
		ids[i] = tx.ID
	}

	svc := tag.NewService(s.repo, c.app.logger)
	if err := svc.ApplyRules(ctx, ids); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Evaluated rules over %d transactions\n", len(ids))
	return c.app.done(c.Name())
}
