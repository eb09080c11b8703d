package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
)

type queryCmd struct {
	app *app
}

func (*queryCmd) Name() string     { return "query" }
func (*queryCmd) Synopsis() string { return "run a read-only SQL query" }
func (*queryCmd) Usage() string {
	return `treeline query "<select statement>"

  Runs a SELECT against the database and prints the rows as JSON.
  Statements that could write are rejected.
`
}

func (*queryCmd) SetFlags(*flag.FlagSet) {}

func (c *queryCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: a query is required")
		return subcommands.ExitUsageError
	}
	query := strings.Join(f.Args(), " ")

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	result, err := s.repo.ExecuteQuery(query)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := printJSON(result); err != nil {
		return c.app.fail(c.Name(), err)
	}
	return c.app.done(c.Name())
}
