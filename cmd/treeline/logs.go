package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/treeline-app/treeline/internal/eventlog"
)

type logsCmd struct {
	app    *app
	errors bool
	limit  int
}

func (*logsCmd) Name() string     { return "logs" }
func (*logsCmd) Synopsis() string { return "show recent diagnostic events" }
func (*logsCmd) Usage() string {
	return `treeline logs [-errors] [-limit <n>]

  Shows recent events from the diagnostic log, newest first. The log
  records commands and errors, never financial data.
`
}

func (c *logsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.errors, "errors", false, "Show only error events.")
	f.IntVar(&c.limit, "limit", 50, "Show at most N events.")
}

func (c *logsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log, err := c.openLog()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer log.Close()

	var events []eventlog.Event
	if c.errors {
		events, err = log.Errors(c.limit)
	} else {
		events, err = log.Recent(c.limit)
	}
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tCOMMAND\tERROR")
	for _, e := range events {
		command := ""
		if e.Command != nil {
			command = *e.Command
		}
		errMsg := ""
		if e.ErrorMessage != nil {
			errMsg = *e.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Time.Format("2006-01-02 15:04:05"), e.Name, command, errMsg)
	}
	w.Flush()
	return c.app.done(c.Name())
}

func (c *logsCmd) openLog() (*eventlog.Log, error) {
	return eventlog.Open(c.app.cfg.LogsPath(), "cli", version, runtime.GOOS)
}

type exportLogsCmd struct {
	app *app
}

func (*exportLogsCmd) Name() string     { return "export-logs" }
func (*exportLogsCmd) Synopsis() string { return "export the diagnostic log database" }
func (*exportLogsCmd) Usage() string {
	return `treeline export-logs <destination>

  Copies the diagnostic log database to a file, for attaching to a
  bug report.
`
}

func (*exportLogsCmd) SetFlags(*flag.FlagSet) {}

func (c *exportLogsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a destination path is required")
		return subcommands.ExitUsageError
	}

	log, err := eventlog.Open(c.app.cfg.LogsPath(), "cli", version, runtime.GOOS)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer log.Close()

	if err := log.Export(f.Arg(0)); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Exported logs to %s\n", f.Arg(0))
	return c.app.done(c.Name())
}

type pruneLogsCmd struct {
	app  *app
	days int
}

func (*pruneLogsCmd) Name() string     { return "prune-logs" }
func (*pruneLogsCmd) Synopsis() string { return "delete old diagnostic events" }
func (*pruneLogsCmd) Usage() string {
	return `treeline prune-logs [-days <n>]
`
}

func (c *pruneLogsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", 90, "Delete events older than this many days.")
}

func (c *pruneLogsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log, err := eventlog.Open(c.app.cfg.LogsPath(), "cli", version, runtime.GOOS)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer log.Close()

	deleted, err := log.Prune(time.Duration(c.days) * 24 * time.Hour)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Deleted %d events\n", deleted)
	return c.app.done(c.Name())
}
