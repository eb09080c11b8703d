package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/treeline-app/treeline/internal/maintenance"
)

type compactCmd struct {
	app *app
}

func (*compactCmd) Name() string     { return "compact" }
func (*compactCmd) Synopsis() string { return "reclaim unused database space" }
func (*compactCmd) Usage() string {
	return `treeline compact
`
}

func (*compactCmd) SetFlags(*flag.FlagSet) {}

func (c *compactCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	result, err := maintenance.NewService(s.repo, c.app.logger).Compact()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Compacted: %d -> %d bytes (%d reclaimed)\n",
		result.SizeBefore, result.SizeAfter, result.Reclaimed)
	return c.app.done(c.Name())
}

type doctorCmd struct {
	app *app
}

func (*doctorCmd) Name() string     { return "doctor" }
func (*doctorCmd) Synopsis() string { return "run database consistency checks" }
func (*doctorCmd) Usage() string {
	return `treeline doctor

  Checks for orphaned rows, duplicate fingerprints and suspicious
  dates. Exits nonzero when a non-informational check fails.
`
}

func (*doctorCmd) SetFlags(*flag.FlagSet) {}

func (c *doctorCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	checks, err := maintenance.NewService(s.repo, c.app.logger).Doctor()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	failed := 0
	for _, check := range checks {
		mark := "ok"
		if !check.OK() {
			mark = "FAIL"
			failed++
		} else if check.Informational && check.Count > 0 {
			mark = "info"
		}
		fmt.Printf("%-28s %-5s %6d  %s\n", check.Name, mark, check.Count, check.Description)
	}
	if failed > 0 {
		return c.app.fail(c.Name(), fmt.Errorf("%d checks failed", failed))
	}
	return c.app.done(c.Name())
}

type statusCmd struct {
	app *app
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show database status" }
func (*statusCmd) Usage() string {
	return `treeline status
`
}

func (*statusCmd) SetFlags(*flag.FlagSet) {}

func (c *statusCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	status, err := maintenance.NewService(s.repo, c.app.logger).Status(s.encrypted)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := printJSON(status); err != nil {
		return c.app.fail(c.Name(), err)
	}
	return c.app.done(c.Name())
}
