package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
)

type backupCmd struct {
	app *app
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "create a backup" }
func (*backupCmd) Usage() string {
	return `treeline backup

  Writes a ZIP archive of the database, settings and encryption
  sidecar into the backups directory.
`
}

func (*backupCmd) SetFlags(*flag.FlagSet) {}

func (c *backupCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	backups, err := c.app.activeBackupService()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	info, err := backups.Create()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Created %s (%d bytes)\n", info.Name, info.Size)
	return c.app.done(c.Name())
}

type listBackupsCmd struct {
	app *app
}

func (*listBackupsCmd) Name() string     { return "backups" }
func (*listBackupsCmd) Synopsis() string { return "list backups, newest first" }
func (*listBackupsCmd) Usage() string {
	return `treeline backups
`
}

func (*listBackupsCmd) SetFlags(*flag.FlagSet) {}

func (c *listBackupsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	backups, err := c.app.activeBackupService()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	infos, err := backups.List()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCREATED\tSIZE")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\n", info.Name, info.CreatedAt.Format("2006-01-02 15:04:05"), info.Size)
	}
	w.Flush()
	return c.app.done(c.Name())
}

type restoreCmd struct {
	app *app
}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "restore a backup" }
func (*restoreCmd) Usage() string {
	return `treeline restore <name>

  Restores a backup by name. The current database is backed up first.
`
}

func (*restoreCmd) SetFlags(*flag.FlagSet) {}

func (c *restoreCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a backup name is required")
		return subcommands.ExitUsageError
	}
	backups, err := c.app.activeBackupService()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := backups.Restore(f.Arg(0)); err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Restored %s\n", f.Arg(0))
	return c.app.done(c.Name())
}

type pruneBackupsCmd struct {
	app  *app
	keep int
}

func (*pruneBackupsCmd) Name() string     { return "prune-backups" }
func (*pruneBackupsCmd) Synopsis() string { return "delete old backups beyond a retention count" }
func (*pruneBackupsCmd) Usage() string {
	return `treeline prune-backups [-keep <n>]
`
}

func (c *pruneBackupsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.keep, "keep", 10, "Backups to keep, newest first.")
}

func (c *pruneBackupsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	backups, err := c.app.activeBackupService()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	deleted, err := backups.Prune(c.keep)
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	for _, name := range deleted {
		fmt.Println("Deleted", name)
	}
	fmt.Printf("Pruned %d backups\n", len(deleted))
	return c.app.done(c.Name())
}

type clearBackupsCmd struct {
	app *app
}

func (*clearBackupsCmd) Name() string     { return "clear-backups" }
func (*clearBackupsCmd) Synopsis() string { return "delete every backup" }
func (*clearBackupsCmd) Usage() string {
	return `treeline clear-backups
`
}

func (*clearBackupsCmd) SetFlags(*flag.FlagSet) {}

func (c *clearBackupsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	backups, err := c.app.activeBackupService()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	count, err := backups.Clear()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Printf("Deleted %d backups\n", count)
	return c.app.done(c.Name())
}
