package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/treeline-app/treeline/internal/domain"
)

type encryptCmd struct {
	app      *app
	password string
}

func (*encryptCmd) Name() string     { return "encrypt" }
func (*encryptCmd) Synopsis() string { return "encrypt the database with a password" }
func (*encryptCmd) Usage() string {
	return `treeline encrypt [-password <password>]

  Encrypts the database in place. A backup is taken first. The
  password may also come from TL_DB_PASSWORD.
`
}

func (c *encryptCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.password, "password", "", "Encryption password (default TL_DB_PASSWORD).")
}

func (c *encryptCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	password := c.password
	if password == "" {
		password = c.app.cfg.DBPassword
	}

	dbPath := c.app.cfg.DBPath(false)
	enc := c.app.encryptionService(dbPath)
	backups := c.app.backupService(dbPath)

	err := enc.Encrypt(password, func() error {
		_, err := backups.Create()
		return err
	})
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Println("Database encrypted")
	return c.app.done(c.Name())
}

type decryptCmd struct {
	app      *app
	password string
}

func (*decryptCmd) Name() string     { return "decrypt" }
func (*decryptCmd) Synopsis() string { return "remove database encryption" }
func (*decryptCmd) Usage() string {
	return `treeline decrypt [-password <password>]

  Verifies the password, takes a backup, and rewrites the database
  unencrypted.
`
}

func (c *decryptCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.password, "password", "", "Current password (default TL_DB_PASSWORD).")
}

func (c *decryptCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	password := c.password
	if password == "" {
		password = c.app.cfg.DBPassword
	}
	if password == "" {
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "a password is required"))
	}

	dbPath := c.app.cfg.DBPath(false)
	enc := c.app.encryptionService(dbPath)
	backups := c.app.backupService(dbPath)

	err := enc.Decrypt(password, func() error {
		_, err := backups.Create()
		return err
	})
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	fmt.Println("Database decrypted")
	return c.app.done(c.Name())
}
