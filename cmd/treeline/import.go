package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/treeline-app/treeline/internal/config"
	"github.com/treeline-app/treeline/internal/domain"
	"github.com/treeline-app/treeline/internal/importer"
	"github.com/treeline-app/treeline/internal/tag"
)

type importCmd struct {
	app     *app
	account string
	profile string
	preview bool
	tags    string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import transactions from a CSV file" }
func (*importCmd) Usage() string {
	return `treeline import -account <id> [-profile <name>] [-preview] [-tags a,b] <file.csv>

  Imports transactions into an account. Columns are auto-detected from
  headers unless a saved profile overrides them. Preview parses and
  classifies without writing.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Target account id.")
	f.StringVar(&c.profile, "profile", "", "Saved import profile to apply.")
	f.BoolVar(&c.preview, "preview", false, "Classify rows without writing.")
	f.StringVar(&c.tags, "tags", "", "Comma-separated tags stamped on every imported row.")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one CSV file is required")
		return subcommands.ExitUsageError
	}
	accountID, err := uuid.Parse(c.account)
	if err != nil {
		return c.app.fail(c.Name(), domain.Errorf(domain.KindValidation, "invalid account id: %v", err))
	}

	s, err := c.app.open()
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer s.Close()

	var profile *config.ImportProfile
	if c.profile != "" {
		p, ok := s.settings.ImportProfiles()[c.profile]
		if !ok {
			return c.app.fail(c.Name(), fmt.Errorf("import profile %q: %w", c.profile, domain.ErrNotFound))
		}
		profile = &p
	}

	file, err := os.Open(f.Arg(0))
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	defer file.Close()

	svc := importer.NewService(s.repo, tag.NewService(s.repo, c.app.logger), c.app.logger)
	result, err := svc.Import(ctx, file, importer.Options{
		AccountID: accountID,
		Profile:   profile,
		Preview:   c.preview,
		Tags:      splitTags(c.tags),
	})
	if err != nil {
		return c.app.fail(c.Name(), err)
	}
	if err := printJSON(result); err != nil {
		return c.app.fail(c.Name(), err)
	}
	return c.app.done(c.Name())
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
