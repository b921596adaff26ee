package main

import (
	"context"
	"flag"
	"github.com/1f349/bluebell/logger"
	"github.com/1f349/bluebell/zone"
	"github.com/google/subcommands"
	"github.com/spf13/afero"
	"os"
)

type checkZoneCmd struct{ quiet bool }

func (c *checkZoneCmd) Name() string { return "check-zone" }

func (c *checkZoneCmd) Synopsis() string { return "Validate a zone file" }

func (c *checkZoneCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.quiet, "q", false, "only report errors")
}

func (c *checkZoneCmd) Usage() string {
	return `check-zone [-q] <origin> <zone file>
  Parse a zone file and print it back in canonical form
`
}

func (c *checkZoneCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	z, err := zone.Load(afero.NewOsFs(), f.Arg(0), f.Arg(1))
	if err != nil {
		logger.Logger.Error("Invalid zone", "err", err)
		return subcommands.ExitFailure
	}
	logger.Logger.Info("Zone is valid", "zone", z.Origin(), "serial", z.Serial(), "rrsets", z.Len())
	if !c.quiet {
		if err := z.WriteZoneFile(os.Stdout); err != nil {
			logger.Logger.Error("Failed to write zone", "err", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}
