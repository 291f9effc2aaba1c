package main

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	"github.com/morikuni/failure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/sters/fragfinder/fragfinder"
	"github.com/sters/fragfinder/fragfinder/mysql"
)

type selectionFlags struct {
	schemas   []string
	engines   []string
	minFree   string
	minRatio  float64
	threshold string
	mode      string
}

func (f *selectionFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.schemas, "schema", nil, "only scan these databases (repeatable)")
	fs.StringSliceVar(&f.engines, "engine", nil, "only consider these engines: MyISAM, InnoDB, Aria (repeatable)")
	fs.StringVar(&f.minFree, "min-free", "0", "only tables with more free space than this, e.g. 10MB")
	fs.Float64Var(&f.minRatio, "min-ratio", 0, "only tables with at least this share of free space, in percent")
	fs.StringVar(&f.threshold, "threshold", fragfinder.FormatBytes(fragfinder.DefaultThreshold), "size separating small tables from big ones")
	fs.StringVar(&f.mode, "mode", string(fragfinder.ModeAll), "which tables to select: all, small or big")
}

func (f *selectionFlags) criteria() (fragfinder.Criteria, error) {
	c := fragfinder.Criteria{MinRatio: f.minRatio}

	mode, err := fragfinder.ParseMode(f.mode)
	if err != nil {
		return c, err
	}
	c.Mode = mode

	if c.MinFree, err = parseSize("min-free", f.minFree); err != nil {
		return c, err
	}
	if c.Threshold, err = parseSize("threshold", f.threshold); err != nil {
		return c, err
	}

	for _, name := range f.engines {
		e, ok := fragfinder.ParseEngine(name)
		if !ok {
			return c, failure.New(fragfinder.ErrInvalidArgument,
				failure.Messagef("engine %s cannot be optimized, want MyISAM, InnoDB or Aria", name),
			)
		}
		c.Engines = append(c.Engines, e)
	}

	return c, nil
}

func parseSize(flag, s string) (int64, error) {
	n, err := fragfinder.ParseBytes(s)
	if err != nil || n < 0 {
		return 0, failure.New(fragfinder.ErrInvalidArgument,
			failure.Messagef("invalid size %q for --%s", s, flag),
		)
	}

	return n, nil
}

func (a *app) listCommand() *cobra.Command {
	var sel selectionFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Report the tables worth optimizing, most free space first",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := sel.criteria()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer a.close(db)

			tables, err := a.scan(ctx, db, sel.schemas, c)
			if err != nil {
				return err
			}

			fragfinder.WriteTables(a.stdout, tables, c)

			return nil
		},
	}
	sel.register(cmd.Flags())

	return cmd
}

// scan reads the table status of the server and returns the selected tables.
func (a *app) scan(ctx context.Context, db *mysql.Adapter, schemas []string, c fragfinder.Criteria) ([]*fragfinder.Table, error) {
	version, err := db.Version(ctx)
	if err != nil {
		return nil, err
	}
	a.log.WithField("version", version).Info("connected")

	// A schema asked for by name is scanned even if it is a system schema.
	if len(schemas) > 0 {
		db.IncludeSystem = true
	}

	dbs, err := fragfinder.Scan(ctx, db, schemas)
	if err != nil {
		return nil, err
	}
	if a.log.IsLevelEnabled(logrus.DebugLevel) {
		a.log.Debug(spew.Sdump(dbs))
	}

	all := fragfinder.Tables(dbs)
	selected := fragfinder.Select(all, c)
	a.log.WithFields(logrus.Fields{
		"databases": len(dbs),
		"tables":    len(all),
		"selected":  len(selected),
		"mode":      c.Mode,
		"threshold": fragfinder.FormatBytes(c.Threshold),
	}).Info("scan complete")

	return selected, nil
}
