package main

import (
	"fmt"

	"github.com/morikuni/failure"
	"github.com/spf13/cobra"
	"github.com/sters/fragfinder/fragfinder"
)

func (a *app) optimizeCommand() *cobra.Command {
	var (
		sel     selectionFlags
		workers int
		dryRun  bool
		local   bool
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run OPTIMIZE TABLE on the selected tables",
		Long: `optimize selects tables the same way list does and runs OPTIMIZE TABLE
on each of them, most free space first. A failing table is reported
and the remaining tables are still optimized.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := sel.criteria()
			if err != nil {
				return err
			}
			if workers < 1 {
				return failure.New(fragfinder.ErrInvalidArgument,
					failure.Messagef("--workers must be at least 1, got %d", workers),
				)
			}

			ctx := cmd.Context()
			db, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer a.close(db)
			db.SetMaxOpenConns(workers)

			tables, err := a.scan(ctx, db, sel.schemas, c)
			if err != nil {
				return err
			}

			o := &fragfinder.Optimizer{
				Adapter: db,
				Workers: workers,
				DryRun:  dryRun,
				Options: fragfinder.OptimizeOptions{NoWriteToBinlog: local},
				Log:     a.log,
			}
			s := o.Run(ctx, tables)

			fragfinder.WriteResults(a.stdout, s)
			fmt.Fprintln(a.stdout, fragfinder.WrapUp(s))

			return s.Err()
		},
	}

	sel.register(cmd.Flags())
	cmd.Flags().IntVar(&workers, "workers", 1, "number of tables optimized at the same time")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "only show what would be optimized")
	cmd.Flags().BoolVar(&local, "local", false, "use NO_WRITE_TO_BINLOG so replicas do not repeat the work")

	return cmd
}
