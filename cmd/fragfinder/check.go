package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect, print the server version and disconnect",
		Args:  noArgs,
		RunE:  a.runCheck,
	}
}

// runCheck is read-only: it runs SELECT VERSION() and nothing else.
func (a *app) runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer a.close(db)

	version, err := db.Version(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Database version : %s \n", version)

	return nil
}
