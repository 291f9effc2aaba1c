package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/morikuni/failure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sters/fragfinder/fragfinder"
	"github.com/sters/fragfinder/fragfinder/config"
	"github.com/sters/fragfinder/fragfinder/mysql"
)

type connector func(ctx context.Context, cfg *config.Config) (*mysql.Adapter, error)

type app struct {
	stdout  io.Writer
	stderr  io.Writer
	connect connector
	v       *viper.Viper
	log     *logrus.Logger
	logFile *os.File

	defaultsFile  string
	includeSystem bool
	verbose       bool
	logPath       string
	logFormat     string
}

// run executes the command line in args and returns the process exit code.
// Every error ends up here and is printed once, on stdout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, connect connector) int {
	a := &app{
		stdout:  stdout,
		stderr:  stderr,
		connect: connect,
		v:       viper.New(),
		log:     logrus.New(),
	}
	defer a.closeLog()

	cmd, err := a.rootCommand()
	if err == nil {
		cmd.SetArgs(args)
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		err = cmd.ExecuteContext(ctx)
	}
	if err != nil {
		fmt.Fprintln(stdout, mysql.ErrorLine(err))
		return 1
	}

	return 0
}

func (a *app) rootCommand() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:   "fragfinder",
		Short: "Find fragmented MySQL/MariaDB tables and optimize them",
		Long: `fragfinder reads the table status of every database on a MySQL or
MariaDB server and reports tables whose free space can be reclaimed
with OPTIMIZE TABLE. Without a subcommand it only checks the
connection and prints the server version.`,
		Args:              noArgs,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runCheck,
	}
	root.SetFlagErrorFunc(flagError)

	pf := root.PersistentFlags()
	// -h is --host as in the mysql client, so help gets no shorthand.
	pf.Bool("help", false, "help for fragfinder")
	pf.StringVar(&a.defaultsFile, "defaults-file", "", "option file to read instead of ~/.my.cnf")
	pf.BoolVar(&a.includeSystem, "include-system", false, "also scan the mysql, sys and *_schema databases")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.logPath, "log-file", "", "append the log to this file as well")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format, text or json")
	if err := config.BindFlags(a.v, pf); err != nil {
		return nil, err
	}

	root.AddCommand(
		a.checkCommand(),
		a.listCommand(),
		a.optimizeCommand(),
	)

	return root, nil
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	return a.setupLog()
}

func (a *app) config() (*config.Config, error) {
	cfg := config.Default()

	path, required := a.defaultsFile, true
	if path == "" {
		path, required = config.DefaultsFile(), false
	}
	if err := cfg.LoadDefaultsFile(path, required); err != nil {
		return nil, failure.Wrap(err)
	}

	cfg.Apply(a.v)
	if err := cfg.Validate(); err != nil {
		return nil, failure.Wrap(err)
	}

	return cfg, nil
}

func (a *app) open(ctx context.Context) (*mysql.Adapter, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	a.log.WithField("server", cfg.String()).Debug("connecting")
	db, err := a.connect(ctx, cfg)
	if err != nil {
		return nil, failure.Wrap(err)
	}
	db.IncludeSystem = a.includeSystem

	return db, nil
}

func (a *app) close(db *mysql.Adapter) {
	if err := db.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close connection")
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return failure.Translate(err, fragfinder.ErrInvalidArgument, failure.Message(err.Error()))
	}

	return nil
}

func flagError(_ *cobra.Command, err error) error {
	return failure.Translate(err, fragfinder.ErrInvalidArgument, failure.Message(err.Error()))
}
