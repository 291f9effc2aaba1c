package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sters/fragfinder/fragfinder/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, mysql.Open)
	stop()

	os.Exit(code)
}
