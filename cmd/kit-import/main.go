// Command kit-import validates and commits kit spreadsheets from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lambari-service/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(config.Load(), config.InitDB)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
