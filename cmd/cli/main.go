package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/agentgrid/internal/app"
	"github.com/vk/agentgrid/internal/cli"
	"github.com/vk/agentgrid/internal/hcl"
)

// main is the entrypoint for the agentgrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// A panic while building the model is reported as an error so the
	// process still exits with a message.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	switch inv.Command {
	case cli.CommandOperators:
		return cli.PrintOperators(outW, app.Operators())
	case cli.CommandBatch:
		a := app.NewApp(outW, inv.Config, hcl.NewLoader())
		results, err := a.RunBatch(ctx)
		if err != nil {
			return err
		}
		return cli.PrintBatch(outW, results)
	default:
		return app.NewApp(outW, inv.Config, hcl.NewLoader()).Run(ctx)
	}
}
