package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kirillkom/praxis-intake/internal/config"
)

const defaultServer = "http://localhost:8080"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var errUsage = errors.New("usage")

func commands() []command {
	return []command{
		{name: "upload", summary: "stage files or folders, submit them as one batch and follow the results", run: runUpload},
		{name: "status", summary: "show tracked submissions by id", run: runStatus},
		{name: "list", summary: "list submissions tracked by the api", run: runList},
		{name: "history", summary: "list the durable result log", run: runHistory},
		{name: "analyze", summary: "send a dataset description to the classifier", run: runAnalyze},
	}
}

func main() {
	_ = config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(errOut)
		return 2
	}
	for _, cmd := range commands() {
		if cmd.name != args[0] {
			continue
		}
		err := cmd.run(ctx, args[1:], out)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, pflag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			fmt.Fprintln(errOut, failureColor.Sprint("error: "), err)
			return 2
		default:
			fmt.Fprintln(errOut, failureColor.Sprint("error: "), describeError(err))
			return 1
		}
	}
	fmt.Fprintf(errOut, "unknown command %q\n\n", args[0])
	printUsage(errOut)
	return 2
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: praxisctl <command> [flags]")
	fmt.Fprintln(w)
	for _, cmd := range commands() {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
}

func newFlagSet(name string, out io.Writer) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	server := fs.StringP("server", "s", envOr("PRAXIS_API_URL", defaultServer), "praxis api base url")
	return fs, server
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
