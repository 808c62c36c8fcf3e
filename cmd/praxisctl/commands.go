package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kirillkom/praxis-intake/internal/adapters/apiclient"
)

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	fs, server := newFlagSet("status", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: status needs at least one submission id", errUsage)
	}

	client := apiclient.New(*server, nil)
	for _, id := range fs.Args() {
		sub, err := client.GetSubmission(ctx, id)
		if err != nil {
			return fmt.Errorf("submission %s: %w", id, err)
		}
		fmt.Fprintln(out, formatSubmission(*sub))
	}
	return nil
}

func runList(ctx context.Context, args []string, out io.Writer) error {
	fs, server := newFlagSet("list", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	subs, err := apiclient.New(*server, nil).ListSubmissions(ctx)
	if err != nil {
		return err
	}
	printSubmissions(out, subs)
	return nil
}

func runHistory(ctx context.Context, args []string, out io.Writer) error {
	fs, server := newFlagSet("history", out)
	limit := fs.IntP("limit", "n", 50, "number of rows to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subs, err := apiclient.New(*server, nil).History(ctx, *limit)
	if err != nil {
		return err
	}
	printSubmissions(out, subs)
	return nil
}

func runAnalyze(ctx context.Context, args []string, out io.Writer) error {
	fs, server := newFlagSet("analyze", out)
	description := fs.StringP("description", "d", "", "dataset description")
	descriptionFile := fs.String("description-file", "", "read the description from a file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	desc, err := readDescription(*description, *descriptionFile)
	if err != nil {
		return err
	}

	raw, err := apiclient.New(*server, nil).AnalyzeDescription(ctx, desc)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = out.Write(raw)
		return err
	}
	fmt.Fprintln(out, pretty.String())
	return nil
}
