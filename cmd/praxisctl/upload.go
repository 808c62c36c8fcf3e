package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/praxis-intake/internal/adapters/apiclient"
	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/core/usecase"
)

func runUpload(ctx context.Context, args []string, out io.Writer) error {
	fs, server := newFlagSet("upload", out)
	description := fs.StringP("description", "d", "", "dataset description shared by every file")
	descriptionFile := fs.String("description-file", "", "read the description from a file")
	drops := fs.IntSlice("drop", nil, "remove the staged file at this index before submitting (repeatable)")
	maxBytes := fs.Int64("max-bytes", domain.DefaultMaxFileBytes, "per-file size ceiling")
	noWait := fs.Bool("no-wait", false, "return after the batch is accepted")
	interval := fs.Duration("poll-interval", 2*time.Second, "status polling interval")
	timeout := fs.Duration("timeout", 15*time.Minute, "give up following submissions after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: upload needs at least one file or folder", errUsage)
	}

	desc, err := readDescription(*description, *descriptionFile)
	if err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "praxisctl-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	files := make([]domain.BatchFile, 0, fs.NArg())
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, path := range fs.Args() {
		f, closer, err := apiclient.OpenLocal(path, tmpDir)
		if err != nil {
			return err
		}
		closers = append(closers, closer)
		files = append(files, f)
	}

	limits := domain.DefaultBatchLimits()
	limits.MaxFileBytes = *maxBytes
	selection := usecase.NewSelection(limits)
	if err := selection.Add(files...); err != nil {
		return err
	}
	if skipped := len(files) - selection.Len(); skipped > 0 {
		fmt.Fprintf(out, "skipped %d non-archive file(s)\n", skipped)
	}
	if err := dropStaged(selection, *drops); err != nil {
		return err
	}

	staged := selection.Files()
	printStaged(out, staged)
	if err := usecase.ValidateBatch(staged, desc, limits); err != nil {
		return err
	}

	client := apiclient.New(*server, nil)
	receipt, err := client.SubmitBatch(ctx, staged, desc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "batch %s accepted with %d submission(s)\n", receipt.BatchID, len(receipt.Submissions))
	if *noWait {
		printSubmissions(out, receipt.Submissions)
		return nil
	}

	ids := make([]string, 0, len(receipt.Submissions))
	for _, sub := range receipt.Submissions {
		ids = append(ids, sub.ID)
	}
	awaitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	settled, err := client.Await(awaitCtx, ids, *interval, func(sub domain.Submission) {
		if sub.Status.Terminal() {
			fmt.Fprintln(out, formatSubmission(sub))
		}
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, sub := range settled {
		if sub.Status == domain.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submission(s) failed", failed, len(settled))
	}
	return nil
}

// dropStaged removes indexes highest first so earlier indexes stay valid.
func dropStaged(selection *usecase.Selection, indexes []int) error {
	if len(indexes) == 0 {
		return nil
	}
	sorted := append([]int(nil), indexes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	last := -1
	for _, idx := range sorted {
		if idx == last {
			continue
		}
		if err := selection.Remove(idx); err != nil {
			return err
		}
		last = idx
	}
	return nil
}

func readDescription(inline, path string) (string, error) {
	if path == "" {
		return inline, nil
	}
	if inline != "" {
		return "", fmt.Errorf("%w: use either --description or --description-file", errUsage)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read description: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
