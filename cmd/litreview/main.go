// Command litreview searches for papers on a topic, reads their PDFs and
// drafts a literature review with an LLM.
//
// A run is split in two: "search" finds and downloads papers, "generate"
// extracts, analyzes and writes the draft. "run" does both in one go.
// Every step is persisted, so an interrupted run continues where it stopped.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
