package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/keshon/pipebot/internal/command"
	"github.com/keshon/pipebot/internal/pipeline"
)

// terminalRenderer prints outcomes as plain lines. Notices and errors are
// marked so they stand out from command output.
type terminalRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func (r *terminalRenderer) Render(_ context.Context, _ *command.Invoker, out pipeline.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch {
	case out.Notice != "":
		_, err = fmt.Fprintf(r.out, "! %s\n", out.Notice)
	case out.Response.Failed():
		_, err = fmt.Fprintf(r.out, "error: %s\n", out.Response.Error)
	default:
		_, err = fmt.Fprintln(r.out, out.Response.Text())
	}
	return err
}
