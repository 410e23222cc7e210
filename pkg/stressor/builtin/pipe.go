package builtin

import (
	"os"

	"github.com/cuemby/hammer/pkg/stressor"
)

// pipeEntry shuttles fixed-size messages through an OS pipe between two
// goroutines inside the worker, exercising the kernel pipe buffer and
// context-switch path between reader and writer.
func pipeEntry() stressor.Entry {
	return stressor.Entry{
		ID:         4,
		Name:       "pipe",
		ClassMask:  stressor.ClassPipe | stressor.ClassIO,
		VerifyMode: stressor.VerifyOptional,
		Run:        runPipe,
	}
}

const pipeMsgSize = 4096

func runPipe(args *stressor.Args) stressor.ExitCode {
	r, w, err := os.Pipe()
	if err != nil {
		return stressor.NoResource
	}
	defer r.Close()
	defer w.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, pipeMsgSize)
		for {
			if _, err := r.Read(buf); err != nil {
				return
			}
		}
	}()

	msg := make([]byte, pipeMsgSize)
	for args.Continue() {
		if _, err := w.Write(msg); err != nil {
			break
		}
		*args.Counter++
		if args.MaxOps != 0 && *args.Counter >= args.MaxOps {
			break
		}
	}
	w.Close()
	<-done
	return stressor.Success
}
