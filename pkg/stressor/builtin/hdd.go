package builtin

import (
	"io"
	"os"

	"github.com/cuemby/hammer/pkg/stressor"
)

// hddEntry writes and reads back a scratch file in bursts, exercising the
// filesystem and block-io path (sequential write, fsync, sequential read,
// repeat).
func hddEntry() stressor.Entry {
	return stressor.Entry{
		ID:         3,
		Name:       "hdd",
		ClassMask:  stressor.ClassIO | stressor.ClassFilesystem,
		VerifyMode: stressor.VerifyOptional,
		Run:        runHDD,
	}
}

const hddBufSize = 64 * 1024

func runHDD(args *stressor.Args) stressor.ExitCode {
	f, err := os.CreateTemp("", "hammer-hdd-*")
	if err != nil {
		return stressor.NoResource
	}
	path := f.Name()
	defer os.Remove(path)
	defer f.Close()

	buf := make([]byte, hddBufSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	readBuf := make([]byte, hddBufSize)

	var bytesWritten uint64
	for args.Continue() {
		if _, err := f.WriteAt(buf, 0); err != nil {
			return stressor.Failure
		}
		if err := f.Sync(); err != nil {
			return stressor.Failure
		}
		if _, err := f.ReadAt(readBuf, 0); err != nil && err != io.EOF {
			return stressor.Failure
		}
		bytesWritten += uint64(len(buf))
		*args.Counter++
		if args.MaxOps != 0 && *args.Counter >= args.MaxOps {
			break
		}
	}
	args.Metrics.Set(0, "bytes-written", float64(bytesWritten))
	return stressor.Success
}
