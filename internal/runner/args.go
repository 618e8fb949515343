package runner

import (
	"path/filepath"
	"strconv"
)

// PrefetchOptions configures the prefetch invocation.
type PrefetchOptions struct {
	Program  string
	OutDir   string
	MaxSize  string
	LogLevel string
}

// PrefetchArgs builds the argument vector for fetching one run.
func PrefetchArgs(opts PrefetchOptions, run string) []string {
	var args []string
	if opts.MaxSize != "" {
		args = append(args, "-X", opts.MaxSize)
	}
	if opts.LogLevel != "" {
		args = append(args, "-L", opts.LogLevel)
	}
	if opts.OutDir != "" {
		args = append(args, "-O", opts.OutDir)
	}
	return append(args, run)
}

// FasterqOptions configures the fasterq-dump invocation.
type FasterqOptions struct {
	Program    string
	OutDir     string
	Threads    int
	SplitFiles bool
	LogLevel   string
}

// FasterqDumpArgs builds the argument vector for converting a prefetched run
// stored under sraDir.
func FasterqDumpArgs(opts FasterqOptions, sraDir, run string) []string {
	var args []string
	if opts.SplitFiles {
		args = append(args, "--split-files")
	}
	if opts.Threads > 0 {
		args = append(args, "-e", strconv.Itoa(opts.Threads))
	}
	if opts.LogLevel != "" {
		args = append(args, "-L", opts.LogLevel)
	}
	if opts.OutDir != "" {
		args = append(args, "-O", opts.OutDir)
	}
	return append(args, SRAPath(sraDir, run))
}

// SRAPath is where prefetch leaves the archive for run.
func SRAPath(dir, run string) string {
	return filepath.Join(dir, run, run+".sra")
}
