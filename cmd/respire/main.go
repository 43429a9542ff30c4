// Command respire is an incremental, parallel build engine driven by
// JSON registry files: see the respire package tree for the build
// graph, parser, and activity log that back it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/respire/activitylog"
	"github.com/grailbio/respire/build"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  respire [-j N] [-o] [-oo] INITIAL_REGISTRY_FILE")
}

// dedupeBackslashes collapses every run of two backslashes in input
// into one, the same normalization the original applies to its final
// positional argument before treating it as a path: a caller quoting a
// Windows-style path through a shell that already escapes backslashes
// once would otherwise see them doubled again by respire itself.
func dedupeBackslashes(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); i++ {
		b.WriteByte(input[i])
		if input[i] == '\\' && i+1 < len(input) && input[i+1] == '\\' {
			i++
		}
	}
	return b.String()
}

type commandLineParams struct {
	numThreads       int
	activityLogLevel activitylog.Level
	initialFilePath  string
}

// parseArgs parses args (excluding the program name), matching the
// original's grammar: zero or more of "-j N", "-o", "-oo" in any
// order, followed by exactly one positional registry path. Unlike the
// original, "-j"'s argument is read as the flag immediately
// following it, not hardcoded to position 2.
func parseArgs(args []string) (commandLineParams, bool) {
	if len(args) < 1 {
		return commandLineParams{}, false
	}

	params := commandLineParams{numThreads: 1}
	positional := args[:len(args)-1]

	for i := 0; i < len(positional); i++ {
		switch positional[i] {
		case "-j":
			if i+1 >= len(positional) {
				return commandLineParams{}, false
			}
			n, err := strconv.Atoi(positional[i+1])
			if err != nil {
				return commandLineParams{}, false
			}
			params.numThreads = n
			i++
		case "-o":
			params.activityLogLevel = activitylog.ProcessExecutionOnly
		case "-oo":
			params.activityLogLevel = activitylog.All
		default:
			return commandLineParams{}, false
		}
	}

	params.initialFilePath = dedupeBackslashes(args[len(args)-1])
	return params, true
}

func main() {
	flag.Usage = usage

	params, ok := parseArgs(os.Args[1:])
	if !ok {
		usage()
		os.Exit(1)
	}

	env := build.NewEnvironment(build.Options{
		NumThreads:        params.numThreads,
		ActivityLogLevel:  params.activityLogLevel,
		ActivityLogWriter: os.Stdout,
	})
	defer env.Close()

	if err := build.Targets(context.Background(), env, params.initialFilePath); err != nil {
		if log := env.ActivityLog(); log != nil {
			log.SignalRespireError(err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
