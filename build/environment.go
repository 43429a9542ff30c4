// Package build wires the graph, registry, and activitylog packages
// together into the one entry point respire's CLI needs: given an
// initial registry file path and a set of Options, resolve and build
// every target that file's "build" directives name.
package build

import (
	"context"
	"io"

	"github.com/grailbio/respire/activitylog"
	"github.com/grailbio/respire/graph"
	"github.com/grailbio/respire/sched"
)

// Options configures an Environment. The zero value is the same
// single-threaded, unlogged configuration the original defaults to.
type Options struct {
	// NumThreads bounds how many system commands may run concurrently.
	// Defaults to 1.
	NumThreads int
	// SystemCommandFunction runs one "sc" directive's command. Defaults
	// to graph.RunShellCommand.
	SystemCommandFunction graph.CommandRunner
	// ActivityLogLevel controls how much gets written to ActivityLogWriter.
	ActivityLogLevel activitylog.Level
	// ActivityLogWriter receives activity log events. Ignored if
	// ActivityLogLevel is activitylog.None. Defaults to nil, in which
	// case logging is disabled regardless of ActivityLogLevel.
	ActivityLogWriter io.Writer
}

// Environment bundles one build's shared worker pool and activity log.
// A build's concurrent node resolution itself runs unbounded (each
// node drains its own goroutine as it becomes ready); NumThreads
// instead bounds how many of those nodes may be running an actual
// system command at once, which is the original's num_threads' real
// effect once its fiber scheduler's other work is accounted for by Go
// goroutines directly.
type Environment struct {
	pool   *sched.Pool
	runner graph.CommandRunner
	log    *activitylog.Log
}

// NewEnvironment constructs an Environment from opts, applying
// defaults for any zero-valued field.
func NewEnvironment(opts Options) *Environment {
	numThreads := opts.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}
	base := opts.SystemCommandFunction
	if base == nil {
		base = graph.RunShellCommand
	}

	var log *activitylog.Log
	if opts.ActivityLogLevel != activitylog.None && opts.ActivityLogWriter != nil {
		log = activitylog.New(opts.ActivityLogWriter, opts.ActivityLogLevel)
	}

	// LIFO scheduling favors finishing a dependency chain that has
	// already started over beginning an unrelated one, which keeps the
	// average number of started-but-incomplete builds down; the
	// original documents the same reasoning for its fiber scheduler.
	pool := sched.NewPool(numThreads, sched.LIFO)

	env := &Environment{pool: pool, log: log}
	env.runner = env.boundRunner(base)
	return env
}

// boundRunner wraps base so that at most NumThreads invocations of it
// run concurrently across the whole Environment, by routing each call
// through the worker pool and blocking for its result.
func (e *Environment) boundRunner(base graph.CommandRunner) graph.CommandRunner {
	type result struct {
		exitCode int
		err      error
	}
	return func(ctx context.Context, command string, stdoutFile, stderrFile, stdinFile *string) (int, error) {
		done := make(chan result, 1)
		e.pool.Submit(func() {
			exitCode, err := base(ctx, command, stdoutFile, stderrFile, stdinFile)
			done <- result{exitCode, err}
		})
		select {
		case r := <-done:
			return r.exitCode, r.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// ActivityLog returns the Environment's activity log, or nil if
// logging is disabled.
func (e *Environment) ActivityLog() *activitylog.Log {
	return e.log
}

// Close releases the Environment's worker pool. No further builds
// should be started through it afterward.
func (e *Environment) Close() {
	e.pool.Close()
	e.pool.Wait()
}

// config builds the graph.Config a NodeStore for this Environment
// should use: the bounded command runner, the real filesystem clock,
// and activity-log factories bound to this Environment's log (nil if
// logging is disabled, in which case every node skips logging).
func (e *Environment) config() graph.Config {
	return graph.Config{
		Stat:           graph.OSStat,
		Run:            e.runner,
		NewProcessLog:  activitylog.NewProcessLog(e.log),
		NewRegistryLog: activitylog.NewRegistryLog(e.log),
	}
}
