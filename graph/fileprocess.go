package graph

import (
	"context"
	"time"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/sched"
	"golang.org/x/sync/errgroup"
)

// ProcessLog receives the lifecycle signals a FileProcessNode emits
// while bringing its outputs up to date. A nil ProcessLog is valid:
// FileProcessNode skips every call in that case.
type ProcessLog interface {
	SignalStartDependencyScan(dryRun bool)
	SignalStartRunningCommand(dryRun bool)
	SignalProcessingComplete(err error, dryRun bool)
}

// GetDepsFunc returns extra input dependencies discovered after the
// command has already run once (e.g. the #include list a compiler
// emitted into a deps file on a prior build). ok is false if the extra
// dependencies could not be determined, which FileProcessNode treats
// the same as one of them being out of date.
type GetDepsFunc func(ctx context.Context) (deps []FileInfoNodeOutput, ok bool)

// FileProcessNode is a FileInfoNode whose outputs are produced by
// running command against a set of input nodes. It only actually runs
// command when an output is missing, or when an input (or an extra
// dependency reported by getDeps) is at least as new as the oldest
// output.
type FileProcessNode struct {
	inputs          []FileInfoNodeOutput
	outputFiles     []string
	softOutputFiles []string
	command         func(ctx context.Context) error
	getDeps         GetDepsFunc
	log             ProcessLog
	stat            StatFunc

	consumer *sched.PushPullConsumer[bool, FileOutput]

	cachedOutput     FileOutput
	cachedOutputSet  bool
	cachedOutputFake bool
}

// NewFileProcessNode constructs a FileProcessNode. getDeps and log may
// be nil.
func NewFileProcessNode(
	inputs []FileInfoNodeOutput,
	outputFiles []string,
	softOutputFiles []string,
	command func(ctx context.Context) error,
	getDeps GetDepsFunc,
	log ProcessLog,
	stat StatFunc,
) *FileProcessNode {
	n := &FileProcessNode{
		inputs:          inputs,
		outputFiles:     outputFiles,
		softOutputFiles: softOutputFiles,
		command:         command,
		getDeps:         getDeps,
		log:             log,
		stat:            stat,
	}
	n.consumer = sched.NewPushPullConsumer(func(ctx context.Context, dryRun bool) (FileOutput, error) {
		return n.handleRequest(ctx, dryRun), nil
	})
	return n
}

func (n *FileProcessNode) GetFileInfo(ctx context.Context, dryRun bool) *sched.Future[FileOutput] {
	return n.consumer.Push(ctx, dryRun)
}

func (n *FileProcessNode) OrderedOutputPaths() []string {
	paths := make([]string, 0, len(n.outputFiles)+len(n.softOutputFiles))
	paths = append(paths, n.outputFiles...)
	paths = append(paths, n.softOutputFiles...)
	return paths
}

// handleRequest runs on the consumer's single drain goroutine, so no
// two calls for this node are ever concurrent: cachedOutput is safe to
// read and write without further synchronization.
func (n *FileProcessNode) handleRequest(ctx context.Context, dryRun bool) FileOutput {
	if !n.cachedOutputSet || (!dryRun && n.cachedOutputFake) {
		output, fake := n.computeFileOutput(ctx, dryRun)
		n.cachedOutput = output
		n.cachedOutputSet = true
		n.cachedOutputFake = fake
	}
	return n.cachedOutput
}

func (n *FileProcessNode) statAll(paths []string) []*time.Time {
	times := make([]*time.Time, len(paths))
	for i, p := range paths {
		// Errors stating an output path are treated the same as the
		// output not existing: either way the node must rebuild it.
		t, _ := n.stat(p)
		times[i] = t
	}
	return times
}

// waitAll joins a set of pending FileInfoNode futures, fanning the
// wait for each one's resolution out across goroutines so a slow
// input doesn't stall checking the others. A failed wait (e.g. ctx
// canceled) cancels the rest via the errgroup's context; an error an
// input carries in its FileOutput is returned in results, not as err.
func waitAll(ctx context.Context, futures []*sched.Future[FileOutput]) ([]FileOutput, error) {
	results := make([]FileOutput, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		i, f := i, f
		g.Go(func() error {
			out, err := f.Get(gctx)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// anyNewerThanOutputs reports whether any input is newer (or, if
// newerOrEqual, at least as new) than the oldest output, or whether
// any output is simply missing.
func anyNewerThanOutputs(
	inputs []FileInfoNodeOutput,
	inputResults []FileOutput,
	outputTimes []*time.Time,
	newerOrEqual bool,
) bool {
	var oldestOutput *time.Time
	for _, t := range outputTimes {
		if t == nil {
			return true
		}
		if oldestOutput == nil || t.Before(*oldestOutput) {
			oldestOutput = t
		}
	}

	for i, input := range inputs {
		info := inputResults[i].Values[input.Index]
		if info.LastModified == nil {
			return true
		}
		if newerOrEqual {
			if !info.LastModified.Before(*oldestOutput) {
				return true
			}
		} else if info.LastModified.After(*oldestOutput) {
			return true
		}
	}
	return false
}

func (n *FileProcessNode) computeFileOutput(ctx context.Context, dryRun bool) (FileOutput, bool) {
	if n.log != nil {
		n.log.SignalStartDependencyScan(dryRun)
	}

	inputFutures := make([]*sched.Future[FileOutput], len(n.inputs))
	for i, input := range n.inputs {
		inputFutures[i] = input.Node.GetFileInfo(ctx, dryRun)
	}

	outputTimes := n.statAll(n.outputFiles)

	inputResults, err := waitAll(ctx, inputFutures)
	if err != nil {
		out := errorFileOutput(err)
		n.logComplete(err, dryRun)
		return out, false
	}
	for _, result := range inputResults {
		if result.Err != nil {
			n.logComplete(result.Err, dryRun)
			return result, false
		}
	}

	shouldRebuild := anyNewerThanOutputs(n.inputs, inputResults, outputTimes, true)
	if !shouldRebuild && n.getDeps != nil {
		deps, ok := n.getDeps(ctx)
		if !ok {
			shouldRebuild = true
		} else {
			depFutures := make([]*sched.Future[FileOutput], len(deps))
			for i, dep := range deps {
				depFutures[i] = dep.Node.GetFileInfo(ctx, false)
			}
			depResults, err := waitAll(ctx, depFutures)
			if err != nil {
				shouldRebuild = true
			} else {
				for _, result := range depResults {
					if result.Err != nil {
						shouldRebuild = true
						break
					}
				}
				if !shouldRebuild {
					shouldRebuild = anyNewerThanOutputs(deps, depResults, outputTimes, true)
				}
			}
		}
	}

	fakeDryRun := false
	if shouldRebuild {
		if n.log != nil {
			n.log.SignalStartRunningCommand(dryRun)
		}

		if !dryRun {
			if err := n.command(ctx); err != nil {
				wrapped := errors.E(errors.Other, "Error executing command", err)
				n.logComplete(wrapped, dryRun)
				return errorFileOutput(wrapped), false
			}

			outputTimes = n.statAll(n.outputFiles)
			if anyNewerThanOutputs(n.inputs, inputResults, outputTimes, false) {
				err := errors.E(errors.Precondition,
					"not all output files were modified by the command; "+
						"specify soft outputs instead if this is intentional")
				n.logComplete(err, dryRun)
				return errorFileOutput(err), false
			}
		} else {
			fakeDryRun = true
			now := time.Now()
			for i := range outputTimes {
				outputTimes[i] = &now
			}
		}
	}

	values := make([]FileInfo, 0, len(n.outputFiles)+len(n.softOutputFiles))
	for i, path := range n.outputFiles {
		values = append(values, FileInfo{Path: path, LastModified: outputTimes[i], SoftOutput: false})
	}

	if !dryRun || !shouldRebuild {
		for _, path := range n.softOutputFiles {
			t, _ := n.stat(path)
			values = append(values, FileInfo{Path: path, LastModified: t, SoftOutput: true})
		}
	} else {
		fakeDryRun = true
		now := time.Now()
		for _, path := range n.softOutputFiles {
			values = append(values, FileInfo{Path: path, LastModified: &now, SoftOutput: true})
		}
	}

	n.logComplete(nil, dryRun)
	return FileOutput{Values: values}, fakeDryRun
}

func (n *FileProcessNode) logComplete(err error, dryRun bool) {
	if n.log != nil {
		n.log.SignalProcessingComplete(err, dryRun)
	}
}
