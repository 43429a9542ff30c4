// Package graph implements the build graph: file nodes that know how
// to compute their own up-to-date-ness (FileExistsNode,
// FileProcessNode, SystemCommandNode), a NodeStore that lets a tree of
// registry files share those nodes by output path, and the line-
// oriented deps-file loader that feeds extra dependencies back into a
// FileProcessNode.
package graph

import (
	"context"
	"time"

	"github.com/grailbio/respire/sched"
)

// FileInfo describes one output of a FileInfoNode as of the last time
// it was computed.
type FileInfo struct {
	Path string
	// LastModified is nil if the file does not exist.
	LastModified *time.Time
	// SoftOutput is true if this output is one a FileInfoNode is
	// allowed to leave unmodified by a build command (e.g. a log file
	// a command only appends to on some runs).
	SoftOutput bool
}

// FileOutput is the result of computing a FileInfoNode's outputs:
// either the up-to-date FileInfo for each output (in output-path
// order) or the error that prevented computing them.
type FileOutput struct {
	Values []FileInfo
	Err    error
}

// SingleFileOutput builds a one-element FileOutput, the common case
// for file-existence checks and single-output commands.
func SingleFileOutput(path string, lastModified *time.Time, soft bool) FileOutput {
	return FileOutput{Values: []FileInfo{{Path: path, LastModified: lastModified, SoftOutput: soft}}}
}

// errorFileOutput builds a FileOutput carrying only an error.
func errorFileOutput(err error) FileOutput {
	return FileOutput{Err: err}
}

// FileInfoNode is any node in the build graph that can report the
// current state of one or more output files, recomputing them (by
// running a command, or just stat-ing a file) only when necessary.
type FileInfoNode interface {
	// GetFileInfo returns a future for this node's current FileOutput.
	// If dryRun is true, no command this node owns is actually
	// executed; the result instead predicts what the real run would
	// produce, using synthesized timestamps for anything that would
	// have been rebuilt.
	GetFileInfo(ctx context.Context, dryRun bool) *sched.Future[FileOutput]

	// OrderedOutputPaths returns this node's output paths in the same
	// order FileOutput.Values will appear in once computed.
	OrderedOutputPaths() []string
}

// FileInfoNodeOutput addresses one specific output of a FileInfoNode:
// Node may produce several outputs, and Index selects which one.
type FileInfoNodeOutput struct {
	Node  FileInfoNode
	Index int
}
