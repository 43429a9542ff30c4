package graph

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/sched"
)

// StatFunc reports a path's last-modified time, or (nil, nil) if the
// path does not exist. Any other error is treated as a genuine
// failure to determine the file's state.
type StatFunc func(path string) (*time.Time, error)

// OSStat is the default StatFunc, backed by os.Stat.
func OSStat(path string) (*time.Time, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := info.ModTime()
	return &t, nil
}

// FileExistsNode is a leaf FileInfoNode over a file respire does not
// know how to produce: an original source file, or anything reachable
// only because some other node's "in"/"deps" list named it. Its
// result is computed once and cached forever, since nothing in the
// build process can change a FileExistsNode's file out from under it
// mid-build (the original's assumption too: a source file's mtime is
// read exactly once per run).
type FileExistsNode struct {
	path string
	stat StatFunc

	once   sync.Once
	cached FileOutput
}

// NewFileExistsNode returns a FileExistsNode that reports path's
// modification time via stat.
func NewFileExistsNode(path string, stat StatFunc) *FileExistsNode {
	return &FileExistsNode{path: path, stat: stat}
}

func (n *FileExistsNode) GetFileInfo(ctx context.Context, dryRun bool) *sched.Future[FileOutput] {
	n.once.Do(func() {
		n.cached = n.computeFileInfo()
	})
	return sched.Resolved(n.cached, nil)
}

func (n *FileExistsNode) computeFileInfo() FileOutput {
	mtime, err := n.stat(n.path)
	if err != nil {
		return errorFileOutput(errors.E(errors.Other, "stat "+n.path, err))
	}
	if mtime == nil {
		return errorFileOutput(errors.E(errors.NotExist, "file not found: "+n.path))
	}
	return SingleFileOutput(n.path, mtime, false)
}

func (n *FileExistsNode) OrderedOutputPaths() []string {
	return []string{n.path}
}
