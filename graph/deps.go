package graph

import (
	"bufio"
	"context"
	"os"
	"strings"
)

// ParseDeps implements a FileProcessNode's GetDepsFunc for an "sc"
// directive's "deps" file: a plain list of paths, one per line (CRLF
// line endings are tolerated by trimming a trailing '\r'), each
// resolved against store as an extra input dependency. It is not a
// JSON file, unlike registry files.
//
// depsNode is the deps file's own FileInfoNode (so that the deps file
// itself is treated as an input: if it's missing, ok is false and the
// caller should rebuild). filename is the same path depsNode reports,
// used to actually read the file's contents.
func ParseDeps(store *NodeStore, depsNode FileInfoNodeOutput, filename string) GetDepsFunc {
	return func(ctx context.Context) ([]FileInfoNodeOutput, bool) {
		result, err := depsNode.Node.GetFileInfo(ctx, false).Get(ctx)
		if err != nil || result.Err != nil {
			return nil, false
		}

		f, err := os.Open(filename)
		if err != nil {
			return nil, false
		}
		defer f.Close()

		var paths []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			paths = append(paths, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, false
		}

		access := store.Access()
		defer access.Unlock()

		deps := make([]FileInfoNodeOutput, 0, len(paths))
		for _, path := range paths {
			deps = append(deps, access.LookupNodeOrMakeFileExistsNode(path))
		}
		return deps, true
	}
}
