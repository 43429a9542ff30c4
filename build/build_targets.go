package build

import (
	"context"

	"github.com/grailbio/respire/graph"
)

// Targets parses initialRegistryPath and every registry file it
// transitively includes, then builds every target named by a "build"
// directive anywhere in that tree. It blocks until the whole tree has
// been resolved, including branches reached only as a side effect of
// resolving another (see NodeStore.Close), and returns the first error
// encountered.
func Targets(ctx context.Context, env *Environment, initialRegistryPath string) error {
	store := graph.NewNodeStore(env.config())
	access := store.Access()
	input := access.LookupNodeOrMakeFileExistsNode(initialRegistryPath)
	root := graph.NewRegistryNode(initialRegistryPath, input, store, env.config())
	access.AddRegistryNode(initialRegistryPath, root)
	access.Unlock()

	err := root.Populate(ctx, nil)
	store.Close(ctx)
	return err
}
