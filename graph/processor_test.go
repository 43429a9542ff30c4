package graph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/graph"
	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rootRegistryNode creates a NodeStore and a RegistryNode for path,
// wired with the real filesystem for the registry file's own
// existence check (since RegistryNode.handleRequest reads the
// registry file directly via os.ReadFile) but a fake StatFunc for
// everything else, so tests don't need real timestamps on every
// source/output file.
func rootRegistryNode(t *testing.T, path string, fakeTimes map[string]time.Time, runner graph.CommandRunner) (*graph.NodeStore, *graph.RegistryNode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	mtime := info.ModTime()
	stat := func(p string) (*time.Time, error) {
		if p == path {
			return &mtime, nil
		}
		if t, ok := fakeTimes[p]; ok {
			return &t, nil
		}
		return nil, nil
	}
	store := graph.NewNodeStore(graph.Config{Stat: stat, Run: runner})
	access := store.Access()
	input := access.LookupNodeOrMakeFileExistsNode(path)
	node := graph.NewRegistryNode(path, input, store, graph.Config{Stat: stat, Run: runner})
	access.AddRegistryNode(path, node)
	access.Unlock()
	return store, node
}

func writeRegistry(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestProcessDirectivesBuildsSingleSystemCommandTarget(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir, "root.reg", `[
		{"sc": [{"cmd": "build it", "in": ["in.txt"], "out": ["out.txt"]}]},
		{"build": ["out.txt"]}
	]`)

	ran := false
	fakeTimes := map[string]time.Time{"in.txt": time.Now().Add(-time.Hour)}
	runner := func(ctx context.Context, command string, stdout, stderr, stdin *string) (int, error) {
		ran = true
		fakeTimes["out.txt"] = time.Now()
		return 0, nil
	}
	store, node := rootRegistryNode(t, path, fakeTimes, runner)

	err := node.Populate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ran)

	access := store.Access()
	target, ok := access.FileInfoNodeByPath("out.txt")
	access.Unlock()
	require.True(t, ok)
	want := []string{"out.txt"}
	var got []string
	for _, v := range target.Node.OrderedOutputPaths() {
		got = append(got, v)
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("output paths differ from expected (-want +got):\n%s", diff)
	}
	store.Close(context.Background())
}

func TestProcessDirectivesDuplicateOutputIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir, "root.reg", `[
		{"sc": [{"cmd": "a", "in": [], "out": ["out.txt"]}]},
		{"sc": [{"cmd": "b", "in": [], "out": ["out.txt"]}]}
	]`)

	runner := func(ctx context.Context, command string, stdout, stderr, stdin *string) (int, error) { return 0, nil }
	store, node := rootRegistryNode(t, path, nil, runner)

	err := node.Populate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Exists, err))
	store.Close(context.Background())
}

func TestProcessDirectivesInputBeforeOutputIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir, "root.reg", `[
		{"sc": [{"cmd": "a", "in": ["x.txt"], "out": ["y.txt"]}]},
		{"sc": [{"cmd": "b", "in": [], "out": ["x.txt"]}]}
	]`)

	runner := func(ctx context.Context, command string, stdout, stderr, stdin *string) (int, error) { return 0, nil }
	fakeTimes := map[string]time.Time{"x.txt": time.Now()}
	store, node := rootRegistryNode(t, path, fakeTimes, runner)

	err := node.Populate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
	store.Close(context.Background())
}

func TestProcessDirectivesBuildTargetNotFoundIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir, "root.reg", `[
		{"build": ["nonexistent.txt"]}
	]`)

	store, node := rootRegistryNode(t, path, nil, nil)
	err := node.Populate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotExist, err))
	store.Close(context.Background())
}

func TestProcessDirectivesIncludeResolvesChildRegistry(t *testing.T) {
	dir := t.TempDir()
	childPath := writeRegistry(t, dir, "child.reg", `[
		{"sc": [{"cmd": "make out", "in": [], "out": ["out.txt"]}]}
	]`)
	_ = childPath
	rootPath := writeRegistry(t, dir, "root.reg", `[
		{"inc": ["`+filepath.ToSlash(childPath)+`"]},
		{"build": ["out.txt"]}
	]`)

	ran := false
	fakeTimes := map[string]time.Time{childPath: time.Now()}
	runner := func(ctx context.Context, command string, stdout, stderr, stdin *string) (int, error) {
		ran = true
		fakeTimes["out.txt"] = time.Now()
		return 0, nil
	}
	store, node := rootRegistryNode(t, rootPath, fakeTimes, runner)
	err := node.Populate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ran)
	store.Close(context.Background())
}

func TestProcessDirectivesCyclicIncludeIsDetected(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.reg")
	bPath := filepath.Join(dir, "b.reg")
	require.NoError(t, os.WriteFile(aPath, []byte(`[{"inc": ["`+filepath.ToSlash(bPath)+`"]}]`), 0644))
	require.NoError(t, os.WriteFile(bPath, []byte(`[{"inc": ["`+filepath.ToSlash(aPath)+`"]}]`), 0644))

	store, node := rootRegistryNode(t, aPath, map[string]time.Time{bPath: time.Now()}, nil)
	err := node.Populate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cyclic dependency detected")
	store.Close(context.Background())
}
