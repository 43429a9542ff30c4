package graph_test

import (
	"context"
	"testing"
	"time"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/graph"
	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputNode(path string, t time.Time) graph.FileInfoNodeOutput {
	return graph.FileInfoNodeOutput{
		Node:  graph.NewFileExistsNode(path, statMap(map[string]time.Time{path: t})),
		Index: 0,
	}
}

func TestFileProcessNodeSkipsCommandWhenUpToDate(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	newer := time.Now()
	outputTimes := map[string]time.Time{"out": newer}

	ran := false
	n := graph.NewFileProcessNode(
		[]graph.FileInfoNodeOutput{inputNode("in", old)},
		[]string{"out"}, nil,
		func(ctx context.Context) error { ran = true; return nil },
		nil, nil, statMap(outputTimes),
	)

	ctx := context.Background()
	out, err := n.GetFileInfo(ctx, false).Get(ctx)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.False(t, ran)
}

func TestFileProcessNodeRunsCommandWhenInputNewer(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	newer := time.Now()
	outputTimes := map[string]time.Time{"out": old}

	ran := false
	n := graph.NewFileProcessNode(
		[]graph.FileInfoNodeOutput{inputNode("in", newer)},
		[]string{"out"}, nil,
		func(ctx context.Context) error {
			ran = true
			outputTimes["out"] = time.Now()
			return nil
		},
		nil, nil, statMap(outputTimes),
	)

	ctx := context.Background()
	out, err := n.GetFileInfo(ctx, false).Get(ctx)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.True(t, ran)
}

func TestFileProcessNodeMissingOutputForcesRebuild(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	outputTimes := map[string]time.Time{}

	ran := false
	n := graph.NewFileProcessNode(
		[]graph.FileInfoNodeOutput{inputNode("in", old)},
		[]string{"out"}, nil,
		func(ctx context.Context) error {
			ran = true
			outputTimes["out"] = time.Now()
			return nil
		},
		nil, nil, statMap(outputTimes),
	)

	ctx := context.Background()
	_, err := n.GetFileInfo(ctx, false).Get(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestFileProcessNodePreconditionErrorWhenCommandDoesNotTouchOutput(t *testing.T) {
	newer := time.Now()
	old := time.Now().Add(-time.Hour)
	outputTimes := map[string]time.Time{"out": old}

	n := graph.NewFileProcessNode(
		[]graph.FileInfoNodeOutput{inputNode("in", newer)},
		[]string{"out"}, nil,
		func(ctx context.Context) error { return nil }, // doesn't touch "out"
		nil, nil, statMap(outputTimes),
	)

	ctx := context.Background()
	out, err := n.GetFileInfo(ctx, false).Get(ctx)
	require.NoError(t, err)
	require.Error(t, out.Err)
	assert.True(t, errors.Is(errors.Precondition, out.Err))
}

func TestFileProcessNodeDryRunDoesNotRunCommand(t *testing.T) {
	newer := time.Now()
	old := time.Now().Add(-time.Hour)
	outputTimes := map[string]time.Time{"out": old}

	ran := false
	n := graph.NewFileProcessNode(
		[]graph.FileInfoNodeOutput{inputNode("in", newer)},
		[]string{"out"}, nil,
		func(ctx context.Context) error { ran = true; outputTimes["out"] = time.Now(); return nil },
		nil, nil, statMap(outputTimes),
	)

	ctx := context.Background()
	out, err := n.GetFileInfo(ctx, true).Get(ctx)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.False(t, ran)
	// A real build afterwards must still run the command: the dry run's
	// result is cached as "fake" and not reused for a real request.
	out, err = n.GetFileInfo(ctx, false).Get(ctx)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.True(t, ran)
}

func TestFileProcessNodeGetDepsTriggersRebuild(t *testing.T) {
	now := time.Now()
	old := time.Now().Add(-time.Hour)
	outputTimes := map[string]time.Time{"out": now}

	dep := inputNode("dep.h", now.Add(time.Minute))
	getDeps := func(ctx context.Context) ([]graph.FileInfoNodeOutput, bool) {
		return []graph.FileInfoNodeOutput{dep}, true
	}

	ran := false
	n := graph.NewFileProcessNode(
		[]graph.FileInfoNodeOutput{inputNode("in", old)},
		[]string{"out"}, nil,
		func(ctx context.Context) error {
			ran = true
			outputTimes["out"] = time.Now()
			return nil
		},
		getDeps, nil, statMap(outputTimes),
	)

	ctx := context.Background()
	_, err := n.GetFileInfo(ctx, false).Get(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestFileProcessNodeSoftOutputsReported(t *testing.T) {
	now := time.Now()
	old := time.Now().Add(-time.Hour)
	outputTimes := map[string]time.Time{"out": now, "soft.log": now}

	n := graph.NewFileProcessNode(
		[]graph.FileInfoNodeOutput{inputNode("in", old)},
		[]string{"out"}, []string{"soft.log"},
		func(ctx context.Context) error { return nil },
		nil, nil, statMap(outputTimes),
	)

	ctx := context.Background()
	out, err := n.GetFileInfo(ctx, false).Get(ctx)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	want := []string{"out", "soft.log"}
	var got []string
	for _, v := range out.Values {
		got = append(got, v.Path)
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("output paths differ from expected (-want +got):\n%s", diff)
	}
	assert.True(t, out.Values[1].SoftOutput)
	assert.Equal(t, []string{"out", "soft.log"}, n.OrderedOutputPaths())
}
