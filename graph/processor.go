package graph

import (
	"context"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/registry"
	"github.com/grailbio/respire/sched"
	"golang.org/x/sync/errgroup"
)

// processDirectives resolves a registry file's already-parsed
// directives into store, on self's behalf. It is the Go counterpart
// of the original's RegistryProcessor: unlike the parser, there is no
// reason to route directives through an async queue here, since
// directives is already a plain, fully-available slice. The one place
// asynchrony matters is preserved directly: "inc" directives kick off
// their included file's resolution without waiting for it, so that
// sibling includes and any independent "sc"/"build" directives that
// precede the next directive needing the store fully populated can
// all make progress concurrently; WaitForPendingIncludeDirectives'
// original join points (before a "sc"/"build" directive, and at the
// end) are reproduced as waitForIncludes below.
func processDirectives(ctx context.Context, store *NodeStore, config Config, self *RegistryNode, directives []registry.Directive) error {
	var pendingIncludes []*sched.Future[error]
	var pendingTargets []FileInfoNode
	var pendingBuilds []*sched.Future[FileOutput]

	// waitForIncludes joins every include kicked off since the last
	// join point, fanning the wait out across goroutines via errgroup
	// so that a slow include doesn't stall checking the others for
	// errors, the same pattern as fileprocess.go's waitAll, applied
	// here to the registry-node tree instead of file nodes.
	waitForIncludes := func() error {
		g, gctx := errgroup.WithContext(ctx)
		for _, f := range pendingIncludes {
			f := f
			g.Go(func() error {
				result, err := f.Get(gctx)
				if err != nil {
					return err
				}
				return result
			})
		}
		err := g.Wait()
		pendingIncludes = nil
		return err
	}

	for _, directive := range directives {
		switch d := directive.(type) {
		case registry.IncludeParams:
			path := d.Path.AsPath()

			access := store.Access()
			node, existed := access.RegistryNodeByPath(path)
			if !existed {
				input := access.LookupNodeOrMakeFileExistsNode(path)
				node = NewRegistryNode(path, input, store, config)
				access.AddRegistryNode(path, node)
			}
			access.Unlock()

			if existed && self.inCallChain(node) {
				return errors.E(errors.Invalid, cyclicDependencyMessage(node, self))
			}

			pendingIncludes = append(pendingIncludes, node.PopulateAsync(ctx, self))

		case registry.SystemCommandParams:
			if err := waitForIncludes(); err != nil {
				return err
			}
			if _, err := consumeSystemCommand(store, config, d); err != nil {
				return err
			}

		case registry.BuildParams:
			if err := waitForIncludes(); err != nil {
				return err
			}
			path := d.Path.AsPath()

			access := store.Access()
			target, ok := access.FileInfoNodeByPath(path)
			access.Unlock()
			if !ok {
				return errors.E(errors.NotExist,
					"Target not specified as an output in registry files:\n"+path)
			}

			pendingBuilds = append(pendingBuilds, target.Node.GetFileInfo(ctx, true))
			pendingTargets = append(pendingTargets, target.Node)
		}
	}

	if err := waitForIncludes(); err != nil {
		return err
	}

	for _, target := range pendingTargets {
		pendingBuilds = append(pendingBuilds, target.GetFileInfo(ctx, false))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range pendingBuilds {
		f := f
		g.Go(func() error {
			out, err := f.Get(gctx)
			if err != nil {
				return err
			}
			return out.Err
		})
	}
	return g.Wait()
}

// consumeSystemCommand resolves one "sc" directive into a registered
// SystemCommandNode. The stdout/stderr redirect files, if given, are
// folded into the node's registered outputs (not just used for
// redirection): a later build comparing mtimes needs to know about
// them too, and another directive is entitled to reference them as
// inputs once this one has run.
func consumeSystemCommand(store *NodeStore, config Config, d registry.SystemCommandParams) (*SystemCommandNode, error) {
	outputs := make([]string, 0, len(d.Outputs)+2)
	for _, o := range d.Outputs {
		outputs = append(outputs, o.AsPath())
	}
	var stdoutFile, stderrFile, stdinFile, depsFile *string
	if d.StdoutFile != nil {
		p := d.StdoutFile.AsPath()
		stdoutFile = &p
		outputs = append(outputs, p)
	}
	if d.StderrFile != nil {
		p := d.StderrFile.AsPath()
		stderrFile = &p
		outputs = append(outputs, p)
	}

	softOutputs := make([]string, len(d.SoftOutputs))
	for i, o := range d.SoftOutputs {
		softOutputs[i] = o.AsPath()
	}

	access := store.Access()
	defer access.Unlock()

	for _, o := range outputs {
		if err := verifySystemCommandOutput(access, o); err != nil {
			return nil, err
		}
	}
	for _, o := range softOutputs {
		if err := verifySystemCommandOutput(access, o); err != nil {
			return nil, err
		}
	}

	inputs := make([]FileInfoNodeOutput, 0, len(d.Inputs)+1)
	inputPaths := make([]string, 0, len(d.Inputs)+1)
	for _, in := range d.Inputs {
		p := in.AsPath()
		inputs = append(inputs, access.LookupNodeOrMakeFileExistsNode(p))
		inputPaths = append(inputPaths, p)
	}
	if d.StdinFile != nil {
		p := d.StdinFile.AsPath()
		stdinFile = &p
		inputs = append(inputs, access.LookupNodeOrMakeFileExistsNode(p))
		inputPaths = append(inputPaths, p)
	}

	var getDeps GetDepsFunc
	if d.DepsFile != nil {
		p := d.DepsFile.AsPath()
		depsFile = &p
		depsNode := access.LookupNodeOrMakeFileExistsNode(p)
		getDeps = ParseDeps(store, depsNode, p)
	}

	params := SystemCommandParams{
		Command:     d.Command.AsPath(),
		Inputs:      inputPaths,
		Outputs:     outputs,
		SoftOutputs: softOutputs,
		DepsFile:    depsFile,
		StdoutFile:  stdoutFile,
		StderrFile:  stderrFile,
		StdinFile:   stdinFile,
	}
	node := NewSystemCommandNode(inputs, params, config.run(), getDeps, config.processLog(params), config.stat())
	access.AddFileInfoNode(node)
	return node, nil
}

// verifySystemCommandOutput reports an error if path is already
// claimed by another node: either a FileExistsNode (meaning some
// earlier directive referenced it as an input before this directive
// declared it as an output) or another SystemCommandNode (meaning two
// "sc" directives both claim to produce it).
func verifySystemCommandOutput(access *Access, path string) error {
	existing, ok := access.FileInfoNodeByPath(path)
	if !ok {
		return nil
	}
	if access.IsFileExistsNode(existing.Node) {
		return errors.E(errors.Invalid,
			"Path was referenced as an input before a system command was defined which referenced it as an output.\nPath: "+path)
	}
	return errors.E(errors.Exists, "Output path specified more than once:\n"+path)
}
