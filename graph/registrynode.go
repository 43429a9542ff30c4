package graph

import (
	"context"
	"os"
	"strings"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/registry"
	"github.com/grailbio/respire/sched"
	pkgerrors "github.com/pkg/errors"
)

// RegistryNode is a FileInfoNode-adjacent node over a registry file:
// reading it, parsing its directives, and resolving each directive
// into the shared NodeStore is itself treated as a node in the graph,
// so that two registry files both "inc"-ing a third only pay for that
// third file's parse once.
//
// Unlike FileInfoNode, a RegistryNode's result is an error (nil for
// success) rather than a FileOutput: a registry file has no
// modification-time-bearing output of its own, only a side effect on
// the store.
type RegistryNode struct {
	path   string
	input  FileInfoNodeOutput
	store  *NodeStore
	config Config
	log    RegistryLog

	consumer *sched.PushPullConsumer[*RegistryNode, error]

	parent    *RegistryNode
	populated bool
	result    error
}

// NewRegistryNode returns a RegistryNode for the registry file at
// path, whose own existence/freshness is tracked by input.
func NewRegistryNode(path string, input FileInfoNodeOutput, store *NodeStore, config Config) *RegistryNode {
	n := &RegistryNode{
		path:   path,
		input:  input,
		store:  store,
		config: config,
		log:    config.registryLog(path),
	}
	n.consumer = sched.NewPushPullConsumer(func(ctx context.Context, parent *RegistryNode) (error, error) {
		return n.handleRequest(ctx, parent), nil
	})
	return n
}

// PopulateAsync kicks off resolving this registry file's directives
// (or, if that has already happened, returns a Future already holding
// the cached result) without waiting for it. This is what lets an
// "inc" directive's processing move on to the next directive instead
// of blocking on every included file in turn; the caller waits on the
// returned Future only once it actually needs the store fully
// populated (another directive that reads it, or running out of
// directives).
func (n *RegistryNode) PopulateAsync(ctx context.Context, parent *RegistryNode) *sched.Future[error] {
	return n.consumer.Push(ctx, parent)
}

// Populate resolves this registry file's directives into the store,
// or returns the cached result if it already has, blocking until
// done. parent is the RegistryNode whose own resolution is "inc"-ing
// this one (nil for the root registry file or for NodeStore.Close's
// final sweep), used only for cyclic-include detection.
func (n *RegistryNode) Populate(ctx context.Context, parent *RegistryNode) error {
	result, err := n.PopulateAsync(ctx, parent).Get(ctx)
	if err != nil {
		return err
	}
	return result
}

// setParent and clearParent are guarded by the store's lock, since
// callChain/inCallChain below walk another node's parent pointer from
// a different goroutine while that node's own Populate call is still
// in flight.
func (n *RegistryNode) setParent(p *RegistryNode) {
	a := n.store.Access()
	n.parent = p
	a.Unlock()
}

func (n *RegistryNode) clearParent() {
	a := n.store.Access()
	n.parent = nil
	a.Unlock()
}

// inCallChain reports whether target is this node or one of its
// ancestors in the current include chain.
func (n *RegistryNode) inCallChain(target *RegistryNode) bool {
	a := n.store.Access()
	defer a.Unlock()
	for cur := n; cur != nil; cur = cur.parent {
		if cur == target {
			return true
		}
	}
	return false
}

// callChain returns the root-to-n path of the current include chain.
func (n *RegistryNode) callChain() []*RegistryNode {
	a := n.store.Access()
	defer a.Unlock()
	var chain []*RegistryNode
	for cur := n; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func cyclicDependencyMessage(errorNode, parentNode *RegistryNode) string {
	var b strings.Builder
	b.WriteString("Cyclic dependency detected:\n")
	found := false
	for _, node := range parentNode.callChain() {
		if node == errorNode {
			found = true
		}
		if found {
			b.WriteString(node.path)
			b.WriteString("\n->\n")
		}
	}
	b.WriteString(errorNode.path)
	return b.String()
}

// handleRequest runs on the consumer's single drain goroutine, so only
// one Populate call for this node is ever actually resolving its
// directives at a time; later callers just get the cached result.
func (n *RegistryNode) handleRequest(ctx context.Context, parent *RegistryNode) error {
	n.setParent(parent)
	defer n.clearParent()

	if n.populated {
		return n.result
	}
	n.populated = true

	if n.log != nil {
		n.log.SignalStartDependencyScan()
	}
	inputResult, err := n.input.Node.GetFileInfo(ctx, false).Get(ctx)
	if err != nil {
		n.result = err
		return n.result
	}
	if inputResult.Err != nil {
		n.result = inputResult.Err
		n.complete()
		return n.result
	}

	if n.log != nil {
		n.log.SignalStartParsingRegistryFile()
	}
	data, err := os.ReadFile(n.path)
	if err != nil {
		n.result = errors.E(errors.Other, "reading registry file "+n.path,
			pkgerrors.Wrap(err, "registry_node"))
		n.complete()
		return n.result
	}

	directives, err := registry.Parse(data)
	if err != nil {
		n.result = errors.E(errors.Invalid, "parsing registry file "+n.path,
			pkgerrors.Wrap(err, "registry_node"))
		n.complete()
		return n.result
	}

	n.result = processDirectives(ctx, n.store, n.config, n, directives)
	n.complete()
	return n.result
}

func (n *RegistryNode) complete() {
	if n.log != nil {
		n.log.SignalProcessingComplete(n.result)
	}
}
