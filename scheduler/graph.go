/*
The task graph and its two-phase execution.

Discover walks from the ref tips and records one node per distinct
TaskKey, with an edge to each of its dependencies.  Run then converts
every node exactly once: first all the dependency-free nodes in
parallel (mostly leaf blobs), then the rest one at a time in
topological order.  The graph is only ever mutated from one goroutine.
*/
package scheduler

import (
	"context"
	"time"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/convert"
	"github.com/polydawn/lfsmigrate/monitor"
)

// TaskSource is satisfied by *convert.Converter.
type TaskSource interface {
	Task(r convert.ObjectReader, key convert.TaskKey) (convert.Task, error)
}

type Graph struct {
	nodes map[convert.TaskKey]*node
}

type node struct {
	deps       map[convert.TaskKey]struct{} // out-edges not yet satisfied
	dependents []convert.TaskKey            // in-edges
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Has(key convert.TaskKey) bool {
	_, ok := g.nodes[key]
	return ok
}

func (g *Graph) addNode(key convert.TaskKey) bool {
	if _, ok := g.nodes[key]; ok {
		return false
	}
	g.nodes[key] = &node{deps: map[convert.TaskKey]struct{}{}}
	return true
}

func (g *Graph) addEdge(from, to convert.TaskKey) {
	n := g.nodes[from]
	if _, ok := n.deps[to]; ok {
		return
	}
	n.deps[to] = struct{}{}
	g.nodes[to].dependents = append(g.nodes[to].dependents, from)
}

// Keys of every node with nothing left to wait for.
func (g *Graph) ready() []convert.TaskKey {
	var keys []convert.TaskKey
	for key, n := range g.nodes {
		if len(n.deps) == 0 {
			keys = append(keys, key)
		}
	}
	return keys
}

// Removes a node and its in-edges; returns the dependents that became ready.
func (g *Graph) remove(key convert.TaskKey) []convert.TaskKey {
	n := g.nodes[key]
	delete(g.nodes, key)
	var ready []convert.TaskKey
	for _, dep := range n.dependents {
		dn, ok := g.nodes[dep]
		if !ok {
			continue
		}
		delete(dn.deps, key)
		if len(dn.deps) == 0 {
			ready = append(ready, dep)
		}
	}
	return ready
}

/*
Discover builds the task graph reachable from roots, breadth first.

May return errors of category:

  - `lfsmigrate.ErrInvariant` -- if a task depends on itself
  - `lfsmigrate.ErrRepoCorrupt` -- if a source object can't be read
  - `lfsmigrate.ErrCancelled` -- if ctx ends first
*/
func Discover(ctx context.Context, src TaskSource, r convert.ObjectReader, roots []convert.TaskKey, mon lfsmigrate.Monitor) (_ *Graph, err error) {
	defer RequireErrorHasCategory(&err, lfsmigrate.ErrorCategory(""))
	started := time.Now()
	monitor.PhaseStarted(mon, "discover", -1)
	prog := monitor.NewProgress(mon, "discover", -1)
	defer prog.Close()

	g := &Graph{nodes: map[convert.TaskKey]*node{}}
	var queue []convert.TaskKey
	for _, root := range roots {
		if g.addNode(root) {
			queue = append(queue, root)
		}
	}
	for len(queue) > 0 {
		if ctx.Err() != nil {
			return nil, Errorf(lfsmigrate.ErrCancelled, "discovery cancelled")
		}
		key := queue[0]
		queue = queue[1:]
		task, err := src.Task(r, key)
		if err != nil {
			return nil, err
		}
		deps, err := task.Dependencies()
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			if dep == key {
				return nil, ErrorDetailed(lfsmigrate.ErrInvariant, "task depends on itself",
					map[string]string{"task": key.String()})
			}
			if g.addNode(dep) {
				queue = append(queue, dep)
			}
			g.addEdge(key, dep)
		}
		prog.Add(1)
	}
	prog.SetWork(int64(g.Len()))
	monitor.PhaseDone(mon, "discover", int64(g.Len()), time.Since(started))
	return g, nil
}
