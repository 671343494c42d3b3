package ingest

import (
	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
)

// NodeOutcome records what happened to one node of a tree
type NodeOutcome struct {
	PID       entity.PID
	Type      entity.ObjectType
	Synthetic bool
	Err       error
}

// Report collects node outcomes of one Ingest or Update call in visit order
type Report struct {
	Root  entity.PID
	Nodes []NodeOutcome
}

func (r *Report) add(n NodeOutcome) {
	r.Nodes = append(r.Nodes, n)
}

// Succeeded counts nodes without error
func (r *Report) Succeeded() int {
	n := 0
	for _, node := range r.Nodes {
		if node.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts nodes with an error
func (r *Report) Failed() int {
	return len(r.Nodes) - r.Succeeded()
}

// Failures returns the failed nodes
func (r *Report) Failures() []NodeOutcome {
	var out []NodeOutcome
	for _, node := range r.Nodes {
		if node.Err != nil {
			out = append(out, node)
		}
	}
	return out
}

// Err summarizes the report. Nil when every node succeeded; marked partial
// when some nodes landed, item when nothing did.
func (r *Report) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	var combined error
	for _, f := range failures {
		combined = errors.CombineErrors(combined, errors.Wrapf(f.Err, "%s %s", f.Type, f.PID))
	}
	err := errors.Wrapf(combined, "%d of %d nodes of %s failed", len(failures), len(r.Nodes), r.Root)
	if r.Succeeded() > 0 {
		return errors.MarkPartial(err)
	}
	return errors.MarkItem(err)
}
