package cfg

import "github.com/relentless-labs/specbmc/internal/mir"

// Loop is a single natural loop: Header dominates every block in Body, and
// Body contains at least one edge back to Header (spec.md §4.1 "loop
// unwinding" operates over exactly this structure).
type Loop struct {
	ID       string // stable identifier used by analysis.unwind_loop overrides
	Header   mir.BlockID
	Body     BlockSet
	Parent   *Loop
	Children []*Loop
}

// Dominators computes the dominator sets of every reachable block using
// the classic iterative fixpoint: Dom(entry) = {entry}; Dom(n) = {n} union
// (intersection of Dom(p) for p in Pred(n)).
func Dominators(g *Graph) map[mir.BlockID]BlockSet {
	all := g.All()
	dom := make(map[mir.BlockID]BlockSet, len(all))
	for id := range all {
		dom[id] = all.Copy()
	}
	dom[g.Entry] = BlockSet{g.Entry: struct{}{}}

	changed := true
	for changed {
		changed = false
		for id := range all {
			if id == g.Entry {
				continue
			}
			preds := g.Pred[id]
			if len(preds) == 0 {
				continue
			}
			newDom := dom[preds[0]].Copy()
			for _, p := range preds[1:] {
				newDom = newDom.Intersect(dom[p])
			}
			newDom.Add(id)
			if !newDom.Equals(dom[id]) {
				dom[id] = newDom
				changed = true
			}
		}
	}
	return dom
}

// dominates reports whether a dominates b, given a's dominator computation.
func dominates(dom map[mir.BlockID]BlockSet, a, b mir.BlockID) bool {
	return dom[b].Has(a)
}

// NaturalLoops finds every natural loop in fn: for each back edge n->h
// where h dominates n, the loop body is h plus every block that can reach
// n without passing through h.
func NaturalLoops(fn *mir.Function, g *Graph) []*Loop {
	dom := Dominators(g)

	var loops []*Loop
	index := 0
	for _, n := range fn.BlockIDs() {
		for _, h := range g.Succ[n] {
			if !dominates(dom, h, n) {
				continue
			}
			body := findLoopBody(g, h, n)
			loops = append(loops, &Loop{
				ID:     loopID(index),
				Header: h,
				Body:   body,
			})
			index++
		}
	}
	nestLoops(loops)
	return loops
}

func loopID(index int) string {
	const alphabet = "0123456789"
	if index == 0 {
		return "loop." + string(alphabet[0])
	}
	digits := ""
	for index > 0 {
		digits = string(alphabet[index%10]) + digits
		index /= 10
	}
	return "loop." + digits
}

// findLoopBody performs a backward reachability search from the back-edge
// tail n, stopping at the header h, collecting every block visited.
func findLoopBody(g *Graph, header, tail mir.BlockID) BlockSet {
	body := NewBlockSet()
	body.Add(header)
	body.Add(tail)

	stack := []mir.BlockID{tail}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.Pred[id] {
			if !body.Has(p) {
				body.Add(p)
				stack = append(stack, p)
			}
		}
	}
	return body
}

// nestLoops assigns Parent/Children by containment of loop bodies: the
// smallest enclosing loop becomes the immediate parent.
func nestLoops(loops []*Loop) {
	for _, inner := range loops {
		var parent *Loop
		for _, outer := range loops {
			if outer == inner {
				continue
			}
			if !properSuperset(outer.Body, inner.Body) {
				continue
			}
			if parent == nil || len(outer.Body) < len(parent.Body) {
				parent = outer
			}
		}
		inner.Parent = parent
		if parent != nil {
			parent.Children = append(parent.Children, inner)
		}
	}
}

func properSuperset(a, b BlockSet) bool {
	if len(a) <= len(b) {
		return false
	}
	for id := range b {
		if !a.Has(id) {
			return false
		}
	}
	return true
}
