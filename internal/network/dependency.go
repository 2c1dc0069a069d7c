package network

import "sync"

// DependentsNode caches, for one reaction, the reactions whose propensity can
// change when it fires. Each node is guarded by its own mutex so workers
// firing different reactions never contend.
type DependentsNode struct {
	mu sync.Mutex

	// dependents is nil until computed. Once set the slice is never written
	// again; GC replaces the field instead of mutating the backing array.
	dependents []int

	// count is len(dependents), or -1 while the node is uncomputed.
	count int

	// occurrences counts Node calls for this reaction since the last eviction.
	occurrences int

	// sweptAt is the occurrence count observed by the previous GC sweep.
	sweptAt int
}

func (n *DependentsNode) reset() {
	n.dependents = nil
	n.count = -1
	n.occurrences = 0
	n.sweptAt = 0
}

// Node returns the dependents of reaction and whether they were computed.
//
// When the node is uncomputed and the reaction has already fired at least
// DependencyThreshold times, the dependents are computed and cached before
// returning. Every call counts as one occurrence. When computed is false the
// caller must refresh the propensity of every reaction instead.
//
// The returned slice is shared and must not be modified.
func (rn *ReactionNetwork) Node(reaction int) (dependents []int, computed bool) {
	node := &rn.graph[reaction]

	node.mu.Lock()
	if node.dependents == nil && node.occurrences >= rn.dependencyThreshold {
		node.dependents = rn.computeDependents(reaction)
		node.count = len(node.dependents)
	}
	node.occurrences++
	dependents = node.dependents
	node.mu.Unlock()

	return dependents, dependents != nil
}

// computeDependents scans every reaction j and reports it as a dependent of
// reaction when some reactant of j is a reactant or product of reaction.
// The result is in ascending reaction order and non-nil.
func (rn *ReactionNetwork) computeDependents(reaction int) []int {
	touched := make(map[int]struct{}, 2*MaxParticipants)
	for _, s := range rn.reactants[reaction].slice() {
		touched[s] = struct{}{}
	}
	for _, s := range rn.products[reaction].slice() {
		touched[s] = struct{}{}
	}

	dependents := make([]int, 0, 8)
	for j := range rn.reactants {
		for _, s := range rn.reactants[j].slice() {
			if _, ok := touched[s]; ok {
				dependents = append(dependents, j)
				break
			}
		}
	}
	return dependents
}

// CollectGarbage releases cached dependents lists that are not pulling their
// weight and returns how many nodes were evicted.
//
// A computed node is evicted when it fired fewer than threshold times since
// the previous sweep. Eviction resets the node to uncomputed and zeroes its
// occurrence count, so the reaction has to re-earn promotion. Nodes are locked
// one at a time; workers are never blocked on the whole graph.
func (rn *ReactionNetwork) CollectGarbage(threshold int) int {
	evicted := 0
	for i := range rn.graph {
		node := &rn.graph[i]
		node.mu.Lock()
		if node.dependents != nil {
			if node.occurrences-node.sweptAt < threshold {
				node.reset()
				evicted++
			} else {
				node.sweptAt = node.occurrences
			}
		}
		node.mu.Unlock()
	}
	return evicted
}

// GraphStats summarizes the memory held by the dependency graph.
type GraphStats struct {
	Nodes         int `json:"nodes"`
	Computed      int `json:"computed"`
	DependentsSum int `json:"dependents_sum"`
}

// Stats walks the graph and reports how many nodes are cached.
func (rn *ReactionNetwork) Stats() GraphStats {
	stats := GraphStats{Nodes: len(rn.graph)}
	for i := range rn.graph {
		node := &rn.graph[i]
		node.mu.Lock()
		if node.count >= 0 {
			stats.Computed++
			stats.DependentsSum += node.count
		}
		node.mu.Unlock()
	}
	return stats
}
