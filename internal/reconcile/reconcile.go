// Package reconcile computes how a freshly discovered set of remote
// entities differs from the locally monitored set.
package reconcile

import "fmt"

// Pair is a stored entity and the discovered entity with the same key.
type Pair[V any] struct {
	Current    V
	Discovered V
}

// Plan is the outcome of Diff. Each slice preserves input order.
type Plan[K comparable, V any] struct {
	ToAdd     []V
	ToRemove  []V
	ToUpdate  []Pair[V]
	Conflicts []Conflict[K]
}

// Empty reports whether the plan adds or removes nothing.
func (p Plan[K, V]) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0
}

// Conflict reports a key that appeared more than once in one input set.
// The first occurrence is used and the rest are dropped.
type Conflict[K comparable] struct {
	Key   K
	Count int
	// Current is true when the duplicate was in the stored set.
	Current bool
}

func (c Conflict[K]) Error() string {
	set := "discovered"
	if c.Current {
		set = "current"
	}
	return fmt.Sprintf("reconciliation conflict: key %v appears %d times in %s set", c.Key, c.Count, set)
}

// Diff compares discovered against current by key:
//
//	ToAdd    = discovered − current
//	ToRemove = current − discovered
//	ToUpdate = current ∩ discovered
//
// Entities are compared only through key, never by full value.
func Diff[K comparable, V any](discovered, current []V, key func(V) K) Plan[K, V] {
	var plan Plan[K, V]

	disc, discOrder, discConflicts := index(discovered, key, false)
	cur, curOrder, curConflicts := index(current, key, true)
	plan.Conflicts = append(discConflicts, curConflicts...)

	for _, k := range discOrder {
		if c, ok := cur[k]; ok {
			plan.ToUpdate = append(plan.ToUpdate, Pair[V]{Current: c, Discovered: disc[k]})
			continue
		}
		plan.ToAdd = append(plan.ToAdd, disc[k])
	}
	for _, k := range curOrder {
		if _, ok := disc[k]; !ok {
			plan.ToRemove = append(plan.ToRemove, cur[k])
		}
	}
	return plan
}

func index[K comparable, V any](items []V, key func(V) K, current bool) (map[K]V, []K, []Conflict[K]) {
	byKey := make(map[K]V, len(items))
	order := make([]K, 0, len(items))
	counts := make(map[K]int)

	for _, item := range items {
		k := key(item)
		counts[k]++
		if counts[k] > 1 {
			continue
		}
		byKey[k] = item
		order = append(order, k)
	}

	var conflicts []Conflict[K]
	for _, k := range order {
		if n := counts[k]; n > 1 {
			conflicts = append(conflicts, Conflict[K]{Key: k, Count: n, Current: current})
		}
	}
	return byKey, order, conflicts
}
