package attribution

import (
	"sort"
)

// UnionFind is a disjoint-set structure over address strings with path
// compression and union by rank, so merges are amortized near-O(1) and the
// final partition is independent of merge order.
type UnionFind struct {
	parent map[string]string
	rank   map[string]int
}

// NewUnionFind creates an empty UnionFind
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

// Find returns the representative of x's set, creating a singleton set on
// first sight
func (u *UnionFind) Find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.rank[x] = 0
		return x
	}

	// Two-pass path compression
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

// Union merges the sets containing a and b. Merging twice, or in either
// order, yields the same partition.
func (u *UnionFind) Union(a, b string) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		// Equal rank: smaller representative wins so the internal tree
		// shape is also order-independent
		if ra < rb {
			u.parent[rb] = ra
			u.rank[ra]++
		} else {
			u.parent[ra] = rb
			u.rank[rb]++
		}
	}
}

// Connected reports whether a and b are in the same set
func (u *UnionFind) Connected(a, b string) bool {
	return u.Find(a) == u.Find(b)
}

// Clusters returns every set with two or more members, each sorted, keyed
// by its lexicographically smallest member
func (u *UnionFind) Clusters() map[string][]string {
	groups := make(map[string][]string)
	for x := range u.parent {
		root := u.Find(x)
		groups[root] = append(groups[root], x)
	}

	clusters := make(map[string][]string)
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		clusters[members[0]] = members
	}
	return clusters
}
