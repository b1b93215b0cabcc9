package repository

import (
	"hash/fnv"

	"github.com/shopspring/decimal"
)

// Treap ordered by staked DESC, then owner ASC. "less" means ranks earlier,
// so an in-order walk yields the ranking from largest stake down.
type node struct {
	owner  string
	staked decimal.Decimal
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aStaked decimal.Decimal, aOwner string, bStaked decimal.Decimal, bOwner string) bool {
	if c := aStaked.Cmp(bStaked); c != 0 {
		return c > 0
	}
	return aOwner < bOwner
}

// ownerPriority derives a stable pseudo-random heap priority from the owner.
func ownerPriority(owner string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(owner))
	return h.Sum64()
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, owner string, staked decimal.Decimal) *node {
	if n == nil {
		return &node{owner: owner, staked: staked, prio: ownerPriority(owner), size: 1}
	}
	if less(staked, owner, n.staked, n.owner) {
		n.left = insert(n.left, owner, staked)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, owner, staked)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, owner string, staked decimal.Decimal) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.owner == owner && n.staked.Equal(staked):
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, owner, staked)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, owner, staked)
		}
	case less(staked, owner, n.staked, n.owner):
		n.left = deleteNode(n.left, owner, staked)
	default:
		n.right = deleteNode(n.right, owner, staked)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes hold strictly more than staked.
func countAbove(n *node, staked decimal.Decimal) int {
	c := 0
	for n != nil {
		if n.staked.GreaterThan(staked) {
			c += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return c
}

// collectTopN appends up to limit nodes in rank order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}
