package tree

import (
	"fmt"

	"github.com/rgrau/openingbook/internal/rules"
)

// ChildByMove resolves a candidate move from the node with the given
// id. An existing child is returned as-is. Otherwise a new child is
// created: with confirm false it is an unconfirmed preview (games=0,
// invisible to filtered queries); with confirm true its games count is
// forced to 1 so it becomes a permanent part of the tree. The caller
// is responsible for firing the line-persistence cycle on confirmation.
//
// The returned bool reports whether a node was created.
func (t *Tree) ChildByMove(nodeID, move string, confirm bool) (*Node, bool, error) {
	n, ok := t.byID[nodeID]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	pos, err := rules.FromFEN(n.FEN)
	if err != nil {
		return nil, false, fmt.Errorf("node %s has unparseable position: %w", nodeID, err)
	}
	mv, err := rules.ParseMove(pos, move)
	if err != nil {
		return nil, false, err
	}
	san := rules.SAN(pos, mv)
	uci := rules.UCI(mv)
	moverIsWhite := rules.WhiteToMove(pos)

	if child, ok := n.Children[uci]; ok {
		if confirm && child.Games < 1 {
			child.Games = 1
		}
		return child, false, nil
	}

	if err := rules.Apply(pos, mv); err != nil {
		return nil, false, fmt.Errorf("apply %q: %w", move, err)
	}

	child := t.mergeChild(n, uci, san, pos, moverIsWhite)
	if confirm {
		child.Games = 1
	}
	t.log.Info().
		Str("parent", nodeID).
		Str("move", san).
		Bool("confirmed", confirm).
		Msg("child node created")
	return child, true, nil
}

// DeleteSubtree removes the node and all of its descendants from the
// tree and from its parent's children. The root cannot be deleted.
func (t *Tree) DeleteSubtree(nodeID string) error {
	n, ok := t.byID[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if n == t.root {
		return fmt.Errorf("cannot delete the root node")
	}

	if parent, ok := t.byID[n.ParentID]; ok {
		for uci, child := range parent.Children {
			if child.ID == n.ID {
				delete(parent.Children, uci)
				delete(parent.MoveCounts, uci)
				delete(parent.EloDiffSum, uci)
				delete(parent.EloDiffCount, uci)
				delete(parent.MoveDates, uci)
			}
		}
	}

	removed := 0
	var drop func(*Node)
	drop = func(n *Node) {
		// Transposed children may already be gone or owned elsewhere;
		// only remove nodes that still resolve to this subtree.
		if cur, ok := t.byID[n.ID]; !ok || cur != n {
			return
		}
		delete(t.byID, n.ID)
		delete(t.byKey, n.Key)
		removed++
		for _, child := range n.Children {
			if child.ParentID == n.ID {
				drop(child)
			}
		}
	}
	drop(n)

	t.log.Info().Str("node", nodeID).Int("removed", removed).Msg("subtree deleted")
	return nil
}
