package tree

import (
	"fmt"
	"sort"
)

// MarkStudied transitions a node to studied for the given session and
// propagates upward: a parent becomes studied once all of its children
// are studied for that session. The transition is monotone within a
// session; propagation stops at the first ancestor with an unstudied
// child.
func (t *Tree) MarkStudied(nodeID, session string) error {
	n, ok := t.byID[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	n.Studied = true
	n.StudiedInSession = session
	t.log.Debug().Str("node", nodeID).Str("session", session).Msg("node marked studied")

	for parent, ok := t.byID[n.ParentID]; ok; parent, ok = t.byID[parent.ParentID] {
		if !t.allChildrenStudied(parent, session) {
			break
		}
		parent.Studied = true
		parent.StudiedInSession = session
	}
	return nil
}

func (t *Tree) allChildrenStudied(n *Node, session string) bool {
	for _, child := range n.Children {
		if !child.IsStudied(session) {
			return false
		}
	}
	return true
}

// MarkDirectlyLearned flags the node as answered correctly without
// hints in the session. Returns whether it was already flagged.
func (t *Tree) MarkDirectlyLearned(nodeID, session string) (bool, error) {
	n, ok := t.byID[nodeID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if n.IsDirectlyLearned(session) {
		return true, nil
	}
	n.DirectlyLearned[session] = struct{}{}
	return false, nil
}

// UnmarkDirectlyLearned clears the directly-learned flag for the
// session. Returns whether it was set.
func (t *Tree) UnmarkDirectlyLearned(nodeID, session string) (bool, error) {
	n, ok := t.byID[nodeID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if !n.IsDirectlyLearned(session) {
		return false, nil
	}
	delete(n.DirectlyLearned, session)
	return true, nil
}

// RecordMistake increments the session's mistake counter and returns
// the new count. There is no decrement.
func (t *Tree) RecordMistake(session string) int {
	t.mistakes[session]++
	return t.mistakes[session]
}

// MistakeCount returns the session's mistake count.
func (t *Tree) MistakeCount(session string) int {
	return t.mistakes[session]
}

// DirectlyLearnedCount returns how many nodes are directly learned in
// the session.
func (t *Tree) DirectlyLearnedCount(session string) int {
	count := 0
	for _, n := range t.byID {
		if n.IsDirectlyLearned(session) {
			count++
		}
	}
	return count
}

// DirectlyLearnedNodeIDs returns the ids of nodes directly learned in
// the session, sorted for stable output.
func (t *Tree) DirectlyLearnedNodeIDs(session string) []string {
	var ids []string
	for _, n := range t.byID {
		if n.IsDirectlyLearned(session) {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Progress summarizes a session's studied coverage of the tree.
type Progress struct {
	Session         string `json:"session"`
	TotalNodes      int    `json:"total_nodes"`
	StudiedNodes    int    `json:"studied_nodes"`
	DirectlyLearned int    `json:"directly_learned"`
	Mistakes        int    `json:"mistakes"`
}

// LearningProgress returns studied/learned/mistake totals for the
// session. The root does not count toward the node total.
func (t *Tree) LearningProgress(session string) Progress {
	p := Progress{
		Session:  session,
		Mistakes: t.mistakes[session],
	}
	for _, n := range t.byID {
		if n == t.root {
			continue
		}
		p.TotalNodes++
		if n.IsStudied(session) {
			p.StudiedNodes++
		}
		if n.IsDirectlyLearned(session) {
			p.DirectlyLearned++
		}
	}
	return p
}

// UnstudiedMoves returns the move summaries from fen whose nodes are
// not yet studied in the session.
func (t *Tree) UnstudiedMoves(fen, session string) (*MovesResult, bool) {
	res, ok := t.MovesFromPosition(fen)
	if !ok {
		return nil, false
	}
	filtered := res.Moves[:0]
	for _, ms := range res.Moves {
		if n, ok := t.byID[ms.NodeID]; ok && !n.IsStudied(session) {
			filtered = append(filtered, ms)
		}
	}
	res.Moves = filtered
	return res, true
}
