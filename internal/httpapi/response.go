package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rgrau/openingbook/internal/eco"
	"github.com/rgrau/openingbook/internal/tree"
)

// MovesResponse wraps a moves query with optional ECO annotation.
type MovesResponse struct {
	FEN     string          `json:"fen"`
	Node    *tree.NodeView  `json:"node"`
	Moves   []AnnotatedMove `json:"moves"`
	Years   []int           `json:"years"`
	Opening *eco.Opening    `json:"opening,omitempty"`
}

// AnnotatedMove is a move summary plus the opening it leads into.
type AnnotatedMove struct {
	tree.MoveSummary
	Opening *eco.Opening `json:"opening,omitempty"`
}

func toMovesResponse(res *tree.MovesResult, ecoDB *eco.Database) *MovesResponse {
	out := &MovesResponse{
		FEN:   res.FEN,
		Node:  res.Node,
		Moves: make([]AnnotatedMove, 0, len(res.Moves)),
		Years: res.Years,
	}
	for _, ms := range res.Moves {
		am := AnnotatedMove{MoveSummary: ms}
		if ecoDB != nil {
			am.Opening = ecoDB.LookupFEN(ms.FEN)
		}
		out.Moves = append(out.Moves, am)
	}
	if ecoDB != nil && res.Node != nil {
		out.Opening = ecoDB.LookupFEN(res.Node.FEN)
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
