// Package httpapi exposes one player/perspective opening tree over
// HTTP. It is a thin surface: all semantics live in the tree,
// linestore, and loader packages. Handlers serialize access to the
// tree with a mutex; the tree itself has no internal locking.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/rgrau/openingbook/internal/eco"
	"github.com/rgrau/openingbook/internal/linestore"
	"github.com/rgrau/openingbook/internal/loader"
	"github.com/rgrau/openingbook/internal/rules"
	"github.com/rgrau/openingbook/internal/tree"
)

// Config configures the router.
type Config struct {
	LinesRoot string // root of per-player line directories
	ECO       *eco.Database
	Logger    zerolog.Logger
}

// Handler serves the tree API. The tree pointer is swapped wholesale
// after a rebuild, so every access goes through the mutex.
type Handler struct {
	mu    sync.Mutex
	tree  *tree.Tree
	lines *linestore.Dir
	cfg   Config

	validate *validator.Validate
	log      zerolog.Logger
}

// NewRouter wires the handler and middleware chain.
func NewRouter(t *tree.Tree, lines *linestore.Dir, cfg Config) http.Handler {
	h := &Handler{
		tree:     t,
		lines:    lines,
		cfg:      cfg,
		validate: validator.New(),
		log:      cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("GET /v1/tree", h.subtree)
	mux.HandleFunc("GET /v1/moves", h.moves)
	mux.HandleFunc("POST /v1/node/children", h.nodeChildren)
	mux.HandleFunc("POST /v1/node/child", h.nodeChild)
	mux.HandleFunc("DELETE /v1/node", h.deleteNode)
	mux.HandleFunc("POST /v1/lines", h.addLine)
	mux.HandleFunc("POST /v1/training/studied", h.markStudied)
	mux.HandleFunc("POST /v1/training/learned", h.markLearned)
	mux.HandleFunc("POST /v1/training/unlearned", h.unmarkLearned)
	mux.HandleFunc("POST /v1/training/mistake", h.recordMistake)
	mux.HandleFunc("GET /v1/training/unstudied", h.unstudiedMoves)
	mux.HandleFunc("GET /v1/training/progress", h.progress)
	mux.HandleFunc("GET /v1/training/stats", h.learningStats)

	return CORS(RequestID(AccessLog(cfg.Logger, gzhttp.GzipHandler(mux))))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, map[string]any{
		"player":         h.tree.PlayerName(),
		"perspective":    h.tree.Perspective(),
		"own_repertoire": h.tree.OwnRepertoire(),
		"nodes":          h.tree.Size(),
	})
}

func (h *Handler) subtree(w http.ResponseWriter, r *http.Request) {
	fen := r.URL.Query().Get("fen")
	if fen == "" {
		fen = rules.StartingFEN
	}
	depth := 10
	if d := r.URL.Query().Get("depth"); d != "" {
		if v, err := json.Number(d).Int64(); err == nil && v >= 1 && v <= 20 {
			depth = int(v)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	view, ok := h.tree.Subtree(fen, depth)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found in tree")
		return
	}
	writeJSON(w, view)
}

func (h *Handler) moves(w http.ResponseWriter, r *http.Request) {
	fen := r.URL.Query().Get("fen")
	if fen == "" {
		fen = rules.StartingFEN
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	res, ok := h.tree.MovesFromPosition(fen)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found in tree")
		return
	}
	writeJSON(w, toMovesResponse(res, h.cfg.ECO))
}

type nodeRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

func (h *Handler) nodeChildren(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.tree.NodeByID(req.NodeID)
	if !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	res, ok := h.tree.MovesFromPosition(n.FEN)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found in tree")
		return
	}
	writeJSON(w, toMovesResponse(res, h.cfg.ECO))
}

type childRequest struct {
	NodeID  string `json:"node_id" validate:"required"`
	Move    string `json:"move" validate:"required"`
	Confirm bool   `json:"confirm"`
}

// nodeChild previews or confirms a candidate move. Confirming a newly
// created child on a repertoire tree fires the line-persistence cycle:
// the root path is stored through the replacement protocol and, if any
// shorter files were replaced, the whole tree is rebuilt from disk.
func (h *Handler) nodeChild(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	child, created, err := h.tree.ChildByMove(req.NodeID, req.Move, req.Confirm)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, tree.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	var newFile string
	var replaced []string
	if created && req.Confirm && h.tree.OwnRepertoire() {
		seq, err := h.tree.MoveSequence(child.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		newFile, replaced, err = linestore.Replace(h.lines, h.log, h.tree.PlayerName(), rules.StartingFEN, seq)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := h.refreshAfterSave(newFile, rules.StartingFEN, seq, len(replaced) > 0); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, map[string]any{
		"success":  true,
		"created":  created,
		"node_id":  child.ID,
		"fen":      child.FEN,
		"move_san": child.MoveSAN,
		"file":     newFile,
		"replaced": len(replaced),
	})
}

type lineRequest struct {
	FEN      string   `json:"fen"`
	MovesSAN []string `json:"moves_san" validate:"required,min=1"`
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.FEN == "" {
		req.FEN = rules.StartingFEN
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// The start position must already be a node; otherwise the written
	// file could never merge and the store would diverge from the tree.
	if _, ok := h.tree.NodeByFEN(req.FEN); !ok {
		writeError(w, http.StatusNotFound, "starting position not in tree")
		return
	}

	if h.lineExists(req.FEN, req.MovesSAN) {
		writeJSON(w, map[string]any{"success": true, "already_exists": true})
		return
	}

	newFile, replaced, err := linestore.Replace(h.lines, h.log, h.tree.PlayerName(), req.FEN, req.MovesSAN)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.refreshAfterSave(newFile, req.FEN, req.MovesSAN, len(replaced) > 0); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"success":        true,
		"already_exists": false,
		"file":           newFile,
		"replaced":       len(replaced),
	})
}

// lineExists walks the line through the live tree; every move must be a
// recorded child for the line to count as already present.
func (h *Handler) lineExists(startFEN string, movesSAN []string) bool {
	pos, err := rules.FromFEN(startFEN)
	if err != nil {
		return false
	}
	n, ok := h.tree.NodeByFEN(startFEN)
	if !ok {
		return false
	}
	for _, san := range movesSAN {
		mv, err := rules.ParseMove(pos, san)
		if err != nil {
			return false
		}
		child, ok := n.Children[rules.UCI(mv)]
		if !ok || child.Games < 1 {
			return false
		}
		if err := rules.Apply(pos, mv); err != nil {
			return false
		}
		n = child
	}
	return true
}

// refreshAfterSave keeps the live tree consistent with the stored
// files: a replacement changed file identities so the tree is rebuilt
// from scratch; a plain write is merged incrementally from the same
// start position the file was written with.
func (h *Handler) refreshAfterSave(newFile, startFEN string, movesSAN []string, replacedFiles bool) error {
	if replacedFiles {
		rebuilt, _, err := loader.Rebuild(loader.RebuildConfig{
			PlayerName:    h.tree.PlayerName(),
			Perspective:   h.tree.Perspective(),
			OwnRepertoire: h.tree.OwnRepertoire(),
			LinesRoot:     h.cfg.LinesRoot,
			Logger:        h.log,
		})
		if err != nil {
			return err
		}
		h.tree = rebuilt
		return nil
	}
	return h.tree.AddLine(startFEN, movesSAN, newFile)
}

func (h *Handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.tree.DeleteSubtree(req.NodeID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, tree.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

type trainingRequest struct {
	NodeID    string `json:"node_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}

func (h *Handler) markStudied(w http.ResponseWriter, r *http.Request) {
	var req trainingRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.tree.MarkStudied(req.NodeID, req.SessionID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (h *Handler) markLearned(w http.ResponseWriter, r *http.Request) {
	var req trainingRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	already, err := h.tree.MarkDirectlyLearned(req.NodeID, req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true, "already_learned": already})
}

func (h *Handler) unmarkLearned(w http.ResponseWriter, r *http.Request) {
	var req trainingRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	was, err := h.tree.UnmarkDirectlyLearned(req.NodeID, req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true, "was_learned": was})
}

type sessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

func (h *Handler) recordMistake(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	count := h.tree.RecordMistake(req.SessionID)
	writeJSON(w, map[string]any{"success": true, "mistake_count": count})
}

func (h *Handler) unstudiedMoves(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	fen := r.URL.Query().Get("fen")
	if session == "" {
		writeError(w, http.StatusBadRequest, "session required")
		return
	}
	if fen == "" {
		fen = rules.StartingFEN
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	res, ok := h.tree.UnstudiedMoves(fen, session)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found in tree")
		return
	}
	writeJSON(w, toMovesResponse(res, h.cfg.ECO))
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeError(w, http.StatusBadRequest, "session required")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, h.tree.LearningProgress(session))
}

func (h *Handler) learningStats(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeError(w, http.StatusBadRequest, "session required")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, map[string]any{
		"success":                   true,
		"directly_learned_count":    h.tree.DirectlyLearnedCount(session),
		"mistake_count":             h.tree.MistakeCount(session),
		"directly_learned_node_ids": h.tree.DirectlyLearnedNodeIDs(session),
	})
}

// decode parses and validates a JSON request body, writing the error
// response itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
