package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rgrau/openingbook/internal/httpapi"
	"github.com/rgrau/openingbook/internal/linestore"
	"github.com/rgrau/openingbook/internal/rules"
	"github.com/rgrau/openingbook/internal/tree"
)

func newTestServer(t *testing.T) (*httptest.Server, *tree.Tree) {
	t.Helper()
	root := t.TempDir()
	tr := tree.New(tree.Config{
		PlayerName:    tree.WhiteRepertoirePlayer,
		Perspective:   tree.White,
		OwnRepertoire: true,
		Logger:        zerolog.Nop(),
	})
	lines := linestore.NewDir(root, zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewRouter(tr, lines, httpapi.Config{
		LinesRoot: root,
		Logger:    zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv, tr
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if id := resp.Header.Get("X-Request-ID"); id == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAddLineAndMoves(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"moves_san": []string{"e4", "e5", "Nf3"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if out["already_exists"] != false {
		t.Errorf("already_exists = %v", out["already_exists"])
	}

	var moves struct {
		Moves []struct {
			SAN   string `json:"san"`
			Games int    `json:"games"`
		} `json:"moves"`
	}
	getJSON(t, srv.URL+"/v1/moves", &moves)
	if len(moves.Moves) != 1 || moves.Moves[0].SAN != "e4" {
		t.Fatalf("moves = %+v", moves.Moves)
	}
	if moves.Moves[0].Games != 1 {
		t.Errorf("repertoire games = %d, want 1", moves.Moves[0].Games)
	}

	// Posting the identical line again reports already_exists.
	resp, out = postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"moves_san": []string{"e4", "e5", "Nf3"},
	})
	if resp.StatusCode != http.StatusOK || out["already_exists"] != true {
		t.Errorf("duplicate line: status %d, body %v", resp.StatusCode, out)
	}
}

func TestAddLineReplacesPrefix(t *testing.T) {
	srv, _ := newTestServer(t)

	if resp, out := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"moves_san": []string{"e4", "e5"},
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first line: status %d, body %v", resp.StatusCode, out)
	}
	resp, out := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"moves_san": []string{"e4", "e5", "Nf3"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("extension: status %d, body %v", resp.StatusCode, out)
	}
	if out["replaced"] != float64(1) {
		t.Errorf("replaced = %v, want 1", out["replaced"])
	}

	// The rebuilt tree serves the extended line.
	var stats struct {
		Nodes int `json:"nodes"`
	}
	getJSON(t, srv.URL+"/v1/stats", &stats)
	if stats.Nodes != 4 {
		t.Errorf("nodes = %d, want 4", stats.Nodes)
	}
}

func TestAddLineFromCustomStartPosition(t *testing.T) {
	srv, tr := newTestServer(t)

	if resp, out := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"moves_san": []string{"e4", "e5"},
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("base line: status %d, body %v", resp.StatusCode, out)
	}

	pos := rules.StartingPosition()
	for _, san := range []string{"e4", "e5"} {
		mv, err := rules.ParseMove(pos, san)
		if err != nil {
			t.Fatalf("ParseMove %s: %v", san, err)
		}
		if err := rules.Apply(pos, mv); err != nil {
			t.Fatalf("Apply %s: %v", san, err)
		}
	}
	afterE4E5 := pos.ToFEN()

	// Nf3/Nc6 are also legal from the standard start; the continuation
	// must merge under the submitted position, not under the root.
	resp, out := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"fen":       afterE4E5,
		"moves_san": []string{"Nf3", "Nc6"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("continuation: status %d, body %v", resp.StatusCode, out)
	}

	var moves struct {
		Moves []struct {
			SAN string `json:"san"`
		} `json:"moves"`
	}
	getJSON(t, srv.URL+"/v1/moves?fen="+url.QueryEscape(afterE4E5), &moves)
	if len(moves.Moves) != 1 || moves.Moves[0].SAN != "Nf3" {
		t.Fatalf("moves after 1. e4 e5 = %+v, want Nf3", moves.Moves)
	}

	for uci := range tr.Root().Children {
		if uci == "g1f3" {
			t.Error("continuation merged under the root instead of its start position")
		}
	}
}

func TestAddLineStartOutsideTree(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"fen":       "rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq - 0 1",
		"moves_san": []string{"d5"},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a start position outside the tree", resp.StatusCode)
	}
}

func TestNodeChildConfirmPersists(t *testing.T) {
	srv, tr := newTestServer(t)

	rootID := tr.Root().ID
	resp, out := postJSON(t, srv.URL+"/v1/node/child", map[string]any{
		"node_id": rootID,
		"move":    "e4",
		"confirm": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if out["created"] != true {
		t.Errorf("created = %v", out["created"])
	}
	if out["file"] == "" {
		t.Error("confirmed repertoire move should persist a line file")
	}
}

func TestNodeChildValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/v1/node/child", map[string]any{"move": "e4"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing node_id: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/v1/node/child", map[string]any{
		"node_id": "no-such-node",
		"move":    "e4",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown node: status = %d, want 404", resp.StatusCode)
	}
}

func TestTrainingFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	if resp, out := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"moves_san": []string{"e4", "e5"},
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add line: status %d, body %v", resp.StatusCode, out)
	}

	var moves struct {
		Moves []struct {
			NodeID string `json:"node_id"`
		} `json:"moves"`
	}
	getJSON(t, srv.URL+"/v1/moves", &moves)
	if len(moves.Moves) != 1 {
		t.Fatalf("moves = %+v", moves.Moves)
	}
	nodeID := moves.Moves[0].NodeID

	if resp, _ := postJSON(t, srv.URL+"/v1/training/studied", map[string]any{
		"node_id": nodeID, "session_id": "s1",
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("studied: status = %d", resp.StatusCode)
	}
	if resp, out := postJSON(t, srv.URL+"/v1/training/learned", map[string]any{
		"node_id": nodeID, "session_id": "s1",
	}); resp.StatusCode != http.StatusOK || out["already_learned"] != false {
		t.Fatalf("learned: status %d, body %v", resp.StatusCode, out)
	}
	if _, out := postJSON(t, srv.URL+"/v1/training/mistake", map[string]any{
		"session_id": "s1",
	}); out["mistake_count"] != float64(1) {
		t.Errorf("mistake_count = %v, want 1", out["mistake_count"])
	}

	var prog tree.Progress
	getJSON(t, srv.URL+fmt.Sprintf("/v1/training/progress?session=%s", "s1"), &prog)
	if prog.DirectlyLearned != 1 || prog.Mistakes != 1 {
		t.Errorf("progress = %+v", prog)
	}

	// The only move from the start is the studied e4 node, so the
	// unstudied view is empty.
	var unstudied struct {
		Moves []json.RawMessage `json:"moves"`
	}
	getJSON(t, srv.URL+"/v1/training/unstudied?session=s1", &unstudied)
	if len(unstudied.Moves) != 0 {
		t.Errorf("unstudied after marking = %d moves, want 0", len(unstudied.Moves))
	}
}

func TestDeleteNode(t *testing.T) {
	srv, tr := newTestServer(t)

	if resp, out := postJSON(t, srv.URL+"/v1/lines", map[string]any{
		"moves_san": []string{"e4", "e5"},
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add line: status %d, body %v", resp.StatusCode, out)
	}

	var moves struct {
		Moves []struct {
			NodeID string `json:"node_id"`
		} `json:"moves"`
	}
	getJSON(t, srv.URL+"/v1/moves", &moves)
	nodeID := moves.Moves[0].NodeID

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/node", bytes.NewReader(mustJSON(t, map[string]any{"node_id": nodeID})))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if tr.Size() != 1 {
		t.Errorf("tree size after delete = %d, want 1", tr.Size())
	}
}

func TestMovesUnknownPosition(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/moves?fen=8/8/8/8/8/8/8/K6k%20w%20-%20-%200%201")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
