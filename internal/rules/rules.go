// Package rules wraps the chess board-rules library behind the small
// surface the opening tree needs: move parsing, move application, legal
// move generation, and position-key derivation. Nothing else in the
// repository implements chess legality.
package rules

import (
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// PositionKey is the canonical, transposition-equivalent identity of a
// position: the base64 form of the packed position, which covers piece
// placement, side to move, castling rights, and en-passant availability,
// and excludes the halfmove/fullmove counters. Two games reaching the
// same position via different move orders produce the same key.
type PositionKey string

// Key derives the position key for a game state.
func Key(pos *pgn.GameState) PositionKey {
	return PositionKey(pos.Pack().String())
}

// KeyFromFEN derives the position key for a FEN string. A malformed FEN
// never yields an error: the raw input is returned as a degraded
// fallback key so a single bad record cannot abort ingestion. Callers
// log the degradation.
func KeyFromFEN(fen string) PositionKey {
	keyStr, err := pgn.PackedPositionFromFEN(fen)
	if err != nil {
		return PositionKey(fen)
	}
	return PositionKey(keyStr)
}

// StartingPosition returns a fresh game state at the standard start.
func StartingPosition() *pgn.GameState {
	return pgn.NewStartingPosition()
}

// FromFEN parses a FEN string into a game state.
func FromFEN(fen string) (*pgn.GameState, error) {
	keyStr, err := pgn.PackedPositionFromFEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse FEN %q: %w", fen, err)
	}
	packed, err := pgn.ParsePackedPosition(keyStr)
	if err != nil {
		return nil, fmt.Errorf("parse position key: %w", err)
	}
	pos := packed.Unpack()
	if pos == nil {
		return nil, fmt.Errorf("unpack position for FEN %q", fen)
	}
	return pos, nil
}

// Clone returns an independent copy of a game state.
func Clone(pos *pgn.GameState) *pgn.GameState {
	return pos.Pack().Unpack()
}

// ParseMove parses a move in SAN ("Nf3") or UCI ("g1f3") notation against
// the given position and validates legality.
func ParseMove(pos *pgn.GameState, text string) (pgn.Mv, error) {
	san := strings.TrimSuffix(strings.TrimSuffix(text, "#"), "+")
	if mv, err := pgn.ParseSAN(pos, san); err == nil {
		return mv, nil
	}
	// UCI fallback: match against generated legal moves.
	for _, mv := range pgn.GenerateLegalMoves(pos) {
		if UCI(mv) == strings.ToLower(text) {
			return mv, nil
		}
	}
	return pgn.Mv{}, fmt.Errorf("illegal or unparseable move %q (legal: %s)",
		text, strings.Join(LegalSAN(pos, 10), ", "))
}

// Apply plays a move on the position in place.
func Apply(pos *pgn.GameState, mv pgn.Mv) error {
	return pgn.ApplyMove(pos, mv)
}

// LegalMoves returns every legal move in the position.
func LegalMoves(pos *pgn.GameState) []pgn.Mv {
	return pgn.GenerateLegalMoves(pos)
}

// LegalSAN returns up to max legal moves in SAN, for error messages.
func LegalSAN(pos *pgn.GameState, max int) []string {
	moves := pgn.GenerateLegalMoves(pos)
	if max > 0 && len(moves) > max {
		moves = moves[:max]
	}
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, SAN(pos, mv))
	}
	return out
}

// WhiteToMove reports whether white is to move in the position.
func WhiteToMove(pos *pgn.GameState) bool {
	return strings.Contains(pos.ToFEN(), " w ")
}

const (
	fileChars = "abcdefgh"
	rankChars = "12345678"
)

func squareName(sq pgn.Square) string {
	return string(fileChars[sq%8]) + string(rankChars[sq/8])
}

func pieceUpper(p byte) byte {
	if p >= 'a' && p <= 'z' {
		return p - 32
	}
	return p
}

func promoLetter(mv pgn.Mv) string {
	switch mv.Promo {
	case pgn.PromoQueen:
		return "q"
	case pgn.PromoRook:
		return "r"
	case pgn.PromoBishop:
		return "b"
	case pgn.PromoKnight:
		return "n"
	}
	return ""
}

// UCI converts a move to UCI notation (e.g. "e2e4", "e7e8q").
func UCI(mv pgn.Mv) string {
	return squareName(mv.From) + squareName(mv.To) + promoLetter(mv)
}

// SAN converts a move to SAN notation for the given position. The move
// must not have been applied yet.
func SAN(pos *pgn.GameState, mv pgn.Mv) string {
	// Castling is flagged by the move generator.
	if mv.Flags == 4 {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	piece := pos.PieceAt(mv.From)
	isPawn := piece == 'P' || piece == 'p'
	isCapture := pos.PieceAt(mv.To) != 0 || (isPawn && mv.Flags == 2) // en passant

	var san string
	if isPawn {
		if isCapture {
			san = string(fileChars[mv.From%8]) + "x" + squareName(mv.To)
		} else {
			san = squareName(mv.To)
		}
		if p := promoLetter(mv); p != "" {
			san += "=" + strings.ToUpper(p)
		}
	} else {
		san = string(pieceUpper(piece)) + disambiguation(pos, mv, pieceUpper(piece))
		if isCapture {
			san += "x"
		}
		san += squareName(mv.To)
	}

	return san + checkSuffix(pos, mv)
}

// disambiguation returns the file/rank qualifier needed when another
// piece of the same type also reaches the target square.
func disambiguation(pos *pgn.GameState, mv pgn.Mv, piece byte) string {
	for _, other := range pgn.GenerateLegalMoves(pos) {
		if other.To != mv.To || other.From == mv.From {
			continue
		}
		if pieceUpper(pos.PieceAt(other.From)) != piece {
			continue
		}
		switch {
		case mv.From%8 != other.From%8:
			return string(fileChars[mv.From%8])
		case mv.From/8 != other.From/8:
			return string(rankChars[mv.From/8])
		default:
			return squareName(mv.From)
		}
	}
	return ""
}

// checkSuffix returns "+", "#", or "" for the position after the move.
func checkSuffix(pos *pgn.GameState, mv pgn.Mv) string {
	after := Clone(pos)
	if after == nil {
		return ""
	}
	_ = pgn.ApplyMove(after, mv)
	if !after.IsInCheck() {
		return ""
	}
	if len(pgn.GenerateLegalMoves(after)) == 0 {
		return "#"
	}
	return "+"
}
