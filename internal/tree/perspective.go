package tree

import (
	"fmt"
	"strings"
)

// Pseudo-players whose stored lines carry moves for both sides of a
// prepared repertoire. They always appear as the White header and never
// carry a real outcome.
const (
	WhiteRepertoirePlayer = "white-repertoire"
	BlackRepertoirePlayer = "black-repertoire"
)

// Resolution is the outcome of matching a game's headers against the
// tree's target player and perspective. It is computed once per game,
// before any tree mutation, so callers can report skip reasons for a
// whole batch without partially ingesting it.
type Resolution struct {
	Color      Color        // the player's actual color in the game
	Result     PlayerResult // outcome from the player's perspective
	SkipStats  bool         // outcome must not feed statistics
	SkipReason string       // non-empty: the whole game is skipped
}

// Skipped reports whether the game should not be ingested at all.
func (r Resolution) Skipped() bool { return r.SkipReason != "" }

// nameVariants returns the normalized spellings a player name is known
// under: lowercase, underscore and space interchanged, and first/last
// order swapped for two-part names. Source data uses "First_Last",
// "Last First" and similar forms interchangeably.
func nameVariants(name string) []string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	variants := []string{name}
	sep := ""
	if strings.Contains(name, "_") {
		sep = "_"
		variants = append(variants, strings.ReplaceAll(name, "_", " "))
	} else if strings.Contains(name, " ") {
		sep = " "
		variants = append(variants, strings.ReplaceAll(name, " ", "_"))
	}
	if sep != "" {
		parts := strings.Split(name, sep)
		if len(parts) == 2 {
			variants = append(variants,
				parts[1]+" "+parts[0],
				parts[1]+"_"+parts[0])
		}
	}
	return variants
}

// namesMatch reports whether two player names refer to the same player
// under any normalized variant. Matching is exact per variant, not
// containment, so short names cannot match as substrings.
func namesMatch(a, b string) bool {
	av := nameVariants(a)
	bv := nameVariants(b)
	for _, x := range av {
		for _, y := range bv {
			if x == y {
				return true
			}
		}
	}
	return false
}

// ResolvePerspective determines whether and how the target player
// participated in a game, and the per-player result code.
func ResolvePerspective(white, black, gameResult, player string, perspective Color) Resolution {
	white = strings.TrimSpace(white)
	black = strings.TrimSpace(black)

	if strings.TrimSpace(player) == "" {
		return Resolution{SkipStats: true, SkipReason: "no player name configured"}
	}

	// Repertoire pseudo-players are always stored as the White header
	// and carry moves for both sides; they resolve to the white
	// perspective with no real outcome.
	if player == WhiteRepertoirePlayer || player == BlackRepertoirePlayer {
		if namesMatch(player, white) {
			return Resolution{Color: White, Result: ResultUnknown, SkipStats: true}
		}
		return Resolution{
			SkipStats: true,
			SkipReason: fmt.Sprintf("repertoire player %q not in game headers (white=%q black=%q)",
				player, white, black),
		}
	}

	if perspective == White {
		if !namesMatch(player, white) {
			return Resolution{
				SkipStats: true,
				SkipReason: fmt.Sprintf("player %q wants white games but is not white (white=%q black=%q)",
					player, white, black),
			}
		}
		r := resultFor(gameResult, White)
		return Resolution{Color: White, Result: r, SkipStats: r == ResultUnknown}
	}

	if !namesMatch(player, black) {
		return Resolution{
			SkipStats: true,
			SkipReason: fmt.Sprintf("player %q wants black games but is not black (white=%q black=%q)",
				player, white, black),
		}
	}
	r := resultFor(gameResult, Black)
	return Resolution{Color: Black, Result: r, SkipStats: r == ResultUnknown}
}

// resultFor maps a PGN result code to the outcome for the given color.
func resultFor(gameResult string, color Color) PlayerResult {
	switch gameResult {
	case "1-0":
		if color == White {
			return ResultWin
		}
		return ResultLoss
	case "0-1":
		if color == Black {
			return ResultWin
		}
		return ResultLoss
	case "1/2-1/2", "½-½":
		return ResultDraw
	default:
		return ResultUnknown
	}
}
