package linestore

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Replace stores a new line and retires every stored line that is a
// strict, shorter prefix of it. Sibling branches are left untouched.
//
// Ordering is chosen so a crash at any point leaves a recoverable
// state: candidates are renamed to backups (never deleted) before the
// new artifact is written; backups are removed only after the write
// succeeded; any write failure renames every backup back and surfaces
// the error. After Replace returns, the stored set is either unchanged
// or the candidates are gone and the new line exists.
func Replace(fs FS, log zerolog.Logger, player, startFEN string, moves []string) (newID string, replaced []string, err error) {
	lines, err := fs.List(player)
	if err != nil {
		return "", nil, fmt.Errorf("list lines: %w", err)
	}

	// Scan for related lines first, then keep only strict shorter
	// prefixes: an extension of the new line or an equal line stays.
	var candidates []Line
	for _, line := range lines {
		if !IsRelated(line.Moves, moves) {
			continue
		}
		if isStrictPrefix(line.Moves, moves) {
			candidates = append(candidates, line)
		}
	}

	if len(candidates) == 0 {
		newID, err = fs.Write(player, startFEN, moves)
		if err != nil {
			return "", nil, err
		}
		return newID, nil, nil
	}

	type backup struct{ orig, bak string }
	backups := make([]backup, 0, len(candidates))
	rollback := func() {
		for _, b := range backups {
			if rerr := fs.Rename(b.bak, b.orig); rerr != nil {
				log.Error().Err(rerr).Str("backup", b.bak).Msg("rollback rename failed")
			}
		}
	}

	for _, c := range candidates {
		bak := c.ID + ".bak"
		if err := fs.Rename(c.ID, bak); err != nil {
			rollback()
			return "", nil, fmt.Errorf("backup %s: %w", c.ID, err)
		}
		backups = append(backups, backup{orig: c.ID, bak: bak})
	}

	newID, err = fs.Write(player, startFEN, moves)
	if err != nil {
		rollback()
		return "", nil, fmt.Errorf("write replacement line: %w", err)
	}

	for _, b := range backups {
		if derr := fs.Delete(b.bak); derr != nil {
			// The replacement already holds; a leftover backup is
			// logged, not fatal.
			log.Warn().Err(derr).Str("backup", b.bak).Msg("backup cleanup failed")
		}
		replaced = append(replaced, b.orig)
	}

	log.Info().
		Str("player", player).
		Int("replaced", len(replaced)).
		Str("new", newID).
		Msg("line replacement complete")
	return newID, replaced, nil
}

// isStrictPrefix reports whether shorter is a strict, shorter prefix of
// longer, comparing move tokens case-insensitively.
func isStrictPrefix(shorter, longer []string) bool {
	if len(shorter) == 0 || len(shorter) >= len(longer) {
		return false
	}
	for i, tok := range shorter {
		if !strings.EqualFold(tok, longer[i]) {
			return false
		}
	}
	return true
}

// IsRelated reports whether two lines are prefix-related in either
// direction (used to surface related lines to callers).
func IsRelated(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	for i, tok := range shorter {
		if !strings.EqualFold(tok, longer[i]) {
			return false
		}
	}
	return true
}
