package history

import (
	"fmt"
	"io"
	"math"
	"sort"
)

// sortKey returns a's timestamp as a sort key, with unknown timestamps
// sorted after every known one.
func sortKey(a Action) uint64 {
	if a.Timestamp == nil {
		return math.MaxUint64
	}
	return uint64(*a.Timestamp)
}

// EmitActions stable-sorts actions by timestamp ascending (unknown
// timestamps last) and writes them to w in spec.md §6's history-output
// grammar, one action per line.
func EmitActions(w io.Writer, actions []Action) error {
	sorted := make([]Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	for _, a := range sorted {
		if _, err := fmt.Fprintln(w, formatAction(a)); err != nil {
			return fmt.Errorf("writing history output: %w", err)
		}
	}
	return nil
}

func formatAction(a Action) string {
	tsStr := "?"
	if a.Timestamp != nil {
		tsStr = fmt.Sprintf("%d", *a.Timestamp)
	}

	args := make([]string, len(a.Args))
	for i, arg := range a.Args {
		if arg == unknownPath {
			args[i] = "?"
		} else {
			args[i] = arg
		}
	}

	dirs := make([]string, len(a.AffectedDirs))
	for i, d := range a.AffectedDirs {
		if d == 0 {
			dirs[i] = "?"
		} else {
			dirs[i] = fmt.Sprintf("%d", d)
		}
	}

	inodes := make([]string, len(a.AffectedInodes))
	for i, n := range a.AffectedInodes {
		inodes[i] = fmt.Sprintf("%d", n)
	}

	return fmt.Sprintf("%s %s [%s] [%s] [%s]", tsStr, a.Kind, joinTokens(args), joinTokens(dirs), joinTokens(inodes))
}

func joinTokens(tokens []string) string {
	s := ""
	for i, t := range tokens {
		if i > 0 {
			s += " "
		}
		s += t
	}
	return s
}

// EmitTree writes the augmented directory tree lines (produced by
// internal/walk.Walker.Walk) to w, one per line, per spec.md §6's
// state-output grammar.
func EmitTree(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("writing state output: %w", err)
		}
	}
	return nil
}
