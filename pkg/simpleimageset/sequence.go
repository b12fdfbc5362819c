package simpleimageset

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Position sequencing. The invariant: within one imageset, positions are
// unique and form a contiguous range starting at 0. Plans are computed over a
// snapshot of the entries fetched once inside the container lock and applied
// as individual moves whose order guarantees every destination is vacant
// before it is written.

// positionMove relocates the entry at From to To.
type positionMove struct {
	From int
	To   int
}

// nextPosition returns the smallest unused position. With the density
// invariant intact this is simply the entry count.
func nextPosition(entries []*Entry) int {
	return len(entries)
}

// insertShifts plans the shifts needed to vacate target. The contiguous run
// of occupied positions starting at target moves up by one, processed from
// the high end down so each destination is free before it is written. An
// unoccupied target needs no shifts.
func insertShifts(entries []*Entry, target int) []positionMove {
	occupied := make(map[int]bool, len(entries))
	for _, e := range entries {
		occupied[e.Position] = true
	}

	if !occupied[target] {
		return nil
	}

	end := target
	for occupied[end+1] {
		end++
	}

	moves := make([]positionMove, 0, end-target+1)
	for p := end; p >= target; p-- {
		moves = append(moves, positionMove{From: p, To: p + 1})
	}
	return moves
}

// healMoves plans the pull-downs restoring density after removals. Entries
// sorted by position map onto 0..N-1 in order; the i-th entry's destination
// is always vacant because every lower-positioned entry has already been
// pulled at or below i-1. Healing a dense collection plans nothing, which
// makes the operation idempotent.
func healMoves(entries []*Entry) []positionMove {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	var moves []positionMove
	for i, e := range sorted {
		if e.Position != i {
			moves = append(moves, positionMove{From: e.Position, To: i})
		}
	}
	return moves
}

// applyMoves executes a move plan in order.
func applyMoves(ctx context.Context, repo Repository, imagesetID uuid.UUID, moves []positionMove) error {
	for _, m := range moves {
		if err := repo.MoveEntry(ctx, imagesetID, m.From, m.To); err != nil {
			return err
		}
	}
	return nil
}

// healLocked restores density for a container. Must run inside the
// container lock.
func healLocked(ctx context.Context, repo Repository, imagesetID uuid.UUID) error {
	entries, err := repo.ListEntries(ctx, imagesetID)
	if err != nil {
		return err
	}
	return applyMoves(ctx, repo, imagesetID, healMoves(entries))
}
