package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ExportTrajectories writes trajectory rows to w as JSON lines, ordered by
// seed, step and insertion. An empty seeds list exports every seed.
// Returns the number of rows written.
func (s *SQLiteResultsStore) ExportTrajectories(ctx context.Context, w io.Writer, seeds []int64) (int, error) {
	if len(seeds) == 0 {
		all, err := s.TrajectorySeeds(ctx)
		if err != nil {
			return 0, err
		}
		seeds = all
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	written := 0

	for _, seed := range seeds {
		rows, err := s.Trajectory(ctx, seed)
		if err != nil {
			return written, err
		}
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return written, fmt.Errorf("failed to encode row (%d, %d): %w", r.Seed, r.Step, err)
			}
			written++
		}
	}

	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("failed to flush export: %w", err)
	}
	return written, nil
}
