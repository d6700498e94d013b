package ui

import (
	"fmt"

	"github.com/bamsammich/ferry/internal/stats"
)

// completionSummary builds a final summary line from a snapshot.
// Format: done ✓  files 48,917  size 2.1 GiB  avg 641 MiB/s  time 3m 17s  errors 0
func completionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesMoved) / snap.Elapsed.Seconds()
	}

	failed := snap.FilesFailed + snap.TasksFailed
	icon := "✓"
	if failed > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  files %s  size %s  avg %s  time %s",
		icon,
		FormatCount(snap.FilesDone),
		FormatBytes(snap.BytesMoved),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)
	if snap.FilesSkipped > 0 {
		base += "  skipped " + FormatCount(snap.FilesSkipped)
	}
	if snap.Deleted > 0 {
		base += "  deleted " + FormatCount(snap.Deleted)
	}
	if snap.Mismatches > 0 {
		base += "  mismatches " + FormatCount(snap.Mismatches)
	}
	if snap.TasksCanceled > 0 {
		base += "  canceled"
	}
	return base + fmt.Sprintf("  errors %d", failed)
}
