package parse

import (
	"iter"
	"os"
	"sort"

	"github.com/cockroachdb/errors"

	"can-log-analyzer/internal/models"
)

const topIDCount = 10

// collectStats folds a frame stream into FileStats.
func collectStats(path string, seq iter.Seq2[[]models.Frame, error]) (models.FileStats, error) {
	stats := models.FileStats{
		IDFrequency:     make(map[uint32]uint64),
		DLCDistribution: make(map[uint8]uint64),
	}

	info, err := os.Stat(path)
	if err != nil {
		return stats, errors.Wrapf(err, "failed to stat %s", path)
	}
	stats.FileSize = info.Size()

	var haveFirst bool
	channels := make(map[string]struct{})

	for batch, err := range seq {
		if err != nil {
			return stats, err
		}
		for _, f := range batch {
			stats.TotalMessages++
			stats.IDFrequency[f.ID]++
			stats.DLCDistribution[f.DLC]++
			channels[f.Channel] = struct{}{}

			if !haveFirst {
				stats.TimeRange.Start = f.Timestamp
				haveFirst = true
			}
			stats.TimeRange.End = f.Timestamp

			if f.Extended {
				stats.ExtendedIDs++
			} else {
				stats.StandardIDs++
			}
			if f.Error {
				stats.ErrorFrames++
			}
		}
	}

	stats.UniqueIDs = len(stats.IDFrequency)
	stats.Channels = make([]string, 0, len(channels))
	for ch := range channels {
		stats.Channels = append(stats.Channels, ch)
	}
	sort.Strings(stats.Channels)

	if duration := stats.TimeRange.Duration(); duration > 0 {
		stats.MessageRate = float64(stats.TotalMessages) / duration
	}
	stats.TopIDs = topIDs(stats.IDFrequency, topIDCount)
	return stats, nil
}

// topIDs ranks identifiers by frequency, ties broken by identifier for
// deterministic output.
func topIDs(freq map[uint32]uint64, n int) []models.IDCount {
	ranked := make([]models.IDCount, 0, len(freq))
	for id, count := range freq {
		ranked = append(ranked, models.IDCount{ID: id, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
