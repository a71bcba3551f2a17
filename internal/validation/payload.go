package validation

import (
	"encoding/json"

	"github.com/fntelecomllc/dnsguard/internal/models"
)

// BuildResultPayload serializes result to JSON within maxBytes, progressively
// summarizing when it doesn't fit: first collapse the snapshot to counts
// only and each missing entry's found list to its first 3 items; if still
// over budget, replace every snapshot entry with a note-only entry and drop
// every missing entry's found list entirely. Overflow is never an error.
func BuildResultPayload(result *models.CheckResult, maxBytes int) ([]byte, error) {
	full, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if len(full) <= maxBytes {
		return full, nil
	}

	summarized := summarize(result, false)
	partial, err := json.Marshal(summarized)
	if err != nil {
		return nil, err
	}
	if len(partial) <= maxBytes {
		return partial, nil
	}

	minimal := summarize(result, true)
	return json.Marshal(minimal)
}

func summarize(result *models.CheckResult, minimal bool) *models.CheckResult {
	out := &models.CheckResult{
		OK:       result.OK,
		Missing:  make([]models.MissingEntry, len(result.Missing)),
		Snapshot: models.Snapshot{},
	}

	for i, m := range result.Missing {
		copyEntry := m
		if minimal {
			copyEntry.Found = []string{}
		} else if len(copyEntry.Found) > 3 {
			copyEntry.Found = copyEntry.Found[:3]
		}
		out.Missing[i] = copyEntry
	}

	for key, snap := range result.Snapshot {
		if minimal {
			out.Snapshot[key] = models.SnapshotEntry{Note: "summarized: payload exceeded size budget"}
			continue
		}
		out.Snapshot[key] = models.SnapshotEntry{
			Total:     snap.Total,
			Truncated: snap.Truncated,
			Hash:      snap.Hash,
		}
	}

	return out
}
