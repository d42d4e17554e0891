package detector

import (
	"sort"

	"github.com/dudu/blazekit/internal/geometry"
)

// NMS performs greedy Non-Maximum Suppression.
// Candidates are visited by descending score, ties keeping input order, and one
// is kept only if its IoU with every kept detection is below iouThreshold.
// maxResults <= 0 means no cap. The input slice is not modified.
func NMS(detections []Detection, iouThreshold float32, maxResults int) []Detection {
	if len(detections) == 0 {
		return nil
	}

	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	capacity := len(sorted)
	if maxResults > 0 && maxResults < capacity {
		capacity = maxResults
	}
	result := make([]Detection, 0, capacity)

	for _, candidate := range sorted {
		suppressed := false
		for _, kept := range result {
			if geometry.IoU(candidate.Rect, kept.Rect) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		result = append(result, candidate)
		if maxResults > 0 && len(result) >= maxResults {
			break
		}
	}

	return result
}
