package service

import "sort"

// MergeResults combines vector and keyword matches into a single ranked
// list. Vector matches win ties: when both sources return the same chunk ID
// the vector entry (with its real similarity) is kept and the keyword entry
// dropped. The merged list is sorted by similarity descending and truncated
// to limit. A limit <= 0 means no truncation.
func MergeResults(vector, keyword []*SearchResult, limit int) []*SearchResult {
	merged := make([]*SearchResult, 0, len(vector)+len(keyword))
	seen := make(map[int64]bool, len(vector)+len(keyword))
	for _, r := range vector {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		merged = append(merged, r)
	}
	for _, r := range keyword {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
