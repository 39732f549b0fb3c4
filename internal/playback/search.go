// ABOUTME: Timestamp index lookup for seeking
// ABOUTME: Maps a show time onto the frame that should be showing at that time
package playback

import "sort"

// Search returns the largest index i with timestamps[i] <= ts. When ts
// precedes every timestamp it returns 0, so the first frame stands in for
// any earlier time. timestamps must be sorted and non-empty.
func Search(timestamps []uint32, ts uint64) int {
	i, ok := SearchStrict(timestamps, ts)
	if !ok {
		return 0
	}
	return i
}

// SearchStrict is Search without the floor: ok is false when timestamps is
// empty or ts precedes the first timestamp.
func SearchStrict(timestamps []uint32, ts uint64) (int, bool) {
	// First index whose timestamp is past ts.
	after := sort.Search(len(timestamps), func(i int) bool {
		return uint64(timestamps[i]) > ts
	})
	if after == 0 {
		return 0, false
	}
	return after - 1, true
}
