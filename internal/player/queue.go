package player

import (
	"songbird/internal/core"
)

// indexOf finds a track in the queue by id identity. Returns -1 when absent.
func indexOf(queue []core.Track, id string) int {
	for i := range queue {
		if queue[i].ID == id {
			return i
		}
	}
	return -1
}

// NextTrack computes the track after the current one, wrapping around at the
// end of the queue. A current track missing from the queue is treated as
// position zero. An empty queue yields no track.
func NextTrack(queue []core.Track, current *core.Track) (core.Track, bool) {
	if len(queue) == 0 {
		return core.Track{}, false
	}

	index := 0
	if current != nil {
		if i := indexOf(queue, current.ID); i >= 0 {
			index = i
		}
	}
	return queue[(index+1)%len(queue)], true
}

// PreviousTrack computes the track before the current one, wrapping around at
// the start of the queue. Symmetric to NextTrack.
func PreviousTrack(queue []core.Track, current *core.Track) (core.Track, bool) {
	if len(queue) == 0 {
		return core.Track{}, false
	}

	index := 0
	if current != nil {
		if i := indexOf(queue, current.ID); i >= 0 {
			index = i
		}
	}
	return queue[(index-1+len(queue))%len(queue)], true
}

// replaceInQueue swaps the queue entry with the same id for the updated
// track value. Queues hold track values, so a resolved URL must be written
// back explicitly for future replays to skip resolution.
func replaceInQueue(queue []core.Track, updated core.Track) {
	if i := indexOf(queue, updated.ID); i >= 0 {
		queue[i] = updated
	}
}

// sameQueue reports whether two queues hold the same tracks in the same
// order, by id identity.
func sameQueue(a, b []core.Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
