package daap

import (
	"fmt"
	"math"
)

// MediaKind is the projected iTunes media kind (spec.md §4.G).
type MediaKind int

const (
	MediaKindUnknown MediaKind = iota
	MediaKindVideo
	MediaKindMusic
	MediaKindTV
)

// UnknownMediaKindError indicates a raw iTunes kind code outside the fixed
// domain handled by MediaKindOf (spec.md §7).
type UnknownMediaKindError struct {
	Code int
}

func (e *UnknownMediaKindError) Error() string {
	return fmt.Sprintf("daap: unknown media kind code %d", e.Code)
}

var mediaKindSets = map[MediaKind]map[int]struct{}{
	MediaKindUnknown: setOf(1, 32770),
	MediaKindVideo:   setOf(3, 7, 11, 12, 13, 18, 32),
	MediaKindMusic:   setOf(2, 4, 10, 14, 17, 21, 36),
	MediaKindTV:      setOf(8, 64),
}

// MediaKindOf maps a raw iTunes kind code to a MediaKind (spec.md §4.G).
func MediaKindOf(code int) (MediaKind, error) {
	for kind, codes := range mediaKindSets {
		if _, ok := codes[code]; ok {
			return kind, nil
		}
	}
	return 0, &UnknownMediaKindError{Code: code}
}

// PlayState is the projected DACP play state (spec.md §4.G).
type PlayState int

const (
	PlayStateIdle PlayState = iota
	PlayStateLoading
	PlayStateStopped
	PlayStatePaused
	PlayStatePlaying
	PlayStateSeeking
)

// UnknownPlayStateError indicates a raw DACP state code outside the fixed
// domain handled by PlayStateOf (spec.md §7).
type UnknownPlayStateError struct {
	Code int
}

func (e *UnknownPlayStateError) Error() string {
	return fmt.Sprintf("daap: unknown play state code %d", e.Code)
}

var playStateSets = map[PlayState]map[int]struct{}{
	PlayStateIdle:    setOf(0),
	PlayStateLoading: setOf(1),
	PlayStateStopped: setOf(2),
	PlayStatePaused:  setOf(3),
	PlayStatePlaying: setOf(4),
	PlayStateSeeking: setOf(5, 6),
}

// PlayStateOf maps a raw DACP state code to a PlayState. A nil state (no
// value present in the response) maps to PlayStateIdle, per spec.md §4.G.
func PlayStateOf(code *int) (PlayState, error) {
	if code == nil {
		return PlayStateIdle, nil
	}
	for state, codes := range playStateSets {
		if _, ok := codes[*code]; ok {
			return state, nil
		}
	}
	return 0, &UnknownPlayStateError{Code: *code}
}

// msToSSentinel is the "no value" sentinel used by Apple's DACP responses
// for elapsed/total time fields.
const msToSSentinel = 1<<32 - 1

// MsToS converts a millisecond duration to whole seconds, per spec.md §4.G:
// nil maps to 0, the 2^32-1 sentinel and anything at or above it maps to 0,
// everything else rounds half-away-from-zero.
func MsToS(ms *int64) int64 {
	if ms == nil || *ms >= msToSSentinel {
		return 0
	}
	return int64(math.Round(float64(*ms) / 1000))
}

func setOf(vals ...int) map[int]struct{} {
	out := make(map[int]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}
