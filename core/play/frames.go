package play

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
)

// Frame list operations. Each takes the frames of a play ordered by frame number and returns the new ordered list,
// renumbered 0..N-1. Frames keep their identity through their ID; a frame with an empty ID is a new frame.

func renumber(frames []Frame) {
	for i := range frames {
		frames[i].FrameNumber = i
	}
}

func indexOfFrame(frames []Frame, id string) int {
	for i, f := range frames {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// insertFrame inserts f at position `at`, shifting the followers. A nil or out of range position appends.
func insertFrame(frames []Frame, f Frame, at *int) ([]Frame, int) {
	idx := len(frames)
	if at != nil && *at < idx {
		idx = *at
	}
	out := make([]Frame, 0, len(frames)+1)
	out = append(out, frames[:idx]...)
	out = append(out, f)
	out = append(out, frames[idx:]...)
	renumber(out)
	return out, idx
}

// moveFrame moves the frame at `from` to position `to` (clamped to the last position).
func moveFrame(frames []Frame, from, to int) ([]Frame, int) {
	if to >= len(frames) {
		to = len(frames) - 1
	}
	if from == to {
		return frames, to
	}
	f := frames[from]
	rest := make([]Frame, 0, len(frames))
	rest = append(rest, frames[:from]...)
	rest = append(rest, frames[from+1:]...)

	out := make([]Frame, 0, len(frames))
	out = append(out, rest[:to]...)
	out = append(out, f)
	out = append(out, rest[to:]...)
	renumber(out)
	return out, to
}

// removeFrame deletes the frame `id` and closes the gap it leaves.
func removeFrame(frames []Frame, id string) ([]Frame, error) {
	idx := indexOfFrame(frames, id)
	if idx < 0 {
		return nil, ErrFrameNotFound
	}
	out := make([]Frame, 0, len(frames)-1)
	out = append(out, frames[:idx]...)
	out = append(out, frames[idx+1:]...)
	renumber(out)
	return out, nil
}

// reorderFrames gives the listed frames their new number & content, then sorts & renumbers the whole list.
// Frames left out of `orders` keep their current number; on a tie, a listed frame comes first.
func reorderFrames(frames []Frame, orders []FrameOrder) ([]Frame, error) {
	type sortKey struct {
		frame  Frame
		number int
		listed bool
		pos    int
	}

	byID := make(map[string]int, len(frames))
	keys := make([]sortKey, len(frames))
	for i, f := range frames {
		byID[f.ID] = i
		keys[i] = sortKey{frame: f, number: f.FrameNumber, pos: i}
	}

	for i, ord := range orders {
		idx, ok := byID[ord.FrameID]
		if !ok {
			return nil, errors.Wrapf(ErrFrameNotFound, "frame %s", ord.FrameID)
		}
		if keys[idx].listed {
			return nil, errDuplicateFrame(ord.FrameID)
		}
		keys[idx].number = ord.FrameNumber
		keys[idx].listed = true
		keys[idx].pos = i
		ord.FrameContent.apply(&keys[idx].frame)
		keys[idx].frame.normalize()
	}

	sort.SliceStable(keys, func(i, j int) bool {
		ki, kj := keys[i], keys[j]
		if ki.number != kj.number {
			return ki.number < kj.number
		}
		if ki.listed != kj.listed {
			return ki.listed
		}
		return ki.pos < kj.pos
	})

	out := make([]Frame, len(keys))
	for i, k := range keys {
		out[i] = k.frame
	}
	renumber(out)
	return out, nil
}

// diffFrames turns a full frame list into the play's new frames: inputs matching an existing frame update it,
// the others become new frames, and existing frames absent from the inputs are dropped.
func diffFrames(existing []Frame, inputs []FrameInput) ([]Frame, error) {
	byID := make(map[string]int, len(existing))
	for i, f := range existing {
		byID[f.ID] = i
	}

	used := make(map[string]struct{}, len(inputs))
	out := make([]Frame, 0, len(inputs))
	for _, in := range inputs {
		idx, ok := byID[in.FrameID]
		if in.FrameID == "" || !ok {
			out = append(out, in.FrameContent.toFrame())
			continue
		}
		if _, dup := used[in.FrameID]; dup {
			return nil, errDuplicateFrame(in.FrameID)
		}
		used[in.FrameID] = struct{}{}

		f := existing[idx]
		in.FrameContent.apply(&f)
		f.normalize()
		out = append(out, f)
	}
	renumber(out)
	return out, nil
}

func errDuplicateFrame(id string) error {
	return core.NewValidationError(nil, core.FieldError{Field: "frames", Error: "frame " + id + " is listed more than once"})
}
