package engine

import "time"

// envState is the per-environment ephemeral state that survives across
// environment-steps within one episode: the raw frame/score/life
// counters and the interleaved frame-stack buffer.
type envState struct {
	frame int32
	score int32
	lives int32

	// rot is the interleaved frame stack: rot[pixel*stack + slot].
	rot []byte

	// small1/small2 are scratch half-resolution grayscale buffers for
	// the last two raw frames of the most recent environment-step.
	small1, small2 []byte

	// epStart marks when the current episode began, for the elapsed
	// time reported to the episode observer.
	epStart time.Time
}

func newEnvState(h, w, stack int) *envState {
	return &envState{
		rot:    make([]byte, h*w*stack),
		small1: make([]byte, h*w),
		small2: make([]byte, h*w),
	}
}

// shiftPush drops the oldest frame from rot and appends frame (h*w
// bytes, one per pixel) as the newest slot.
//
// The shift moves the whole buffer left by one byte in a single copy,
// which crosses pixel boundaries; this is safe because every byte that
// crosses into a neighboring pixel's stack is itself about to be
// overwritten by that pixel's own newest-slot write below.
func (s *envState) shiftPush(frame []byte, stack int) {
	n := len(s.rot)
	copy(s.rot[:n-1], s.rot[1:])
	for p := 0; p < len(frame); p++ {
		s.rot[p*stack+stack-1] = frame[p]
	}
}

// fillReplicated overwrites rot with stack copies of frame, used when
// an episode boundary replaces the whole stack with the fresh frame.
func (s *envState) fillReplicated(frame []byte, stack int) {
	for p := 0; p < len(frame); p++ {
		base := p * stack
		for i := 0; i < stack; i++ {
			s.rot[base+i] = frame[p]
		}
	}
}

// maxInto writes max(a[i], b[i]) into out for every byte.
func maxInto(out, a, b []byte) {
	for i := range out {
		if a[i] > b[i] {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
}
