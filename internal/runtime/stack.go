package runtime

import "github.com/aretw0/parley/pkg/domain"

// Stack is the call chain of frames; the last frame is executing.
type Stack struct {
	frames []*Frame
	// generation increments on every push or pop so the turn loop can detect stack changes.
	generation uint64
}

// NewStack rebuilds a stack from persisted frames.
func NewStack(states []domain.FrameState) *Stack {
	s := &Stack{frames: make([]*Frame, 0, len(states))}
	for _, fs := range states {
		s.frames = append(s.frames, FrameFromState(fs))
	}
	return s
}

// Push adds f on top.
func (s *Stack) Push(f *Frame) {
	s.frames = append(s.frames, f)
	s.generation++
}

// Pop removes and returns the top frame, or nil when empty.
func (s *Stack) Pop() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	s.generation++
	return top
}

// Top returns the executing frame, or nil when empty.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Get returns the frame at index i (0 is the bottom), or nil when out of range.
func (s *Stack) Get(i int) *Frame {
	if i < 0 || i >= len(s.frames) {
		return nil
	}
	return s.frames[i]
}

// Lift pops every frame above index i so that frame i becomes the top.
func (s *Stack) Lift(i int) {
	for len(s.frames) > i+1 {
		s.Pop()
	}
}

// Flush removes all frames.
func (s *Stack) Flush() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = nil
	s.generation++
}

func (s *Stack) Size() int { return len(s.frames) }

func (s *Stack) IsEmpty() bool { return len(s.frames) == 0 }

// Generation identifies the current shape of the stack.
func (s *Stack) Generation() uint64 { return s.generation }

// State returns the persisted shape of the stack.
func (s *Stack) State() []domain.FrameState {
	out := make([]domain.FrameState, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.State()
	}
	return out
}
