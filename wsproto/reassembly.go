// File: wsproto/reassembly.go
// Fragmented message reassembly: reassemble opcode-0 continuations up
// to the configured max message size, then dispatch as one logical
// message; interleaved control frames are handled inline (they never
// need reassembly) but a data frame interleaved inside a fragmented
// message is rejected.
package wsproto

import "errors"

// ErrMessageTooLarge is returned when an in-progress or completed
// reassembly would exceed the configured limit.
var ErrMessageTooLarge = errors.New("wsproto: message exceeds maximum size")

// ErrInterleavedDataFrame is returned when a non-continuation data
// frame arrives while a fragmented message is still open.
var ErrInterleavedDataFrame = errors.New("wsproto: data frame interleaved with fragmented message")

// Reassembler accumulates continuation frames for one client into a
// single logical message.
type Reassembler struct {
	maxSize int
	opcode  Opcode
	buf     []byte
	open    bool
}

// NewReassembler constructs a Reassembler bounded by maxSize bytes.
func NewReassembler(maxSize int) *Reassembler {
	return &Reassembler{maxSize: maxSize}
}

// Feed processes one decoded data frame (opcode 0, 1, or 2). It returns
// (payload, true, nil) when f completes a logical message (either a
// standalone fin frame or the final continuation of a fragmented one).
// It returns (nil, false, nil) while a fragmented message is still
// accumulating. An error aborts and clears any in-progress message.
func (r *Reassembler) Feed(f Frame) (payload []byte, complete bool, err error) {
	switch f.Opcode {
	case OpText, OpBinary:
		if r.open {
			r.reset()
			return nil, false, ErrInterleavedDataFrame
		}
		if len(f.Payload) > r.maxSize {
			return nil, false, ErrMessageTooLarge
		}
		if f.Fin {
			return f.Payload, true, nil
		}
		r.open = true
		r.opcode = f.Opcode
		r.buf = append(r.buf[:0], f.Payload...)
		return nil, false, nil

	case OpContinuation:
		if !r.open {
			return nil, false, nil
		}
		if len(r.buf)+len(f.Payload) > r.maxSize {
			r.reset()
			return nil, false, ErrMessageTooLarge
		}
		r.buf = append(r.buf, f.Payload...)
		if f.Fin {
			out := r.buf
			r.reset()
			return out, true, nil
		}
		return nil, false, nil

	default:
		// Control frames never participate in reassembly.
		return nil, false, nil
	}
}

func (r *Reassembler) reset() {
	r.open = false
	r.buf = nil
	r.opcode = 0
}
