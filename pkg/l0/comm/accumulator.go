package comm

import (
	"bytes"
	"encoding"

	"github.com/robotalks/l0link/pkg/l0/cobs"
)

// FeedStatus is the outcome of a single Accumulator.Feed.
type FeedStatus int

// Feed outcomes.
const (
	// FeedConsumed means all input was buffered and no frame completed.
	FeedConsumed FeedStatus = iota
	// FeedSuccess means a frame completed and decoded.
	FeedSuccess
	// FeedDeserError means a frame completed but failed to decode.
	FeedDeserError
	// FeedOverFull means buffered data exceeded capacity and was dropped.
	FeedOverFull
)

var feedStatusNames = [...]string{"Consumed", "Success", "DeserError", "OverFull"}

// String implements fmt.Stringer.
func (s FeedStatus) String() string {
	if s >= 0 && int(s) < len(feedStatusNames) {
		return feedStatusNames[s]
	}
	return "Unknown"
}

// FeedResult reports the outcome and the unprocessed remainder of the input.
type FeedResult struct {
	Status    FeedStatus
	Remaining []byte
}

// Accumulator reassembles delimited COBS frames from arbitrary chunks.
// It is not safe for concurrent use.
type Accumulator struct {
	buf []byte
	idx int
}

// NewAccumulator creates an Accumulator with a fixed capacity.
func NewAccumulator(size int) *Accumulator {
	return &Accumulator{buf: make([]byte, size)}
}

// Buffered returns the number of bytes of an incomplete frame.
func (a *Accumulator) Buffered() int {
	return a.idx
}

// Reset drops any incomplete frame.
func (a *Accumulator) Reset() {
	a.idx = 0
}

// Feed consumes window up to and including the first delimiter.
// When a frame completes it is decoded into v. Callers keep feeding
// Remaining until the result is FeedConsumed.
func (a *Accumulator) Feed(window []byte, v encoding.BinaryUnmarshaler) FeedResult {
	if len(window) == 0 {
		return FeedResult{Status: FeedConsumed}
	}
	n := bytes.IndexByte(window, cobs.Delimiter)
	if n < 0 {
		if !a.extend(window) {
			return FeedResult{Status: FeedOverFull}
		}
		return FeedResult{Status: FeedConsumed}
	}
	release := window[n+1:]
	if !a.extend(window[:n]) {
		return FeedResult{Status: FeedOverFull, Remaining: release}
	}
	frame := a.buf[:a.idx]
	a.idx = 0
	size, err := cobs.Decode(frame, frame)
	if err == nil {
		err = v.UnmarshalBinary(frame[:size])
	}
	if err != nil {
		return FeedResult{Status: FeedDeserError, Remaining: release}
	}
	return FeedResult{Status: FeedSuccess, Remaining: release}
}

func (a *Accumulator) extend(p []byte) bool {
	if a.idx+len(p) > len(a.buf) {
		a.idx = 0
		return false
	}
	a.idx += copy(a.buf[a.idx:], p)
	return true
}
