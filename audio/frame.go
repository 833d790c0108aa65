package audio

// Frame is an ordered sequence of PCM16 samples at the profile's internal
// rate, with an explicit duration. Frames carry a monotonic sequence number
// within a session direction (ingress/egress) — set by the caller, not by
// this package.
type Frame struct {
	Samples    []int16
	DurationMs int
	Seq        uint64
}
