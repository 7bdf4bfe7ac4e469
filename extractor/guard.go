package extractor

import "fmt"

// Guard enforces the extractor side of the lifecycle: Configure succeeds
// once, Process needs a configured extractor with the right number of
// buffers, and Finish may be called once. Extractor implementations embed
// it.
type Guard struct {
	configured bool
	finished   bool
	channels   int
}

// Configure validates c against the accepted channel range and marks the
// extractor configured.
func (g *Guard) Configure(c Configuration, minChannels, maxChannels int) error {
	switch {
	case g.finished:
		return ErrExtractorFinished
	case g.configured:
		return ErrAlreadyConfigured
	case c.ChannelCount < minChannels || c.ChannelCount > maxChannels:
		return fmt.Errorf("%w: %d channels, want %d..%d", ErrChannelCountMismatch, c.ChannelCount, minChannels, maxChannels)
	case c.Framing.BlockSize <= 0 || c.Framing.StepSize <= 0:
		return fmt.Errorf("invalid framing %+v", c.Framing)
	}
	g.configured = true
	g.channels = c.ChannelCount
	return nil
}

// CheckProcess validates a block before processing.
func (g *Guard) CheckProcess(in ProcessInput) error {
	switch {
	case g.finished:
		return ErrExtractorFinished
	case !g.configured:
		return ErrNotConfigured
	case len(in.InputBuffers) != g.channels:
		return fmt.Errorf("%w: got %d buffers, configured for %d", ErrChannelCountMismatch, len(in.InputBuffers), g.channels)
	}
	return nil
}

// Finish marks the extractor finished. It reports whether the extractor
// had been configured.
func (g *Guard) Finish() (configured bool, err error) {
	if g.finished {
		return false, ErrExtractorFinished
	}
	g.finished = true
	return g.configured, nil
}

// Channels is the configured channel count.
func (g *Guard) Channels() int { return g.channels }
