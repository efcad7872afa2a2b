package audiodev

import "errors"

// ErrDeviceBusy is returned by TryAcquire when the audio hardware is already
// held by another playback or capture operation.
var ErrDeviceBusy = errors.New("audiodev: audio device is busy")

// Gate serializes access to the audio hardware. Exactly one holder may own
// the device at a time; a second acquirer is rejected immediately rather
// than queued.
type Gate struct {
	slot chan struct{}
}

// NewGate returns a Gate with a single free slot.
func NewGate() *Gate {
	return &Gate{slot: make(chan struct{}, 1)}
}

// TryAcquire claims the device without blocking. It returns ErrDeviceBusy
// when the device is already held.
func (g *Gate) TryAcquire() error {
	select {
	case g.slot <- struct{}{}:
		return nil
	default:
		return ErrDeviceBusy
	}
}

// Release frees the device. It must be called exactly once per successful
// TryAcquire; calling it on a free gate panics.
func (g *Gate) Release() {
	select {
	case <-g.slot:
	default:
		panic("audiodev: Release without matching TryAcquire")
	}
}
