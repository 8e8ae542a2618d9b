package encoder

import (
	"errors"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/hal"
)

// Attach wires the quadrature A and B lines to the encoder's tick counter.
// The installed handler runs in interrupt context and only samples B and
// bumps the atomic count, so it is safe at ISR rates. Detach by installing
// a nil handler on the A pin.
func Attach(e *Encoder, a, b hal.InterruptPin) error {
	if e == nil || a == nil || b == nil {
		return errors.New("encoder: encoder and both pins are required")
	}
	a.SetEdgeHandler(func(aHigh bool) {
		bHigh, err := b.Get()
		if err != nil {
			return
		}
		e.Edge(aHigh, bHigh)
	})
	return nil
}
