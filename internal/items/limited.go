package items

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited rate-limits commands sent through another registry. Reads are not limited.
type Limited struct {
	Registry
	limiter *rate.Limiter
}

// NewLimited wraps r, allowing rps commands per second with a burst of the same size.
func NewLimited(r Registry, rps float64) *Limited {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		Registry: r,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// SendCommand waits for the limiter, then forwards the command.
func (l *Limited) SendCommand(ctx context.Context, name, value string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.Registry.SendCommand(ctx, name, value)
}

// SendCommandIfDifferent checks the state and sends through the limiter.
func (l *Limited) SendCommandIfDifferent(ctx context.Context, name, value string) (bool, error) {
	return sendIfDifferent(ctx, l, name, value)
}
