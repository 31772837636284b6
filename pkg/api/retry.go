package api

import "time"

// RetryPolicy controls how the dispatcher re-attempts a failing send before
// marking the job Failed. The default policy is a single attempt: transport
// failures are terminal and surfaced through the query interface.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values <= 0 are treated as 1.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt; <= 0 means 2.0.
	BackoffMultiplier float64

	// MaxBackoff caps the delay; <= 0 means no cap.
	MaxBackoff time.Duration
}

// Attempts returns the effective attempt count.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// BackoffFor returns the sleep before retry number retry (1-based).
func (p RetryPolicy) BackoffFor(retry int) time.Duration {
	if retry <= 0 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := p.InitialBackoff
	for i := 1; i < retry; i++ {
		d = time.Duration(float64(d) * mult)
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}
