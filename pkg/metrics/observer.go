package metrics

import (
	"context"
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

// Observer bridges scheduler lifecycle events onto the prometheus
// collectors above. Combine it with other observers via
// api.NewCompositeObserver.
type Observer struct {
	api.NoopObserver
}

var _ api.Observer = (*Observer)(nil)

func (Observer) OnJobScheduled(ctx context.Context, job *api.Job) {
	JobsScheduled.Inc()
}

func (Observer) OnJobClaimed(ctx context.Context, job *api.Job, reclaimed bool) {
	JobsClaimed.Inc()
	if reclaimed {
		JobsReclaimed.Inc()
	}
}

func (Observer) OnJobCompleted(ctx context.Context, job *api.Job, d time.Duration) {
	JobsSent.Inc()
	SendDuration.Observe(d.Seconds())
}

func (Observer) OnJobFailed(ctx context.Context, job *api.Job, err error) {
	JobsFailed.Inc()
}
