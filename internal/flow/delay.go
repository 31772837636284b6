package flow

import (
	"time"

	"github.com/emailcraft/drip/pkg/api"
)

// DelayBefore sums the durations of all delay nodes preceding position k on
// the path. Delay nodes after position k, or on other branches, do not
// contribute. Each email node on a path gets its own prefix sum; delays are
// never consumed or reset between email nodes.
func DelayBefore(g *api.Graph, path []string, k int) time.Duration {
	if k > len(path) {
		k = len(path)
	}
	var total time.Duration
	for _, id := range path[:k] {
		n := g.NodeByID(id)
		if n == nil || n.Kind != api.KindDelay {
			continue
		}
		total += n.Delay.Duration()
	}
	return total
}
