package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// uniqueUsers counts distinct authenticated users since the last reset.
type uniqueUsers struct {
	counter prometheus.Gauge
	seen    map[string]struct{}
	mu      sync.Mutex
}

const activeUsersPerWeek = "active_users_per_week"

var UniqueUsersPerWeek = &uniqueUsers{
	counter: prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: shovel,
			Name:      activeUsersPerWeek,
			Help:      "number of distinct authenticated users seen this week",
		},
	),
	seen: make(map[string]struct{}),
}

func (u *uniqueUsers) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.seen = make(map[string]struct{})
	u.counter.Set(0)
}

func (u *uniqueUsers) Observe(userID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.seen[userID]; exists {
		return
	}

	u.seen[userID] = struct{}{}
	u.counter.Inc()
}

func (u *uniqueUsers) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.seen)
}
