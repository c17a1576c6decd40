package routing

import (
	"sync"

	"github.com/remitstream/remitcore/contracts"
)

// axisScores holds learned per-route EMAs for the four scoring axes.
type axisScores struct {
	cost        float64
	speed       float64
	reliability float64
	compliance  float64
	observed    int
}

// learner adapts per-route axis scores from observed outcomes with a
// configurable learning rate. The set of tracked routes is bounded:
// when the limit is exceeded the oldest route is pruned FIFO.
type learner struct {
	mu    sync.Mutex
	alpha float64
	limit int
	byID  map[string]*axisScores
	order []string // FIFO insertion order for pruning
}

func newLearner(alpha float64, limit int) *learner {
	if limit < 1 {
		limit = 1
	}
	return &learner{
		alpha: alpha,
		limit: limit,
		byID:  make(map[string]*axisScores),
	}
}

// lookup returns the learned axis scores for a route, if any.
func (l *learner) lookup(routeID string) (axisScores, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.byID[routeID]
	if !ok {
		return axisScores{}, false
	}
	return *s, true
}

// observe folds one realized outcome into the route's axis EMAs.
// Axis observations mirror the computed scores: cost from the realized
// fee ratio, speed from the realized delivery, reliability from the
// success flag. Compliance has no realized observation and is carried.
func (l *learner) observe(out contracts.RouteOutcome, computed axisScores) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byID[out.RouteID]
	if !ok {
		if len(l.order) >= l.limit {
			oldest := l.order[0]
			l.order = l.order[1:]
			delete(l.byID, oldest)
		}
		s = &axisScores{
			cost:        computed.cost,
			speed:       computed.speed,
			reliability: computed.reliability,
			compliance:  computed.compliance,
		}
		l.byID[out.RouteID] = s
		l.order = append(l.order, out.RouteID)
	}

	reliability := 0.0
	if out.Success {
		reliability = 1.0
	}

	s.cost = l.blend(s.cost, computed.cost)
	s.speed = l.blend(s.speed, computed.speed)
	s.reliability = l.blend(s.reliability, reliability)
	s.observed++
}

func (l *learner) blend(prev, observation float64) float64 {
	return l.alpha*observation + (1-l.alpha)*prev
}

// size returns the number of tracked routes.
func (l *learner) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
