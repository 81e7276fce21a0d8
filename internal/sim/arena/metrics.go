package arena

// Metrics is a thread-safe read-only view of the arena's runtime signals.
// It is updated from the loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Cycle uint64 `json:"cycle"`

	State        string `json:"state"`
	Players      int    `json:"players"`
	Clients      int    `json:"clients"`
	Timers       int    `json:"timers"`
	Deferred     int    `json:"deferred"`
	Suspended    bool   `json:"suspended"`
	Reservations int    `json:"reservations"`
	GamesPlayed  uint64 `json:"games_played"`

	InvocationsTotal uint64 `json:"invocations_total"`
	RejectionsTotal  uint64 `json:"rejections_total"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox   int `json:"inbox"`
	Replies int `json:"replies"`
	Attach  int `json:"attach"`
	Leave   int `json:"leave"`
}

func (a *Arena) Metrics() Metrics {
	if a == nil {
		return Metrics{}
	}
	m, _ := a.metrics.Load().(Metrics)
	return m
}

// publish refreshes the metrics and the state view read by other goroutines.
func (a *Arena) publish(stepMS float64) {
	v := a.battle.View()
	a.stateView.Store(v)
	a.metrics.Store(Metrics{
		Cycle:            a.cycle.Load(),
		State:            v.State.String(),
		Players:          len(v.Players),
		Clients:          len(a.clients),
		Timers:           len(a.timers),
		Deferred:         len(a.deferred),
		Suspended:        a.suspended != nil,
		Reservations:     len(v.Reservations),
		GamesPlayed:      a.gamesPlayed,
		InvocationsTotal: a.invocations,
		RejectionsTotal:  a.rejections,
		QueueDepths: QueueDepths{
			Inbox:   len(a.inbox),
			Replies: len(a.replies),
			Attach:  len(a.attach),
			Leave:   len(a.leave),
		},
		StepMS: stepMS,
	})
}
