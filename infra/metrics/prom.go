package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records bridge events in Prometheus metrics.
type PromSink struct {
	refreshes *prometheus.CounterVec
	commands  *prometheus.CounterVec
	polls     *prometheus.CounterVec
}

// NewPromSink registers bridge metrics on the provided Prometheus registerer.
// If reg is nil, the default registerer is used. If the collectors are
// already registered, the existing ones are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voc2mqtt_refreshes_total",
		Help: "Total number of facet refresh attempts",
	}, []string{"vehicle_id", "facet", "outcome"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voc2mqtt_commands_total",
		Help: "Total number of remote commands",
	}, []string{"vehicle_id", "action", "outcome"})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voc2mqtt_invocation_polls_total",
		Help: "Total number of service invocation status polls",
	}, []string{"vehicle_id", "action"})

	for i, c := range []*prometheus.CounterVec{refreshes, commands, polls} {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			existing := are.ExistingCollector.(*prometheus.CounterVec)
			switch i {
			case 0:
				refreshes = existing
			case 1:
				commands = existing
			case 2:
				polls = existing
			}
		}
	}
	return &PromSink{refreshes: refreshes, commands: commands, polls: polls}, nil
}

func (s *PromSink) RecordRefresh(vehicleID, facet, outcome string) {
	s.refreshes.WithLabelValues(vehicleID, facet, outcome).Inc()
}

func (s *PromSink) RecordCommand(vehicleID, action, outcome string) {
	s.commands.WithLabelValues(vehicleID, action, outcome).Inc()
}

func (s *PromSink) RecordInvocationPoll(vehicleID, action string) {
	s.polls.WithLabelValues(vehicleID, action).Inc()
}

func (s *PromSink) Close() error { return nil }
