package metrics

import coremetrics "github.com/vocbridge/voc2mqtt/core/metrics"

// MultiSink fans bridge events out to multiple sinks.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordRefresh(vehicleID, facet, outcome string) {
	for _, s := range m.sinks {
		s.RecordRefresh(vehicleID, facet, outcome)
	}
}

func (m *MultiSink) RecordCommand(vehicleID, action, outcome string) {
	for _, s := range m.sinks {
		s.RecordCommand(vehicleID, action, outcome)
	}
}

func (m *MultiSink) RecordInvocationPoll(vehicleID, action string) {
	for _, s := range m.sinks {
		s.RecordInvocationPoll(vehicleID, action)
	}
}

// Close closes all sinks, returning the first error encountered.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
