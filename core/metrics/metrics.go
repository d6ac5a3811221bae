// Package metrics defines the observability sink for bridge events: facet
// refreshes, remote commands and invocation polls. Sinks like PromSink and
// InfluxSink live in infra/metrics and can be combined with a MultiSink.
package metrics

// Command outcomes as recorded in sinks.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Sink records bridge events for observability purposes. Implementations
// must be safe for concurrent use.
type Sink interface {
	// RecordRefresh records one facet refresh attempt and its outcome.
	RecordRefresh(vehicleID, facet, outcome string)
	// RecordCommand records one remote command and its outcome.
	RecordCommand(vehicleID, action, outcome string)
	// RecordInvocationPoll records one status poll of an outstanding
	// invocation.
	RecordInvocationPoll(vehicleID, action string)
	// Close releases sink resources.
	Close() error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordRefresh(string, string, string) {}
func (NopSink) RecordCommand(string, string, string) {}
func (NopSink) RecordInvocationPoll(string, string)  {}
func (NopSink) Close() error                         { return nil }

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}
