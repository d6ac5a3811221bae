package metrics

import (
	"context"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/vocbridge/voc2mqtt/core/metrics"
	"github.com/vocbridge/voc2mqtt/infra/logger"
)

// InfluxSink writes bridge events to an InfluxDB instance using the official
// client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB
// endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails, so a missing InfluxDB never blocks the
// bridge.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.log.Errorf("influx write: %v", err)
	}
}

func (s *InfluxSink) RecordRefresh(vehicleID, facet, outcome string) {
	s.write(write.NewPointWithMeasurement("refresh").
		AddTag("vehicle_id", vehicleID).
		AddTag("facet", facet).
		AddTag("outcome", outcome).
		AddField("count", 1).
		SetTime(time.Now()))
}

func (s *InfluxSink) RecordCommand(vehicleID, action, outcome string) {
	s.write(write.NewPointWithMeasurement("command").
		AddTag("vehicle_id", vehicleID).
		AddTag("action", action).
		AddTag("outcome", outcome).
		AddField("count", 1).
		SetTime(time.Now()))
}

func (s *InfluxSink) RecordInvocationPoll(vehicleID, action string) {
	s.write(write.NewPointWithMeasurement("invocation_poll").
		AddTag("vehicle_id", vehicleID).
		AddTag("action", action).
		AddField("count", 1).
		SetTime(time.Now()))
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
