// Package app wires the bridge together: cloud client, MQTT session,
// metrics sinks, fleet coordinator and the MQTT bridge.
package app

import (
	"context"
	"fmt"

	"github.com/vocbridge/voc2mqtt/bridge"
	"github.com/vocbridge/voc2mqtt/config"
	"github.com/vocbridge/voc2mqtt/core/fleet"
	"github.com/vocbridge/voc2mqtt/core/invoke"
	coremetrics "github.com/vocbridge/voc2mqtt/core/metrics"
	"github.com/vocbridge/voc2mqtt/core/vehicle"
	infracloud "github.com/vocbridge/voc2mqtt/infra/cloud"
	"github.com/vocbridge/voc2mqtt/infra/logger"
	"github.com/vocbridge/voc2mqtt/infra/metrics"
	"github.com/vocbridge/voc2mqtt/infra/mqtt"
)

// Service orchestrates the fleet coordinator and the MQTT bridge.
type Service struct {
	coordinator *fleet.Coordinator
	bridge      *bridge.Bridge
	mqttClient  *mqtt.Client
	cloudClient *infracloud.Client
	sink        coremetrics.Sink
	cfg         *config.Config
	log         logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logger.SetGlobalLevel(cfg.Logging.Level)
	log := logger.New("service")

	cloudClient, err := infracloud.NewClient(cfg.VOC)
	if err != nil {
		return nil, fmt.Errorf("cloud client: %w", err)
	}
	mqttClient, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink
	switch len(sinks) {
	case 0:
		sink = coremetrics.NopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = metrics.NewMultiSink(sinks...)
	}

	invoker := invoke.New(cloudClient, invoke.Config{}, logger.New("invoker"), sink)

	br := bridge.New(mqttClient, bridge.Config{
		Namespace:        cfg.MQTT.TopicPrefix,
		DiscoveryEnabled: cfg.HomeAssistant.DiscoveryEnabled,
		DiscoveryPrefix:  cfg.HomeAssistant.DiscoveryPrefix,
		StatusTopic:      cfg.HomeAssistant.StatusTopic,
	}, logger.New("bridge"))

	coordinator := fleet.New(cloudClient, invoker, br, cfg.Refresh.FleetConfig(),
		logger.New("fleet"), br.OnVehicleAdded)
	coordinator.WithRefresherFactory(func(id string) *vehicle.Refresher {
		return vehicle.New(id, cloudClient, invoker, logger.New("vehicle"), sink)
	})
	br.SetHandler(coordinator)
	br.SetFleet(coordinator)

	return &Service{
		coordinator: coordinator,
		bridge:      br,
		mqttClient:  mqttClient,
		cloudClient: cloudClient,
		sink:        sink,
		cfg:         cfg,
		log:         log,
	}, nil
}

// Run starts the bridge and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cloudClient.Login(ctx); err != nil {
		return fmt.Errorf("cloud login: %w", err)
	}
	if err := s.bridge.Start(ctx); err != nil {
		return fmt.Errorf("bridge start: %w", err)
	}
	if err := s.coordinator.RefreshFleet(ctx); err != nil {
		return fmt.Errorf("initial fleet refresh: %w", err)
	}
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.coordinator.Run(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.mqttClient.Close()
	return s.sink.Close()
}
