// MELCloud Bridge
//
// This is the main entry point for the MELCloud bridge. It exposes
// Mitsubishi air conditioners registered with MELCloud as HomeKit style
// accessories over MQTT and a local REST/WebSocket API, while keeping
// the number of cloud calls low:
//   - one device fetch in flight at a time
//   - concurrent requests for a device share a single fetch
//   - fetched state is reused for a short time (60s by default)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-melcloud/internal/api"
	"github.com/nerrad567/gray-logic-melcloud/internal/audit"
	"github.com/nerrad567/gray-logic-melcloud/internal/bridge"
	"github.com/nerrad567/gray-logic-melcloud/internal/characteristic"
	"github.com/nerrad567/gray-logic-melcloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-melcloud/internal/device"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
	"github.com/nerrad567/gray-logic-melcloud/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component together and blocks until ctx is cancelled.
// Deferred cleanups run in reverse start order: API, MQTT bridge,
// coordinator, InfluxDB, MQTT, database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting MELCloud bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// MELCloud session and device discovery
	client := melcloud.NewClient(melcloud.Config{
		BaseURL:    cfg.MELCloud.BaseURL,
		AppVersion: cfg.MELCloud.AppVersion,
		Language:   cfg.MELCloud.Language,
		Timeout:    cfg.GetRequestTimeout(),
	})
	client.SetLogger(log)

	session, err := client.Login(ctx, cfg.MELCloud.Username, cfg.MELCloud.Password)
	if err != nil {
		return fmt.Errorf("logging in to MELCloud: %w", err)
	}
	log.Info("MELCloud session established", "use_fahrenheit", session.UseFahrenheit())

	registry := device.NewRegistry(device.Info{
		Model:        cfg.MELCloud.Model,
		Manufacturer: cfg.MELCloud.Manufacturer,
		SerialNumber: cfg.MELCloud.SerialNumber,
	})
	registry.SetLogger(log)
	source := device.SourceFunc(func(ctx context.Context) ([]melcloud.Device, error) {
		return client.ListDevices(ctx, session.Token())
	})
	if refreshErr := registry.RefreshCache(ctx, source); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetAccessoryCount())

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient, err := connectInfluxDB(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Observers are added after the coordinator exists; the MQTT bridge
	// needs the coordinator before it can observe it.
	observers := &coordinator.Observers{}
	coord, err := coordinator.NewCoordinator(coordinator.Options{
		Remote:        client,
		Session:       session,
		Mapper:        characteristic.NewMapper(characteristic.HomeKit()),
		CacheTTL:      cfg.GetCacheTTL(),
		FetchTimeout:  cfg.GetFetchTimeout(),
		UpdateTimeout: cfg.GetUpdateTimeout(),
		Observer:      observers,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	if startErr := coord.Start(); startErr != nil {
		return fmt.Errorf("starting coordinator: %w", startErr)
	}
	defer func() {
		log.Info("stopping coordinator")
		coord.Stop()
	}()
	log.Info("coordinator started", "cache_ttl", cfg.GetCacheTTL())

	commands := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(commands, cfg.Bridge.ID, log)
	observers.Add(coordinator.ObserverFuncs{OnWrite: recorder.Record})

	if influxClient != nil {
		observers.Add(coordinator.ObserverFuncs{
			OnSnapshot: func(target coordinator.Target, snap *melcloud.Snapshot) {
				influxClient.WriteSnapshot(target.DeviceID, target.BuildingID, snap)
			},
		})
	}

	hub := api.NewHub(cfg.WebSocket, log)
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go hub.Run(hubCtx)
	observers.Add(hub)

	if mqttClient != nil {
		mqttBridge, bridgeErr := startBridge(ctx, cfg, mqttClient, coord, registry, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()
		observers.Add(mqttBridge)
	}

	if cfg.API.Enabled {
		gatherer, metricsErr := newMetricsRegistry()
		if metricsErr != nil {
			return fmt.Errorf("registering metrics: %w", metricsErr)
		}

		components := map[string]api.HealthChecker{"database": db}
		if mqttClient != nil {
			components["mqtt"] = mqttClient
		}
		if influxClient != nil {
			components["influxdb"] = influxClient
		}

		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log,
			Registry:    registry,
			Coordinator: coord,
			Commands:    commands,
			Components:  components,
			Gatherer:    gatherer,
			ExternalHub: hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MELCLOUD_BRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MELCLOUD_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects to the broker when MQTT is enabled. It returns a
// nil client when MQTT is disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Bridge.TopicPrefix))
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB opens the snapshot history writer when enabled.
func connectInfluxDB(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// startBridge creates and starts the MQTT bridge.
//
// Parameters:
//   - ctx: Context for the bridge lifetime
//   - cfg: Application configuration
//   - mqttClient: Connected MQTT client
//   - coord: Running coordinator
//   - registry: Loaded accessory registry
//   - log: Logger instance
//
// Returns:
//   - *bridge.Bridge: Running bridge
//   - error: If the bridge fails to subscribe or publish discovery
func startBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, coord *coordinator.Coordinator, registry *device.Registry, log *logging.Logger) (*bridge.Bridge, error) {
	b, err := bridge.NewBridge(bridge.Options{
		MQTT:           mqttClient,
		Coordinator:    coord,
		Registry:       registry,
		Topics:         mqttClient.Topics(),
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		RequestTimeout: cfg.GetFetchTimeout() + cfg.GetUpdateTimeout(),
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	log.Info("MQTT bridge started", "prefix", mqttClient.Topics().Prefix())
	return b, nil
}

// newMetricsRegistry builds the registry served on /metrics.
func newMetricsRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	cs = append(cs, melcloud.MetricsCollectors()...)
	cs = append(cs, coordinator.MetricsCollectors()...)

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
