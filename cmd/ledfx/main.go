package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"zigbee-ledfx/internal/coordinator"
	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/store"
	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/virtual"
	"zigbee-ledfx/internal/web"
	"zigbee-ledfx/internal/zcl"
	"zigbee-ledfx/internal/zcl/clusters"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// LightConfig is one strip controller entry of the config file.
type LightConfig struct {
	Name      string `yaml:"name"`
	Model     string `yaml:"model"`
	IEEE      string `yaml:"ieee"`
	ShortAddr uint16 `yaml:"short_addr"`
	Endpoint  uint8  `yaml:"endpoint"`
	LEDs      int    `yaml:"leds"`
}

type Config struct {
	Coordinator struct {
		IEEE     string `yaml:"ieee"`
		Endpoint uint8  `yaml:"endpoint"`
	} `yaml:"coordinator"`
	Transport struct {
		Type    string        `yaml:"type"` // "virtual"
		Latency time.Duration `yaml:"latency"`
	} `yaml:"transport"`
	Lights           []LightConfig `yaml:"lights"`
	ConfigureOnStart *bool         `yaml:"configure_on_start"`
	Web              struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		MDNS           bool     `yaml:"mdns"`
		MDNSName       string   `yaml:"mdns_name"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DevicesDir string `yaml:"devices_dir"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if c.Transport.Type != "virtual" {
		return fmt.Errorf("unknown transport type: %q (supported: virtual)", c.Transport.Type)
	}
	if len(c.Lights) == 0 {
		return fmt.Errorf("at least one light is required")
	}
	if _, err := transport.ParseIEEE(c.Coordinator.IEEE); err != nil {
		return fmt.Errorf("coordinator.ieee: %w", err)
	}
	names := make(map[string]bool)
	addrs := make(map[uint16]bool)
	for i, l := range c.Lights {
		if l.Name == "" {
			return fmt.Errorf("lights[%d]: name is required", i)
		}
		if names[l.Name] {
			return fmt.Errorf("lights[%d]: duplicate name %q", i, l.Name)
		}
		names[l.Name] = true
		if l.ShortAddr == 0 || l.ShortAddr >= 0xFFF8 {
			return fmt.Errorf("lights[%d]: short_addr 0x%04X is not a unicast address", i, l.ShortAddr)
		}
		if addrs[l.ShortAddr] {
			return fmt.Errorf("lights[%d]: duplicate short_addr 0x%04X", i, l.ShortAddr)
		}
		addrs[l.ShortAddr] = true
		if _, err := transport.ParseIEEE(l.IEEE); err != nil {
			return fmt.Errorf("lights[%d]: ieee: %w", i, err)
		}
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		bootLogger.Warn("load .env", "err", err)
	}

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbee-ledfx starting", "version", version)

	registry := zcl.NewRegistry(logger)
	if err := clusters.RegisterStandard(registry); err != nil {
		logger.Error("register clusters", "err", err)
		os.Exit(1)
	}
	if err := registry.Register(effects.Overlay()); err != nil {
		logger.Error("register effect attributes", "err", err)
		os.Exit(1)
	}

	deviceDB, err := coordinator.LoadDeviceDir(cfg.DevicesDir, registry, logger)
	if err != nil {
		logger.Error("load device definitions", "err", err)
		os.Exit(1)
	}
	logger.Info("ZCL registry initialized", "clusters", len(registry.All()), "devices", deviceDB.Len())

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr := virtual.NewTransport(logger, virtual.WithLatency(cfg.Transport.Latency))
	defer tr.Close()
	for _, l := range cfg.Lights {
		ieee, _ := transport.ParseIEEE(l.IEEE)
		dev := virtual.NewDevice(virtual.DeviceConfig{
			IEEE:      ieee,
			ShortAddr: l.ShortAddr,
			Endpoint:  l.Endpoint,
			Model:     l.Model,
			LEDs:      l.LEDs,
		}, logger)
		tr.Attach(dev)
		go dev.Run(ctx)
	}

	hubIEEE, _ := transport.ParseIEEE(cfg.Coordinator.IEEE)
	events := coordinator.NewEventBus(logger)
	coord := coordinator.New(tr, db, registry, deviceDB, events, coordinator.Config{
		IEEE:     hubIEEE,
		Endpoint: cfg.Coordinator.Endpoint,
	}, logger)

	// Subscribers attach before lights are added so they see light_added.
	mqtt := initMQTT(coord, cfg, logger)
	auto, autoWebOpts := initAutomation(coord, cfg, logger)

	for _, l := range cfg.Lights {
		ieee, _ := transport.ParseIEEE(l.IEEE)
		if _, err := coord.Lights().Add(coordinator.LightConfig{
			Name:      l.Name,
			Model:     l.Model,
			IEEE:      ieee,
			ShortAddr: l.ShortAddr,
			Endpoint:  l.Endpoint,
		}); err != nil {
			logger.Error("add light", "err", err)
			os.Exit(1)
		}
	}
	if *cfg.ConfigureOnStart {
		configureAll(ctx, coord, logger)
	}
	auto.Start()

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(coord, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	var advert *web.Advertiser
	if cfg.Web.MDNS {
		var names []string
		for _, l := range cfg.Lights {
			names = append(names, l.Name)
		}
		advert, err = web.Advertise(cfg.Web.MDNSName, cfg.Web.Listen, web.TXTRecords(version, names), logger)
		if err != nil {
			logger.Warn("mdns advertisement disabled", "err", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if advert != nil {
		advert.Stop()
	}
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	coord.Stop()

	logger.Info("goodbye")
}

// configureAll binds every light and sets up reporting. A failure is logged
// and leaves the light usable; configuration can be retried through the API.
func configureAll(ctx context.Context, coord *coordinator.Coordinator, logger *slog.Logger) {
	for _, l := range coord.Lights().List() {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if _, err := coord.Configure(cctx, l.Name()); err != nil {
			logger.Warn("initial configure failed", "light", l.Name(), "err", err)
		}
		cancel()
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "virtual"
	}
	if cfg.Coordinator.IEEE == "" {
		cfg.Coordinator.IEEE = "0x00124b0000000001"
	}
	if cfg.ConfigureOnStart == nil {
		on := true
		cfg.ConfigureOnStart = &on
	}
	for i := range cfg.Lights {
		l := &cfg.Lights[i]
		if l.Model == "" {
			l.Model = "WS2812_ESP32H2"
		}
		if l.Endpoint == 0 {
			l.Endpoint = effects.Endpoint
		}
		if l.LEDs == 0 {
			l.LEDs = 60
		}
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "ledfx.db"
	}
	if cfg.DevicesDir == "" {
		cfg.DevicesDir = "devices"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "ledfx"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
