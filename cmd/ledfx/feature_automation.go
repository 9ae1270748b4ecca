//go:build !no_automation

package main

import (
	"log/slog"

	"zigbee-ledfx/internal/automation"
	"zigbee-ledfx/internal/coordinator"
	"zigbee-ledfx/internal/web"
)

type autoRunner struct {
	engine *automation.Engine
}

func (a *autoRunner) Start() {
	if a.engine != nil {
		a.engine.Start()
	}
}

func (a *autoRunner) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(coord *coordinator.Coordinator, cfg *Config, logger *slog.Logger) (*autoRunner, []web.ServerOption) {
	scriptMgr, err := automation.NewManager(cfg.ScriptsDir, logger)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoRunner{}, nil
	}

	engine := automation.NewEngine(coord, scriptMgr, logger)
	opts := []web.ServerOption{
		web.WithAutomation(engine, scriptMgr),
	}
	return &autoRunner{engine: engine}, opts
}
