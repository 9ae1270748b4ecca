//go:build no_automation

package main

import (
	"log/slog"

	"zigbee-ledfx/internal/coordinator"
	"zigbee-ledfx/internal/web"
)

type autoRunner struct{}

func (a *autoRunner) Start() {}
func (a *autoRunner) Stop()  {}

func initAutomation(_ *coordinator.Coordinator, _ *Config, _ *slog.Logger) (*autoRunner, []web.ServerOption) {
	return &autoRunner{}, nil
}
