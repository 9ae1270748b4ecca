package web

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"
)

// MDNSService is the service type the HTTP API is advertised as.
const MDNSService = "_ledfx._tcp"

// Advertiser announces the HTTP API on the local network.
type Advertiser struct {
	server *mdns.Server
	logger *slog.Logger
}

// Advertise announces the API listening on listen (host:port) under the
// given instance name. Stop the returned Advertiser on shutdown.
func Advertise(instance, listen string, txt []string, logger *slog.Logger) (*Advertiser, error) {
	port, err := listenPort(listen)
	if err != nil {
		return nil, err
	}
	if instance == "" {
		instance, _ = os.Hostname()
	}

	svc, err := mdns.NewMDNSService(instance, MDNSService, "", "", port, nil, txt)
	if err != nil {
		return nil, fmt.Errorf("mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("mdns server: %w", err)
	}

	logger = logger.With("component", "mdns")
	logger.Info("advertising", "service", MDNSService, "instance", instance, "port", port)
	return &Advertiser{server: server, logger: logger}, nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if err := a.server.Shutdown(); err != nil {
		a.logger.Warn("mdns shutdown", "err", err)
	}
}

// TXTRecords returns the TXT fields describing this instance.
func TXTRecords(version string, lights []string) []string {
	txt := []string{"path=/api"}
	if version != "" {
		txt = append(txt, "version="+version)
	}
	if len(lights) > 0 {
		txt = append(txt, "lights="+strings.Join(lights, ","))
	}
	return txt
}

func listenPort(listen string) (int, error) {
	_, p, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", listen, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in listen address %q", listen)
	}
	return port, nil
}
