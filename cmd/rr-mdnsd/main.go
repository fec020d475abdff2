package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/wire"
	"github.com/haukened/rr-mdns/internal/mdns/infra/config"
	"github.com/haukened/rr-mdns/internal/mdns/repos/answercache"
	"github.com/haukened/rr-mdns/internal/mdns/services/probe"
	"github.com/haukened/rr-mdns/internal/mdns/services/responder"
)

const (
	version = "0.1.0-dev"
	appName = "rr-mdnsd"
)

// Application holds all the components of the mDNS responder.
type Application struct {
	config    *config.AppConfig
	codec     *wire.PacketCodec
	builder   *wire.Builder
	transport *transport.MulticastTransport
	responder *responder.Responder
	queue     *responder.Queue
	registry  *responder.Registry
	instance  *probe.Instance
	prober    *probe.Prober
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":  version,
		"env":      cfg.Env,
		"instance": cfg.Instance,
		"service":  cfg.Service,
		"port":     cfg.Port,
	}, "Starting rr-mdns responder")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Responder failed")
	}

	log.Info(nil, "rr-mdns responder stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	sched := clock.RealScheduler{}
	rng := clock.RealRand{}
	logger := log.GetLogger()

	codec := wire.NewPacketCodec(logger)
	builder := wire.NewBuilder(codec, cfg.UDPPayloadSize)

	cache, err := answercache.New(int(cfg.CacheSize))
	if err != nil {
		return nil, fmt.Errorf("failed to build answer cache: %w", err)
	}

	mcast := transport.NewMulticastTransport(cfg.Interfaces, logger)
	registry := responder.NewRegistry()

	queue := responder.NewQueue(responder.QueueOptions{
		Clock:       clk,
		Scheduler:   sched,
		Rand:        rng,
		Codec:       codec,
		PayloadSize: cfg.UDPPayloadSize,
		Logger:      logger,
		Send: func(p *domain.Packet, iface string) error {
			data, err := codec.Encode(p)
			if err != nil {
				return err
			}
			return mcast.Send(data, iface, nil)
		},
	})

	rsp := responder.New(responder.Options{
		Codec:     codec,
		Builder:   builder,
		Registry:  registry,
		Queue:     queue,
		Cache:     cache,
		Clock:     clk,
		Transport: mcast,
		Logger:    logger,
	})

	instance, err := probe.NewInstance(
		cfg.Instance, cfg.Service, "local", cfg.Hostname,
		uint16(cfg.Port), nil, hostAddrs(cfg.Interfaces),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to describe service instance: %w", err)
	}

	return &Application{
		config:    cfg,
		codec:     codec,
		builder:   builder,
		transport: mcast,
		responder: rsp,
		queue:     queue,
		registry:  registry,
		instance:  instance,
	}, nil
}

// Run starts the transport, probes for the configured instance, publishes
// its records on success, and answers queries until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.responder.HandlePacket); err != nil {
		return err
	}
	defer app.transport.Stop()
	defer app.queue.Close()

	probeResult := make(chan error, 1)
	app.prober = probe.New(probe.Options{
		Service:   app.instance,
		Builder:   app.builder,
		Clock:     clock.RealClock{},
		Scheduler: clock.RealScheduler{},
		Rand:      clock.RealRand{},
		Logger:    log.GetLogger(),
		Send: func(p *domain.Packet) error {
			data, err := app.codec.Encode(p)
			if err != nil {
				return err
			}
			var lastErr error
			sent := false
			for _, iface := range app.interfaces() {
				if err := app.transport.Send(data, iface, nil); err != nil {
					lastErr = err
				} else {
					sent = true
				}
			}
			if !sent {
				return lastErr
			}
			return nil
		},
		OnDone: func(err error) { probeResult <- err },
	})
	app.responder.AttachProber(app.prober)
	app.prober.Start()

	select {
	case <-ctx.Done():
		app.prober.Stop()
		return nil
	case err := <-probeResult:
		app.responder.DetachProber(app.prober)
		if err != nil {
			return fmt.Errorf("failed to claim %s: %w", app.instance.FQDN(), err)
		}
	}

	app.registry.Register(app.instance.Records()...)
	log.Info(map[string]any{
		"fqdn": app.instance.FQDN().String(),
		"host": app.instance.Hostname().String(),
	}, "Service name claimed, answering queries")

	<-ctx.Done()
	return nil
}

// interfaces returns the configured interface filter, or every system
// interface that is up and multicast-capable.
func (app *Application) interfaces() []string {
	if len(app.config.Interfaces) > 0 {
		return app.config.Interfaces
	}
	all, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			out = append(out, ifi.Name)
		}
	}
	return out
}

// hostAddrs collects the host's usable addresses, restricted to the named
// interfaces when a filter is set.
func hostAddrs(filter []string) []netip.Addr {
	want := make(map[string]bool, len(filter))
	for _, name := range filter {
		want[name] = true
	}
	all, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []netip.Addr
	for _, ifi := range all {
		if len(want) > 0 && !want[ifi.Name] {
			continue
		}
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok || addr.IsLinkLocalMulticast() || addr.IsLoopback() {
				continue
			}
			out = append(out, addr.Unmap())
		}
	}
	return out
}
