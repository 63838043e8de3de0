// SSVC Gateway
// Copyright (c) 2026 The SSVC Gateway Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of SSVC Gateway.
//
// SSVC Gateway is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SSVC Gateway is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SSVC Gateway.  If not, see <http://www.gnu.org/licenses/>.

// Package service wires the gateway together and runs its long-lived tasks.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/ssvc-open-connect/gateway/pkg/api"
	"github.com/ssvc-open-connect/gateway/pkg/config"
	"github.com/ssvc-open-connect/gateway/pkg/discovery"
	"github.com/ssvc-open-connect/gateway/pkg/helpers"
	"github.com/ssvc-open-connect/gateway/pkg/mirror"
	"github.com/ssvc-open-connect/gateway/pkg/notify"
	"github.com/ssvc-open-connect/gateway/pkg/profiles"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/commands"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/rectification"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/settings"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/signals"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/transport"
)

const (
	notifySourceSize = 64
	settingsKey      = "ssvcSettings"
)

// Deps are the outside resources the gateway runs on. Zero values select
// the real implementations.
type Deps struct {
	Fs            afero.Fs
	Clock         clockwork.Clock
	SerialFactory transport.SerialPortFactory
	NewMQTTClient func(opts *mqtt.ClientOptions) mqtt.Client
	APIListener   net.Listener
	WatchConfig   bool
}

type Gateway struct {
	Config    *config.Instance
	Bus       *signals.Bus
	Connector *transport.Connector
	Queue     *commands.Queue
	Settings  *settings.Store
	Process   *rectification.Process
	Notifier  *notify.Notifier
	Broker    *notify.Broker
	Profiles  *profiles.Store
	API       *api.Server
	Discovery *discovery.Service

	clock     clockwork.Clock
	resync    *commands.Debouncer
	publisher *mirror.Publisher
	listener  *mirror.CommandListener
	deps      Deps
}

// New builds every component from the current configuration. Nothing runs
// until Run is called.
func New(cfg *config.Instance, deps Deps) (*Gateway, error) {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.NewMQTTClient == nil {
		deps.NewMQTTClient = mqtt.NewClient
	}

	g := &Gateway{Config: cfg, clock: deps.Clock, deps: deps}
	mqttCfg := cfg.MQTT()

	source := make(chan notify.Message, notifySourceSize)
	g.Notifier = notify.NewNotifier(source)
	g.Broker = notify.NewBroker(source)
	g.Bus = signals.NewBus(deps.Clock)

	var out transport.Mirror
	if mqttCfg.Enabled {
		g.setupMirror(mqttCfg)
		out = g.publisher
	}

	var err error
	g.Connector, err = transport.NewConnector(transport.Options{
		Factory:         deps.SerialFactory,
		Bus:             g.Bus,
		Mirror:          out,
		Clock:           deps.Clock,
		OnConfigChanged: g.controllerConfigChanged,
		OnConnected:     g.linkOpened,
		Path:            cfg.SerialPort(),
		ResponseTopic:   mqttCfg.ResponseTopic,
		Baud:            cfg.SerialBaud(),
		ReadTimeout:     cfg.SerialReadTimeout(),
		WriteTimeout:    cfg.SerialWriteTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}

	g.Queue, err = commands.NewQueue(commands.Options{
		Sender:         g.Connector,
		Bus:            g.Bus,
		Clock:          deps.Clock,
		OnOutcome:      g.commandOutcome,
		Length:         cfg.CommandQueueLength(),
		Attempts:       cfg.CommandAttempts(),
		Timeout:        cfg.CommandTimeout(),
		Backoff:        cfg.RetryBackoff(),
		EnqueueTimeout: cfg.EnqueueTimeout(),
		StartupDelay:   cfg.StartupDelay(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create command queue: %w", err)
	}

	g.Settings = settings.NewStore(settings.StoreOptions{
		Queue:  g.Queue,
		Mirror: out,
		Topic:  mqttCfg.SettingsTopic,
		MinAPI: cfg.MinAPIVersion(),
	})

	g.resync = commands.NewDebouncer(deps.Clock, cfg.ResyncDelay(), func() {
		if err := g.Queue.GetSettings(); err != nil {
			log.Warn().Err(err).Msg("settings re-read not queued")
		}
	})
	greeter := &commands.Greeter{
		Queue:      g.Queue,
		Notifier:   g.Notifier,
		AppVersion: config.AppVersion,
		MinAPI:     cfg.MinAPIVersion(),
	}
	interpreters := &commands.Interpreters{
		Responses: g.Connector,
		Settings:  g.Settings,
		Versions:  g.Settings,
		Resync:    g.resync,
		OnVersion: greeter.Hello,
	}
	interpreters.Register(g.Queue)

	telemetryTopic := ""
	if mqttCfg.Enabled {
		telemetryTopic = mqttCfg.TelemetryTopic
	}
	g.Process, err = rectification.NewProcess(rectification.Options{
		Messages:  g.Connector,
		Bus:       g.Bus,
		Settings:  g.Settings,
		Clock:     deps.Clock,
		Publisher: out,
		Sink:      g.Notifier,
		Topic:     telemetryTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create process: %w", err)
	}

	g.Profiles = profiles.NewStore(deps.Fs, cfg.ProfilesDir(), deps.Clock)
	g.Profiles.Subscribe(settingsKey, g.Settings)
	if err := g.Profiles.Init(); err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	if apiCfg := cfg.API(); apiCfg.Enabled {
		g.API, err = api.NewServer(api.Options{
			Settings:          g.Settings,
			Process:           g.Process,
			Commands:          g.Queue,
			Link:              g.Connector,
			Profiles:          g.Profiles,
			Stream:            g.Broker,
			Clock:             deps.Clock,
			Listen:            apiCfg.Listen,
			AllowedOrigins:    apiCfg.AllowedOrigins,
			AllowedIPs:        apiCfg.AllowedIPs,
			RequestsPerMinute: apiCfg.RequestsPerMinute,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create api server: %w", err)
		}
		if cfg.DiscoveryEnabled() {
			g.Discovery = discovery.New(cfg, deps.Clock)
		}
	}
	return g, nil
}

func (g *Gateway) setupMirror(cfg config.MQTT) {
	opts := mirror.NewClientOptions(cfg)
	logConnect := opts.OnConnect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if logConnect != nil {
			logConnect(c)
		}
		if g.listener == nil {
			return
		}
		// Handlers must not block the client.
		go func() {
			if err := g.listener.Subscribe(); err != nil {
				log.Error().Err(err).Msg("mqtt: command subscription failed")
			}
		}()
	})
	client := g.deps.NewMQTTClient(opts)
	g.publisher = mirror.NewPublisher(client)
	if cfg.CommandTopic != "" {
		// The queue does not exist yet; dispatch through the gateway.
		g.listener = mirror.NewCommandListener(client, cfg.CommandTopic, dispatcherFunc(g.dispatch))
	}
}

type dispatcherFunc func(name, params string) error

func (f dispatcherFunc) Dispatch(name, params string) error { return f(name, params) }

func (g *Gateway) dispatch(name, params string) error {
	return g.Queue.Dispatch(name, params) //nolint:wrapcheck // already descriptive
}

// controllerConfigChanged runs when the controller reports that its
// settings were edited on the device.
func (g *Gateway) controllerConfigChanged() {
	if err := g.Queue.GetSettings(); err != nil {
		log.Warn().Err(err).Msg("settings re-read after cfg_chgd not queued")
	}
}

// linkOpened re-reads settings and version on every (re)connect. The
// consumer holds them until the startup delay passes.
func (g *Gateway) linkOpened() {
	if err := g.Queue.GetSettings(); err != nil {
		log.Error().Err(err).Msg("settings read after connect not queued")
	}
	if err := g.Queue.Version(); err != nil {
		log.Error().Err(err).Msg("version read after connect not queued")
	}
}

func (g *Gateway) commandOutcome(cmd commands.Command, err error) {
	if errors.Is(err, commands.ErrExhausted) {
		g.Notifier.Push(fmt.Sprintf("Controller did not answer %s", cmd.Kind), notify.Warning)
	}
}

func (g *Gateway) configReloaded(cfg *config.Instance) {
	helpers.SetDebugLogging(cfg.DebugLogging())
}

// Run starts every task and blocks until ctx is done or one of them fails.
func (g *Gateway) Run(ctx context.Context) error {
	log.Info().Str("version", config.AppVersion).Str("port", g.Config.SerialPort()).Msg("starting gateway")

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return g.Broker.Run(ctx) })
	eg.Go(func() error { return g.Connector.Run(ctx) })
	eg.Go(func() error { return g.Queue.Run(ctx) })
	eg.Go(func() error { return g.Process.Run(ctx) })
	eg.Go(func() error {
		return commands.Keepalive(ctx, g.clock, g.Queue, g.Config.StartupDelay(), g.Config.KeepaliveInterval())
	})

	if g.publisher != nil {
		eg.Go(func() error {
			if err := g.publisher.Connect(); err != nil {
				log.Warn().Err(err).Msg("mqtt: initial connect failed, retrying in background")
			}
			<-ctx.Done()
			if g.listener != nil {
				g.listener.Unsubscribe()
			}
			g.publisher.Disconnect()
			return nil
		})
	}

	if g.API != nil {
		eg.Go(func() error {
			if g.deps.APIListener != nil {
				return g.API.Serve(ctx, g.deps.APIListener)
			}
			return g.API.Run(ctx)
		})
	}

	if g.Discovery != nil {
		if err := g.Discovery.Start(); err != nil {
			log.Warn().Err(err).Msg("mDNS discovery not started")
		}
	}

	if g.deps.WatchConfig {
		if err := g.Config.Watch(ctx, g.configReloaded); err != nil {
			log.Warn().Err(err).Msg("config changes will not be picked up")
		}
	}

	err := eg.Wait()
	if g.Discovery != nil {
		g.Discovery.Stop()
	}
	g.resync.Stop()
	if closeErr := g.Connector.Close(); closeErr != nil {
		log.Debug().Err(closeErr).Msg("closing controller port")
	}
	log.Info().Msg("gateway stopped")
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Start runs the gateway in the background. stop cancels it and waits for
// every task to return; done is closed once they have.
func Start(cfg *config.Instance, deps Deps) (stop func() error, done <-chan struct{}, err error) {
	g, err := New(cfg, deps)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	var runErr error
	go func() {
		defer close(finished)
		runErr = g.Run(ctx)
		if runErr != nil {
			log.Error().Err(runErr).Msg("gateway exited with error")
		}
	}()

	stop = func() error {
		cancel()
		select {
		case <-finished:
		case <-time.After(10 * time.Second):
			return errors.New("timed out waiting for gateway to stop")
		}
		return runErr
	}
	return stop, finished, nil
}
