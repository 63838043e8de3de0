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

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/ssvc-open-connect/gateway/internal/reporting"
	"github.com/ssvc-open-connect/gateway/pkg/config"
	"github.com/ssvc-open-connect/gateway/pkg/helpers"
	"github.com/ssvc-open-connect/gateway/pkg/service"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, config.AppName)
}

func run() error {
	configDir := flag.String("config-dir", defaultConfigDir(), "directory holding "+config.CfgFile)
	logDir := flag.String("log-dir", "", "log directory (defaults to the config directory)")
	port := flag.String("port", "", "serial port of the controller or \"auto\", overrides the config file")
	foreground := flag.Bool("foreground", false, "also log to stderr")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		_, _ = fmt.Fprintf(os.Stdout, "%s %s\n", config.AppName, config.AppVersion)
		return nil
	}

	if *logDir == "" {
		*logDir = *configDir
	}
	var logWriters []io.Writer
	if *foreground {
		logWriters = []io.Writer{os.Stderr}
	}
	if err := helpers.InitLogging(*logDir, *debug, logWriters); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Error().Msgf("panic: %v", err)
			reporting.Flush()
			os.Exit(1)
		}
	}()

	cfg, err := config.NewConfig(afero.NewOsFs(), *configDir, config.BaseDefaults)
	if err != nil {
		if errors.Is(err, config.ErrSchemaMismatch) {
			return fmt.Errorf("config file %s is from another version: %w", config.CfgFile, err)
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *port != "" {
		cfg.SetSerialPort(*port)
	}
	if *debug {
		cfg.SetDebugLogging(true)
	}
	helpers.SetDebugLogging(cfg.DebugLogging())

	if err := reporting.Init(cfg.Reporting(), config.AppVersion); err != nil {
		log.Warn().Err(err).Msg("error reporting not available")
	}
	defer reporting.Close()

	stopSvc, done, err := service.Start(cfg, service.Deps{WatchConfig: true})
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		return fmt.Errorf("error starting service: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-done:
		log.Warn().Msg("service exited on its own")
	}

	if err := stopSvc(); err != nil {
		log.Error().Err(err).Msg("error stopping service")
		return fmt.Errorf("error stopping service: %w", err)
	}
	return nil
}
