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

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
)

const (
	SchemaVersion = 1
	CfgEnv        = "SSVC_GATEWAY_CFG"
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Profiles     Profiles   `toml:"profiles"`
	Reporting    Reporting  `toml:"reporting"`
	Discovery    Discovery  `toml:"discovery"`
	MQTT         MQTT       `toml:"mqtt"`
	API          API        `toml:"api"`
	Serial       Serial     `toml:"serial"`
	Controller   Controller `toml:"controller"`
	Commands     Commands   `toml:"commands"`
	ConfigSchema int        `toml:"config_schema"`
	DebugLogging bool       `toml:"debug_logging"`
}

type Serial struct {
	Port           string `toml:"port" validate:"required"`
	Baud           int    `toml:"baud" validate:"gt=0"`
	ReadTimeoutMs  int    `toml:"read_timeout_ms" validate:"gt=0"`
	WriteTimeoutMs int    `toml:"write_timeout_ms" validate:"gt=0"`
}

type Commands struct {
	QueueLength         int `toml:"queue_length" validate:"gt=0"`
	Attempts            int `toml:"attempts" validate:"gt=0"`
	TimeoutMs           int `toml:"timeout_ms" validate:"gt=0"`
	RetryBackoffMs      int `toml:"retry_backoff_ms" validate:"gte=0"`
	EnqueueTimeoutMs    int `toml:"enqueue_timeout_ms" validate:"gt=0"`
	StartupDelayMs      int `toml:"startup_delay_ms" validate:"gte=0"`
	KeepaliveIntervalMs int `toml:"keepalive_interval_ms" validate:"gte=0"`
	ResyncDelayMs       int `toml:"resync_delay_ms" validate:"gt=0"`
}

type Controller struct {
	MinAPIVersion float64 `toml:"min_api_version" validate:"gte=0"`
}

type MQTT struct {
	Broker         string `toml:"broker,omitempty" validate:"required_if=Enabled true"`
	ClientIDPrefix string `toml:"client_id_prefix"`
	Username       string `toml:"username,omitempty"`
	Password       string `toml:"password,omitempty"`
	ResponseTopic  string `toml:"response_topic" validate:"required"`
	SettingsTopic  string `toml:"settings_topic" validate:"required"`
	TelemetryTopic string `toml:"telemetry_topic" validate:"required"`
	CommandTopic   string `toml:"command_topic,omitempty"`
	Enabled        bool   `toml:"enabled"`
}

type API struct {
	Listen            string   `toml:"listen" validate:"required"`
	AllowedOrigins    []string `toml:"allowed_origins,omitempty"`
	AllowedIPs        []string `toml:"allowed_ips,omitempty"`
	RequestsPerMinute int      `toml:"requests_per_minute" validate:"gt=0"`
	Enabled           bool     `toml:"enabled"`
}

type Profiles struct {
	Dir string `toml:"dir,omitempty"`
}

// Discovery controls mDNS advertising of the API.
type Discovery struct {
	InstanceName string `toml:"instance_name,omitempty"`
	Enabled      bool   `toml:"enabled"`
}

// Reporting sends error level log events to a Sentry compatible endpoint.
// An empty DSN disables it.
type Reporting struct {
	DSN         string `toml:"dsn,omitempty" validate:"omitempty,url"`
	Environment string `toml:"environment,omitempty"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Serial: Serial{
		Port:           "/dev/ttyUSB0",
		Baud:           115200,
		ReadTimeoutMs:  100,
		WriteTimeoutMs: 1000,
	},
	Commands: Commands{
		QueueLength:         10,
		Attempts:            3,
		TimeoutMs:           5000,
		RetryBackoffMs:      2000,
		EnqueueTimeoutMs:    1000,
		StartupDelayMs:      6000,
		KeepaliveIntervalMs: 20000,
		ResyncDelayMs:       30000,
	},
	Controller: Controller{
		MinAPIVersion: 2.0,
	},
	MQTT: MQTT{
		ClientIDPrefix: "ssvc-gateway-",
		ResponseTopic:  "ssvc/response",
		SettingsTopic:  "openconnect/settings",
		TelemetryTopic: "ssvc/telemetry",
		CommandTopic:   "ssvc/command",
	},
	API: API{
		Enabled:           true,
		Listen:            ":8080",
		RequestsPerMinute: 120,
	},
	Discovery: Discovery{
		Enabled: true,
	},
}

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(fs afero.Fs, configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	exists, err := afero.Exists(fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !exists {
		log.Info().Str("path", cfgPath).Msg("saving new default config to disk")

		err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err = cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return ErrSchemaMismatch
	}

	if err := Validate(&newVals); err != nil {
		return err
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks struct constraints on a set of config values.
func Validate(vals *Values) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(vals); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Instance) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfgPath
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

func (c *Instance) SerialPort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Serial.Port
}

func (c *Instance) SetSerialPort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Serial.Port = port
}

func (c *Instance) SerialBaud() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Serial.Baud
}

func (c *Instance) SerialReadTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Serial.ReadTimeoutMs)
}

func (c *Instance) SerialWriteTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Serial.WriteTimeoutMs)
}

func (c *Instance) CommandQueueLength() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Commands.QueueLength
}

func (c *Instance) CommandAttempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Commands.Attempts
}

func (c *Instance) CommandTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Commands.TimeoutMs)
}

func (c *Instance) RetryBackoff() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Commands.RetryBackoffMs)
}

func (c *Instance) EnqueueTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Commands.EnqueueTimeoutMs)
}

func (c *Instance) StartupDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Commands.StartupDelayMs)
}

// KeepaliveInterval returns zero when the AT keepalive is disabled.
func (c *Instance) KeepaliveInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Commands.KeepaliveIntervalMs)
}

func (c *Instance) ResyncDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.vals.Commands.ResyncDelayMs)
}

func (c *Instance) MinAPIVersion() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Controller.MinAPIVersion
}

func (c *Instance) MQTT() MQTT {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.MQTT
}

func (c *Instance) API() API {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.vals.API
	api.AllowedOrigins = append([]string(nil), c.vals.API.AllowedOrigins...)
	api.AllowedIPs = append([]string(nil), c.vals.API.AllowedIPs...)
	return api
}

// ProfilesDir returns the configured profile directory, or a "profiles"
// directory next to the config file when unset.
func (c *Instance) ProfilesDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Profiles.Dir != "" {
		return c.vals.Profiles.Dir
	}
	return filepath.Join(filepath.Dir(c.cfgPath), "profiles")
}

func (c *Instance) DiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Discovery.Enabled && c.vals.API.Enabled
}

func (c *Instance) DiscoveryInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Discovery.InstanceName
}

// APIPort is the port part of the API listen address, or 0 if it has none.
func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, port, err := net.SplitHostPort(c.vals.API.Listen)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

func (c *Instance) Reporting() Reporting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Reporting
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
