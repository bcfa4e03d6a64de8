/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the
// user scope. Environment variables are treated as read-only overrides at
// runtime. The Postgres password never lives in this file; it is kept in the
// OS keychain.
//
// config_version: bump when the structure changes in a backward-incompatible way.

// Backend names accepted by VaultConfig.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type VaultConfig struct {
	Backend       string `yaml:"backend"` // "sqlite" | "postgres"
	Dir           string `yaml:"dir"`     // sqlite vault directory; empty = user data dir
	PostgresDSN   string `yaml:"postgres_dsn"`
	RetentionDays int    `yaml:"retention_days"` // trash retention window; 0 = default 30
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Vault         VaultConfig   `yaml:"vault"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Vault:         VaultConfig{Backend: BackendSQLite, Dir: "", PostgresDSN: "", RetentionDays: 0},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvVaultBackend   = "SCV_VAULT_BACKEND"
	EnvVaultDir       = "SCV_VAULT_DIR"
	EnvPostgresDSN    = "SCV_PG_DSN"
	EnvRetentionDays  = "SCV_RETENTION_DAYS"
	EnvTelemetryOptIn = "SCV_TELEMETRY_OPT_IN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SCV_LOG_LEVEL"
	EnvLogFormat = "SCV_LOG_FORMAT"
	EnvLogSource = "SCV_LOG_SOURCE"
	EnvLogFile   = "SCV_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService    = "SceneVault"
	keyringPGPassword = "postgres_password"
)

// SecretStore abstracts the OS keyring, so we can stub in tests.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var secretStore SecretStore = &osKeyring{}

// osKeyring implements SecretStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) {
	return keyring.Get(service, key)
}
func (k *osKeyring) Set(service, key, value string) error {
	return keyring.Set(service, key, value)
}
func (k *osKeyring) Delete(service, key string) error {
	return keyring.Delete(service, key)
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	base, err := userScopeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir returns the default per-user vault data directory, used when
// vault.dir is not configured.
func DataDir() (string, error) {
	base, err := userScopeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "vault"), nil
}

func userScopeDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "SceneVault")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "SceneVault")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "scenevault")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. The Postgres password is loaded from the keyring and
// returned separately; it is never part of the struct.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	pw, _ := secretStore.Get(keyringService, keyringPGPassword)
	return cfg, pw, nil
}

// Save writes the user config YAML and persists the Postgres password into
// the OS keyring (if non-empty).
func Save(cfg AppConfig, pgPassword string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if pgPassword != "" {
		if err := secretStore.Set(keyringService, keyringPGPassword, pgPassword); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if v := strings.TrimSpace(src.Vault.Backend); v != "" {
		dst.Vault.Backend = strings.ToLower(v)
	}
	if strings.TrimSpace(src.Vault.Dir) != "" {
		dst.Vault.Dir = strings.TrimSpace(src.Vault.Dir)
	}
	if strings.TrimSpace(src.Vault.PostgresDSN) != "" {
		dst.Vault.PostgresDSN = strings.TrimSpace(src.Vault.PostgresDSN)
	}
	if src.Vault.RetentionDays > 0 {
		dst.Vault.RetentionDays = src.Vault.RetentionDays
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvVaultBackend)); v != "" {
		cfg.Vault.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvVaultDir)); v != "" {
		cfg.Vault.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Vault.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRetentionDays)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Vault.RetentionDays = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		lv := strings.ToLower(v)
		cfg.General.TelemetryOptIn = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by
// environment variables.
func EnvOverrideFor(key string) (string, bool) {
	switch key {
	case "vault.backend":
		if os.Getenv(EnvVaultBackend) != "" {
			return EnvVaultBackend, true
		}
	case "vault.dir":
		if os.Getenv(EnvVaultDir) != "" {
			return EnvVaultDir, true
		}
	case "vault.postgres_dsn":
		if os.Getenv(EnvPostgresDSN) != "" {
			return EnvPostgresDSN, true
		}
	case "vault.retention_days":
		if os.Getenv(EnvRetentionDays) != "" {
			return EnvRetentionDays, true
		}
	case "general.telemetry_opt_in":
		if os.Getenv(EnvTelemetryOptIn) != "" {
			return EnvTelemetryOptIn, true
		}
	case "logging.level":
		if os.Getenv(EnvLogLevel) != "" {
			return EnvLogLevel, true
		}
	case "logging.format":
		if os.Getenv(EnvLogFormat) != "" {
			return EnvLogFormat, true
		}
	case "logging.source":
		if os.Getenv(EnvLogSource) != "" {
			return EnvLogSource, true
		}
	case "logging.file":
		if os.Getenv(EnvLogFile) != "" {
			return EnvLogFile, true
		}
	}
	return "", false
}
