package config

import (
	"log"
	"os"

	"memdev/blockdev"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadDeviceConfig reads and parses the devices yaml file
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	log.Printf("[config] LoadDeviceConfig called with path: %s", path)
	file, err := os.Open(path)
	if err != nil {
		log.Printf("[config] Failed to open file: %v", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		log.Printf("[config] Failed to decode YAML: %v", err)
		return nil, err
	}
	log.Printf("[config] Successfully loaded config: ListenAddr=%s, Devices=%d entries", cfgFile.Config.ListenAddr, len(cfgFile.Config.Devices))
	return &cfgFile.Config, nil
}

// StoreConfig converts a device entry into the block store's config. An
// unset hint falls back to the default reservation, clamped to the row
// budget so a small budget never fails the eager capacity check.
func (e DeviceEntry) StoreConfig() blockdev.StoreConfig {
	cfg := blockdev.DefaultStoreConfig()
	if e.CapacityHint > 0 {
		cfg.CapacityHint = e.CapacityHint
	} else if e.MaxBlocks > 0 && cfg.CapacityHint > e.MaxBlocks {
		cfg.CapacityHint = e.MaxBlocks
	}
	cfg.MaxBlocks = e.MaxBlocks
	cfg.MaxBytes = e.MaxBytes
	return cfg
}

type ServerConfig struct {
	ReadTimeoutMs  int   `ini:"read_timeout_ms"`
	WriteTimeoutMs int   `ini:"write_timeout_ms"`
	MaxBodyBytes   int64 `ini:"max_body_bytes"`
}

// LoadServerConfig reads http server tuning from an .ini file
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	serverSection := cfg.Section("server")
	serverCfg := &ServerConfig{}
	err = serverSection.MapTo(serverCfg)
	if err != nil {
		return nil, err
	}
	return serverCfg, nil
}
