package config

// ConfigFile is the top-level structure of the devices yaml file.
type ConfigFile struct {
	Config DeviceConfig `yaml:"config"`
}

// DeviceConfig describes the devices a process exposes and where it listens.
type DeviceConfig struct {
	ListenAddr  string        `yaml:"listen_addr"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Devices     []DeviceEntry `yaml:"devices"`
}

// DeviceEntry configures one named device and its allocation budgets.
// Zero budgets mean unbounded.
type DeviceEntry struct {
	Name         string `yaml:"name"`
	CapacityHint int    `yaml:"capacity_hint"`
	MaxBlocks    int    `yaml:"max_blocks"`
	MaxBytes     uint64 `yaml:"max_bytes"`
}
