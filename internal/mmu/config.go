package mmu

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes a machine's physical address map declaratively,
// mirroring the YAML-config pattern cmd/ccapp/site_config.go uses for
// deployment-wide settings: a host program loads this once at startup
// instead of hand-assembling a Map in Go.
//
// Config only names device placement, not device construction — a
// DeviceFactory supplies the actual Device value for each named entry,
// since what a "plic" or "virtio-blk" device needs to be built (IRQ
// wiring, backing files, ...) is entirely the host emulator's concern.
type Config struct {
	RAM struct {
		Begin uint64 `yaml:"begin"`
		Size  uint64 `yaml:"size"`
	} `yaml:"ram"`

	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig places one named device at a physical base address.
type DeviceConfig struct {
	Name  string `yaml:"name"`
	Begin uint64 `yaml:"begin"`
}

// DeviceFactory constructs the Device and the ctx passed to its
// Read/Write calls for a named config entry.
type DeviceFactory func(name string) (dev Device, ctx any, err error)

// LoadConfig reads and parses a machine configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mmu: read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("mmu: parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Build constructs the Map the config describes, resolving each named
// device through factory.
func (c *Config) Build(factory DeviceFactory) (*Map, error) {
	pam, err := NewMap(c.RAM.Begin, c.RAM.Size)
	if err != nil {
		return nil, err
	}

	for _, dc := range c.Devices {
		dev, ctx, err := factory(dc.Name)
		if err != nil {
			pam.Close()
			return nil, fmt.Errorf("mmu: build device %q: %w", dc.Name, err)
		}
		pam.AddDevice(dc.Begin, dev, ctx)
	}

	return pam, nil
}
