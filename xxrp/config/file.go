package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigFile   = "xxrpd.toml"
	DefaultRxQueueDepth = 512
	DefaultMetricsAddr  = ":9478"
)

// File is the on-disk daemon configuration.
type File struct {
	UnitId       uint32        `toml:"unit_id"`
	LogLevel     string        `toml:"log_level"`
	Development  bool          `toml:"development"`
	MetricsAddr  string        `toml:"metrics_addr"`
	RxQueueDepth int           `toml:"rx_queue_depth"`
	MaxMads      int           `toml:"max_mads"`
	Interfaces   []string      `toml:"interfaces"`
	SharedMedia  []string      `toml:"shared_media"`
	Application  []ApplSection `toml:"application"`
	StaticVlan   []StaticVlan  `toml:"static_vlan"`
}

type ApplSection struct {
	Name         Application   `toml:"name"`
	Enable       bool          `toml:"enable"`
	ManagedVlans VlanList      `toml:"managed_vlans"`
	Timers       *Timers       `toml:"timers"`
	Port         []PortSection `toml:"port"`
}

type PortSection struct {
	Port     uint32  `toml:"port"`
	Enable   bool    `toml:"enable"`
	Periodic bool    `toml:"periodic"`
	Timers   *Timers `toml:"timers"`
}

// StaticVlan is a registrar override applied by the VLAN adapter.
type StaticVlan struct {
	Port  uint32         `toml:"port"`
	Vlans VlanList       `toml:"vlans"`
	Admin RegistrarAdmin `toml:"admin"`
}

func DefaultFile() *File {
	return &File{
		LogLevel:     "info",
		MetricsAddr:  DefaultMetricsAddr,
		RxQueueDepth: DefaultRxQueueDepth,
	}
}

// LoadFile decodes path on top of the defaults. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	f := DefaultFile()
	meta, err := toml.DecodeFile(path, f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &ConfigError{Op: "load " + path, Reason: fmt.Sprintf("unknown key %q", undecoded[0].String())}
	}
	if !meta.IsDefined("rx_queue_depth") || f.RxQueueDepth <= 0 {
		f.RxQueueDepth = DefaultRxQueueDepth
	}
	if _, err := f.ApplConfs(); err != nil {
		return nil, err
	}
	return f, nil
}

// ApplConfs converts the application sections into desired configuration.
// At most one application of the exclusive family may be enabled.
func (f *File) ApplConfs() ([ApplMax]ApplConf, error) {
	var out [ApplMax]ApplConf
	for a := range out {
		out[a] = DefaultApplConf()
	}
	var enabled []Application
	for _, s := range f.Application {
		if s.Name >= ApplMax {
			return out, &ConfigError{Op: "application", Reason: "unknown application"}
		}
		c := &out[s.Name]
		c.GlobalEnable = s.Enable
		c.ManagedVlans = s.ManagedVlans
		if s.Timers != nil {
			c.Timers = *s.Timers
		}
		for _, ps := range s.Port {
			t := c.Timers
			if ps.Timers != nil {
				t = *ps.Timers
			}
			c.SetPort(ps.Port, PortConf{Enable: ps.Enable, Periodic: ps.Periodic, Timers: t})
		}
		if err := c.Validate(); err != nil {
			return out, err
		}
		if s.Enable {
			enabled = append(enabled, s.Name)
		}
	}
	if len(enabled) > 1 {
		return out, &ConfigError{Op: "application", Reason: fmt.Sprintf("%v and %v are mutually exclusive", enabled[0], enabled[1])}
	}
	return out, nil
}
