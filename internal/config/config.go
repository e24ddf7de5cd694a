// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Config — flat scalar machine parameters, loaded from TOML
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// One flat struct, no nested objects, matching the kind of per-context
// scalar configuration the reference simulators in this space use:
// register/checkpoint counts and per-stage widths, nothing structural.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every parameter internal/pipeline.Machine needs to
// stand itself up.
type Config struct {
	NLogRegs                  uint64 `toml:"n_log_regs"`
	NPhysRegs                 uint64 `toml:"n_phys_regs"`
	NCheckpoints              uint64 `toml:"n_chkpts"`
	NActive                   uint64 `toml:"n_active"`
	MaxInstrBetweenCheckpoints uint64 `toml:"max_instr_bw_checkpoints"`

	FetchWidth    uint64 `toml:"fetch_width"`
	DispatchWidth uint64 `toml:"dispatch_width"`
	IssueWidth    uint64 `toml:"issue_width"`
	RetireWidth   uint64 `toml:"retire_width"`

	ResetPC    uint64 `toml:"reset_pc"`
	TrapVector uint64 `toml:"trap_vector"`
	MemBytes   uint64 `toml:"mem_bytes"`
}

// Default returns the configuration the teacher's own sized examples
// use as a starting point: a modest register file and checkpoint
// ring, single-wide everywhere.
func Default() Config {
	return Config{
		NLogRegs:                   16,
		NPhysRegs:                  64,
		NCheckpoints:               8,
		NActive:                    32,
		MaxInstrBetweenCheckpoints: 16,
		FetchWidth:                 1,
		DispatchWidth:              1,
		IssueWidth:                 1,
		RetireWidth:                1,
		ResetPC:                    0,
		TrapVector:                 0xF000,
		MemBytes:                   1 << 16,
	}
}

// Load reads a TOML file at path and overlays it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the structural requirements a renamer instance
// places on these parameters — the same ones internal/renamer.New
// would otherwise discover the hard way via a fatal abort.
func (c Config) Validate() error {
	if c.NPhysRegs <= c.NLogRegs {
		return fmt.Errorf("config: n_phys_regs (%d) must exceed n_log_regs (%d)", c.NPhysRegs, c.NLogRegs)
	}
	if c.NCheckpoints == 0 {
		return fmt.Errorf("config: n_chkpts must be positive")
	}
	if c.NActive == 0 {
		return fmt.Errorf("config: n_active must be positive")
	}
	if c.FetchWidth == 0 || c.DispatchWidth == 0 || c.IssueWidth == 0 || c.RetireWidth == 0 {
		return fmt.Errorf("config: stage widths must be positive")
	}
	return nil
}
