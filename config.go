// Copyright (C) The snpkit Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpkit

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config collects the options shared by the bayescan and betas
// commands. A TOML file supplied with -config is loaded first;
// command-line flags override its values.
type Config struct {
	Input            string   `toml:"input"`
	Output           string   `toml:"output"`
	PopSelect        []string `toml:"pop_select"`
	PopLevels        []string `toml:"pop_levels"`
	PopLabels        []string `toml:"pop_labels"`
	KeepMonomorphic  bool     `toml:"keep_monomorphic"`
	CommonMarkers    bool     `toml:"common_markers"`
	BlacklistInd     string   `toml:"blacklist_ind"`
	WhitelistMarkers string   `toml:"whitelist_markers"`
	MaxMarkers       int      `toml:"max_markers"`
	SNPLD            int      `toml:"snp_ld"`
	MaxGoroutines    int      `toml:"max_goroutines"`
}

func defaultConfig() Config {
	return Config{
		CommonMarkers: true,
		MaxGoroutines: runtime.NumCPU(),
	}
}

func (cfg *Config) loadFile(path string) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}
	return nil
}

// validate catches option combinations that must fail before any
// ingestion happens.
func (cfg *Config) validate() error {
	if (len(cfg.PopLevels) == 0) != (len(cfg.PopLabels) == 0) {
		return fmt.Errorf("%w: pop_levels and pop_labels must be supplied together", ErrInvalidConfig)
	}
	if len(cfg.PopLevels) != len(cfg.PopLabels) {
		return fmt.Errorf("%w: pop_levels and pop_labels differ in length (%d vs %d)", ErrInvalidConfig, len(cfg.PopLevels), len(cfg.PopLabels))
	}
	if cfg.MaxGoroutines < 1 {
		cfg.MaxGoroutines = runtime.NumCPU()
	}
	return nil
}
