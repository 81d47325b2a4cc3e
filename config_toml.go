// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig is the on-disk form of DriverConfig.
type fileConfig struct {
	DriverConfig
	CreationTimeout string `toml:"creation_timeout"`
}

// LoadDriverConfig decodes a DriverConfig from TOML.
//
// Keys use the snake_case names of the DriverConfig fields; missing keys
// keep their zero value and thus their default. Unknown keys are rejected
// with ErrUnknownConfigOption, the same policy every backend applies to
// options it does not recognize. The result is validated.
//
//	memory_budget_mb = 512
//	validation = true
//	stereoscopic_type = "instanced"
//	creation_timeout = "2s"
func LoadDriverConfig(r io.Reader) (DriverConfig, error) {
	var fc fileConfig
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return DriverConfig{}, fmt.Errorf("%w: %s", ErrUnknownConfigOption, strict.String())
		}
		return DriverConfig{}, fmt.Errorf("platform: decode driver config: %w", err)
	}

	cfg := fc.DriverConfig
	if fc.CreationTimeout != "" {
		d, err := time.ParseDuration(fc.CreationTimeout)
		if err != nil {
			return DriverConfig{}, fmt.Errorf("%w: creation_timeout: %w", ErrInvalidConfig, err)
		}
		cfg.CreationTimeout = d
	}
	if err := cfg.Validate(); err != nil {
		return DriverConfig{}, err
	}
	return cfg, nil
}

// EncodeDriverConfig writes cfg as TOML in the form LoadDriverConfig reads.
func EncodeDriverConfig(w io.Writer, cfg DriverConfig) error {
	fc := fileConfig{DriverConfig: cfg}
	if cfg.CreationTimeout != 0 {
		fc.CreationTimeout = cfg.CreationTimeout.String()
	}
	if err := toml.NewEncoder(w).Encode(fc); err != nil {
		return fmt.Errorf("platform: encode driver config: %w", err)
	}
	return nil
}
