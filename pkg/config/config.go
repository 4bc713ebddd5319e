// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"net"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/nativevec/pkg/common/malloc"
	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/logutil"
	"github.com/matrixorigin/nativevec/pkg/native"
)

// Config is the toml file read by vec-inspect.
type Config struct {
	Log       logutil.LogConfig `toml:"log"`
	Allocator malloc.Config     `toml:"allocator"`
	Runtime   native.Config     `toml:"runtime"`
	Metrics   MetricsConfig     `toml:"metrics"`
}

type MetricsConfig struct {
	// ListenAddress serves /metrics when not empty, e.g. "127.0.0.1:7001".
	ListenAddress string `toml:"listen-address"`
}

func Default() Config {
	return Config{
		Log: logutil.LogConfig{
			Level:  "info",
			Format: "console",
		},
		Allocator: malloc.Config{
			MaxActiveSlabs:  malloc.DefaultMaxActiveSlabs,
			MaxStandbySlabs: malloc.DefaultMaxStandbySlabs,
		},
		Runtime: native.Config{
			Name:            "vec-inspect",
			InitialCapacity: 4,
		},
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, moerr.NewBadConfigNoCtx("load %s: %v", path, err)
	}
	return finish(cfg, meta)
}

// Parse reads toml data over the defaults.
func Parse(data string) (Config, error) {
	cfg := Default()
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, moerr.NewBadConfigNoCtx("%v", err)
	}
	return finish(cfg, meta)
}

func finish(cfg Config, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, moerr.NewBadConfigNoCtx("unknown keys %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return moerr.NewBadConfigNoCtx("log format %q", c.Log.Format)
	}
	if c.Log.MaxSize < 0 || c.Log.MaxDays < 0 || c.Log.MaxBackups < 0 {
		return moerr.NewBadConfigNoCtx("negative log rotation setting")
	}
	if c.Allocator.MaxActiveSlabs < 0 || c.Allocator.MaxStandbySlabs < 0 {
		return moerr.NewBadConfigNoCtx("negative allocator slab limit")
	}
	if c.Runtime.InitialCapacity < 0 {
		return moerr.NewBadConfigNoCtx("runtime initial capacity %d", c.Runtime.InitialCapacity)
	}
	if addr := c.Metrics.ListenAddress; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return moerr.NewBadConfigNoCtx("metrics listen address %q: %v", addr, err)
		}
	}
	return nil
}
