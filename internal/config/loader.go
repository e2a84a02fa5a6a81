package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/flashdeck/internal/validation"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated by a double underscore: FLASHDECK_SERVER__ADDR.
const EnvPrefix = "FLASHDECK_"

// DefaultFile is read when present and no file is named explicitly.
const DefaultFile = "flashdeck.yaml"

// Options select the sources Load reads besides the built-in defaults.
type Options struct {
	// File is a YAML file. Empty means DefaultFile if it exists.
	File string
	// Flags are applied last. Only flags set on the command line override,
	// and FlagKeys maps flag names to configuration keys.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
}

// Load reads configuration. Priority: flags > env > YAML > defaults.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("config: read flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// envKey maps FLASHDECK_AUTH__ADMIN_EMAIL to auth.admin_email.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks every field constraint and reports all failures.
func (c *Config) Validate() error {
	v, err := validation.New("koanf")
	if err != nil {
		return err
	}
	if msgs := v.Messages(c); len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
