package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/golobby/config/v3/pkg/feeder"
)

// EnvFeeder reads Environment fields from process environment variables,
// grounded on the teacher's feeders/env.go (a thin alias over
// golobby/config/v3/pkg/feeder.Env).
type EnvFeeder = feeder.Env

// NewEnvFeeder returns a feeder that reads from the process environment.
func NewEnvFeeder() EnvFeeder { return feeder.Env{} }

// DotenvFeeder loads a .env file into the process environment and then
// feeds Environment from it, grounded on the teacher's feeders/dot_env.go.
type DotenvFeeder = feeder.DotEnv

// NewDotenvFeeder returns a feeder that loads path as a dotenv file.
func NewDotenvFeeder(path string) DotenvFeeder { return feeder.DotEnv{Path: path} }

// YamlFeeder reads Environment from a YAML file.
type YamlFeeder = feeder.Yaml

// NewYamlFeeder returns a feeder that reads path as YAML.
func NewYamlFeeder(path string) YamlFeeder { return feeder.Yaml{Path: path} }

// TomlFeeder reads Environment from a TOML file, and additionally supports
// section-scoped feeding via FeedKey, grounded on the teacher's
// feeders/toml.go (wraps feeder.Toml, re-marshals a located key's value
// through BurntSushi/toml to populate a struct-keyed target).
type TomlFeeder struct {
	feeder.Toml
}

// NewTomlFeeder returns a feeder that reads path as TOML.
func NewTomlFeeder(path string) TomlFeeder {
	return TomlFeeder{feeder.Toml{Path: path}}
}

// FeedKey implements ComplexFeeder, letting a TomlFeeder populate one
// section of a larger TOML document by key.
func (t TomlFeeder) FeedKey(key string, target any) error {
	var all map[string]any
	if err := t.Feed(&all); err != nil {
		return fmt.Errorf("config: failed to read toml: %w", err)
	}
	value, ok := all[key]
	if !ok {
		return nil
	}
	raw, err := toml.Marshal(value)
	if err != nil {
		return fmt.Errorf("config: failed to marshal %s: %w", key, err)
	}
	if err := toml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("config: failed to unmarshal %s: %w", key, err)
	}
	return nil
}
