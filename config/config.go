/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// Config is a configuration section that Loader can fill.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by sections nested under a key (e.g. "upstreams.musicbrainz").
// Sections without it read keys from the root.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// Loader fills configuration sections from a ViperAdapter.
// Defaults of all sections are registered before any section is set.
type Loader struct {
	Source *ViperAdapter
}

// NewDefaultLoader returns a Loader that also reads <ENVVARSPREFIX>_<KEY> environment variables,
// e.g. MBPROXY_SERVER_ADDRESS for "server.address".
func NewDefaultLoader(envVarsPrefix string) *Loader {
	src := NewViperAdapter()
	src.UseEnvVars(envVarsPrefix)
	return NewLoader(src)
}

// NewLoader returns a Loader reading from src.
func NewLoader(src *ViperAdapter) *Loader {
	return &Loader{Source: src}
}

// LoadFromFile reads the file at path and then fills the sections.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.Source.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.Load(cfg, cfgs...)
}

// LoadFromReader reads configuration data from reader and then fills the sections.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.Source.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.Load(cfg, cfgs...)
}

// Load fills the sections from defaults, environment and explicit overrides only.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	sections := append([]Config{cfg}, cfgs...)
	providers := make([]DataProvider, len(sections))
	for i, section := range sections {
		providers[i] = l.providerFor(section)
		section.SetProviderDefaults(providers[i])
	}
	for i, section := range sections {
		if err := section.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) providerFor(cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return l.Source.Section(kp.KeyPrefix())
	}
	return &l.Source.viperSection
}
