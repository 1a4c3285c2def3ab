package config

import "sync/atomic"

// Holder publishes the current config to concurrent readers. Swaps are
// atomic so a reader sees either the old or the new config, never a mix.
type Holder struct {
	v atomic.Pointer[Config]
}

func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.v.Store(cfg)
	return h
}

// Get returns the current config.
func (h *Holder) Get() *Config { return h.v.Load() }

// Set swaps in a new config.
func (h *Holder) Set(cfg *Config) { h.v.Store(cfg) }
