// Package chains describes the chain folders of the registry and how each
// maps onto external data sources.
package chains

import (
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed chains.yaml
var defaultYAML []byte

// Chain is one chain folder.
type Chain struct {
	Name              string   `yaml:"-"`
	ChainID           uint64   `yaml:"chainId"`
	CoingeckoPlatform string   `yaml:"coingeckoPlatform"`
	CoingeckoCategory string   `yaml:"coingeckoCategory"`
	Pinned            []string `yaml:"pinned"`
	AaveV2Subgraph    string   `yaml:"aaveV2Subgraph"`
	AaveV2Prefix      string   `yaml:"aaveV2Prefix"`
}

// Registry is the set of configured chains plus global ranking settings.
type Registry struct {
	GlobalPinned    []string          `yaml:"globalPinned"`
	NativeAddresses []string          `yaml:"nativeAddresses"`
	Chains          map[string]*Chain `yaml:"chains"`
}

// Default returns the embedded registry.
func Default() *Registry {
	r, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded chains.yaml: %v", err))
	}
	return r
}

// Load parses the embedded registry and, when override is non-nil, merges
// chains and global settings from it on top.
func Load(override io.Reader) (*Registry, error) {
	r := Default()
	if override == nil {
		return r, nil
	}

	data, err := io.ReadAll(override)
	if err != nil {
		return nil, fmt.Errorf("read chains override: %w", err)
	}
	o, err := parse(data)
	if err != nil {
		return nil, err
	}

	if len(o.GlobalPinned) > 0 {
		r.GlobalPinned = o.GlobalPinned
	}
	if len(o.NativeAddresses) > 0 {
		r.NativeAddresses = o.NativeAddresses
	}
	for name, c := range o.Chains {
		r.Chains[name] = c
	}
	return r, nil
}

func parse(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse chains yaml: %w", err)
	}
	if r.Chains == nil {
		r.Chains = make(map[string]*Chain)
	}
	for name, c := range r.Chains {
		if c == nil {
			return nil, fmt.Errorf("chain %q: empty definition", name)
		}
		if c.ChainID == 0 {
			return nil, fmt.Errorf("chain %q: chainId must be positive", name)
		}
		c.Name = name
	}
	return &r, nil
}

// Get returns the chain for a folder name.
func (r *Registry) Get(name string) (*Chain, bool) {
	c, ok := r.Chains[name]
	return c, ok
}

// Names returns all folder names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Chains))
	for name := range r.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithPriceData returns the sorted folder names that map to a price-API platform.
func (r *Registry) WithPriceData() []string {
	var names []string
	for _, name := range r.Names() {
		if r.Chains[name].CoingeckoPlatform != "" {
			names = append(names, name)
		}
	}
	return names
}

// ByChainID returns the chain registered under id.
func (r *Registry) ByChainID(id uint64) (*Chain, bool) {
	for _, name := range r.Names() {
		if c := r.Chains[name]; c.ChainID == id {
			return c, true
		}
	}
	return nil, false
}

// IsNative reports whether address is one of the native-asset sentinels.
func (r *Registry) IsNative(address string) bool {
	a := strings.ToLower(address)
	for _, n := range r.NativeAddresses {
		if strings.ToLower(n) == a {
			return true
		}
	}
	return false
}

// PinsFor returns global pins followed by the chain's own pins, lowercased.
func (r *Registry) PinsFor(name string) []string {
	pins := make([]string, 0, len(r.GlobalPinned))
	for _, p := range r.GlobalPinned {
		pins = append(pins, strings.ToLower(p))
	}
	if c, ok := r.Chains[name]; ok {
		for _, p := range c.Pinned {
			pins = append(pins, strings.ToLower(p))
		}
	}
	return pins
}

var whitespace = regexp.MustCompile(`\s+`)

// FolderForProtocolName maps a chain name reported by a protocol API
// (e.g. "Ethereum", "BSC", "Arbitrum Nova") to a folder name.
func FolderForProtocolName(name string) string {
	n := whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	switch n {
	case "bsc":
		return "bnb"
	case "ethereum":
		return "mainnet"
	}
	return n
}
