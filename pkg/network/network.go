// Package network holds the compiled-in table of supported EVM networks and
// the DEX routers deployed on each of them.
package network

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

// UnsupportedName is the display name used for chain ids missing from the table.
const UnsupportedName = "Unsupported"

// maxSuggestDistance bounds how far a misspelt protocol may be from a known one.
const maxSuggestDistance = 3

var (
	// ErrInvalidChainID indicates a chain id that is not a hex quantity.
	ErrInvalidChainID = errors.New("invalid chain id")

	// ErrNoRouter indicates no router is known for a network/protocol pair.
	ErrNoRouter = errors.New("no router for protocol")
)

//go:embed networks.yaml
var networksYAML []byte

// Route is a DEX router deployment on a network.
type Route struct {
	Protocol string `yaml:"protocol" json:"protocol"`
	Address  string `yaml:"address" json:"address"`
}

// Descriptor describes a network and the routers available on it.
type Descriptor struct {
	ChainID          string  `yaml:"chain_id" json:"chain_id"`
	Name             string  `yaml:"name" json:"name"`
	Currency         string  `yaml:"currency" json:"currency"`
	MetadataPlatform string  `yaml:"metadata_platform" json:"metadata_platform,omitempty"`
	Routers          []Route `yaml:"routers" json:"routers,omitempty"`
	Supported        bool    `yaml:"-" json:"supported"`
}

// Unsupported returns the marker descriptor for a chain id missing from the table.
func Unsupported(chainID string) Descriptor {
	return Descriptor{
		ChainID: NormalizeChainID(chainID),
		Name:    UnsupportedName,
	}
}

// Router returns the router address registered for protocol.
func (d Descriptor) Router(protocol string) (common.Address, error) {
	for _, r := range d.Routers {
		if strings.EqualFold(r.Protocol, protocol) {
			return common.HexToAddress(r.Address), nil
		}
	}

	if s := d.suggest(protocol); s != "" {
		return common.Address{}, fmt.Errorf("%w %q on %s (did you mean %q?)", ErrNoRouter, protocol, d.Name, s)
	}
	return common.Address{}, fmt.Errorf("%w %q on %s", ErrNoRouter, protocol, d.Name)
}

// DefaultProtocol returns the first protocol listed for the network, or "" if none.
func (d Descriptor) DefaultProtocol() string {
	if len(d.Routers) == 0 {
		return ""
	}
	return d.Routers[0].Protocol
}

// Protocols returns the protocol names in declaration order.
func (d Descriptor) Protocols() []string {
	names := make([]string, 0, len(d.Routers))
	for _, r := range d.Routers {
		names = append(names, r.Protocol)
	}
	return names
}

func (d Descriptor) suggest(protocol string) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, r := range d.Routers {
		dist := levenshtein.ComputeDistance(strings.ToLower(protocol), strings.ToLower(r.Protocol))
		if dist < bestDist {
			best, bestDist = r.Protocol, dist
		}
	}
	return best
}

// Table maps normalized chain ids to descriptors.
type Table struct {
	byID  map[string]Descriptor
	order []string
}

type tableFile struct {
	Networks []Descriptor `yaml:"networks"`
}

// Load parses the embedded network table.
func Load() (*Table, error) {
	return Parse(networksYAML)
}

// Parse builds a table from YAML.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse network table: %w", err)
	}

	t := &Table{byID: make(map[string]Descriptor, len(file.Networks))}
	for _, d := range file.Networks {
		if _, err := ParseChainID(d.ChainID); err != nil {
			return nil, fmt.Errorf("network %q: %w", d.Name, err)
		}
		for _, r := range d.Routers {
			if !common.IsHexAddress(r.Address) {
				return nil, fmt.Errorf("network %q: invalid %s router address %q", d.Name, r.Protocol, r.Address)
			}
		}

		d.ChainID = NormalizeChainID(d.ChainID)
		if _, dup := t.byID[d.ChainID]; dup {
			return nil, fmt.Errorf("duplicate network %s", d.ChainID)
		}
		d.Supported = true
		t.byID[d.ChainID] = d
		t.order = append(t.order, d.ChainID)
	}

	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded table. It panics if the embedded file is broken.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load()
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

// Lookup returns the descriptor for chainID, or the Unsupported marker.
func (t *Table) Lookup(chainID string) Descriptor {
	if d, ok := t.byID[NormalizeChainID(chainID)]; ok {
		return d
	}
	return Unsupported(chainID)
}

// All returns every descriptor in table order.
func (t *Table) All() []Descriptor {
	out := make([]Descriptor, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// WithProtocol returns descriptors that have a router for protocol, sorted by name.
func (t *Table) WithProtocol(protocol string) []Descriptor {
	var out []Descriptor
	for _, d := range t.All() {
		if _, err := d.Router(protocol); err == nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NormalizeChainID lower-cases a hex chain id and strips leading zeros.
// Values that are not hex are returned lower-cased and trimmed.
func NormalizeChainID(chainID string) string {
	id, err := ParseChainID(chainID)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(chainID))
	}
	return FormatChainID(id)
}

// ParseChainID parses a 0x-prefixed hex chain id. Leading zeros are accepted.
func ParseChainID(chainID string) (*big.Int, error) {
	s := strings.ToLower(strings.TrimSpace(chainID))
	if !strings.HasPrefix(s, "0x") || len(s) == 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChainID, chainID)
	}

	id, ok := new(big.Int).SetString(s[2:], 16)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChainID, chainID)
	}
	return id, nil
}

// FormatChainID renders a numeric chain id as the hex string wallets exchange.
func FormatChainID(id *big.Int) string {
	if id == nil {
		return ""
	}
	return hexutil.EncodeBig(id)
}
