// Package deploy loads deployment manifests: one YAML file per chain naming
// its transport, token contracts and bridge instances with their initial
// supported tokens, limits and routes.
package deploy

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
)

// Transports a chain can be connected through
const (
	TransportGateway   = "gateway"
	TransportLayerZero = "layerzero"
)

var ErrInvalidManifest = errors.New("invalid deployment manifest")

// Manifest describes everything deployed on one chain
type Manifest struct {
	Chain     string `yaml:"chain" validate:"required"`
	Transport string `yaml:"transport" default:"gateway" validate:"oneof=gateway layerzero"`
	// LzChainID and Endpoint are only set on layerzero chains
	LzChainID uint16   `yaml:"lz_chain_id"`
	Endpoint  string   `yaml:"endpoint" validate:"omitempty,eth_addr"`
	Owner     string   `yaml:"owner" validate:"required,eth_addr"`
	Tokens    []Token  `yaml:"tokens" validate:"dive"`
	Bridges   []Bridge `yaml:"bridges" validate:"required,min=1,dive"`
}

// Token is a token contract on the chain
type Token struct {
	Address  string `yaml:"address" validate:"required,eth_addr"`
	Name     string `yaml:"name" default:"RWA Token" validate:"required"`
	Symbol   string `yaml:"symbol" default:"RWA" validate:"required"`
	Decimals uint8  `yaml:"decimals" default:"18" validate:"max=77"`
	OFT      bool   `yaml:"oft"`
	// Bridge is granted the role that mints and burns on behalf of holders
	Bridge  string   `yaml:"bridge" validate:"omitempty,eth_addr"`
	Remotes []Remote `yaml:"remotes" validate:"dive"`
	Mints   []Mint   `yaml:"mints" validate:"dive"`
}

// Remote is the trusted OFT deployment on another chain
type Remote struct {
	ChainID uint16 `yaml:"chain_id" validate:"required"`
	Address string `yaml:"address" validate:"required,eth_addr"`
}

// Mint credits an initial balance, in whole tokens
type Mint struct {
	Account string `yaml:"account" validate:"required,eth_addr"`
	Amount  string `yaml:"amount" validate:"required"`
}

// Bridge is one bridge instance. Tokens, MaxTransferAmounts and DailyLimits
// are parallel lists; amounts are in whole tokens.
type Bridge struct {
	ID                 string   `yaml:"id" validate:"required"`
	Kind               string   `yaml:"kind" validate:"oneof=source destination oft"`
	Address            string   `yaml:"address" validate:"required,eth_addr"`
	Mode               string   `yaml:"mode"`
	InboundPolicy      string   `yaml:"inbound_policy" default:"revert" validate:"oneof=revert ignore"`
	Window             string   `yaml:"window" default:"rolling" validate:"oneof=rolling calendar"`
	Tokens             []string `yaml:"tokens" validate:"dive,eth_addr"`
	MaxTransferAmounts []string `yaml:"max_transfer_amounts"`
	DailyLimits        []string `yaml:"daily_limits"`
	Routes             []Route  `yaml:"routes" validate:"dive"`
}

// Route maps a destination chain to the counterpart bridge there
type Route struct {
	Chain       string `yaml:"chain" validate:"required"`
	Counterpart string `yaml:"counterpart" validate:"required"`
}

// Load reads and validates the manifest at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest, applies defaults and validates it
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := defaults.Set(&m); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks field rules and the references between tokens, bridges
// and the transport.
func (m *Manifest) Validate() error {
	if err := validator.New().Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %q", ErrInvalidManifest, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	switch m.Transport {
	case TransportGateway:
		if m.LzChainID != 0 || m.Endpoint != "" {
			return invalid("gateway chain %s has layerzero settings", m.Chain)
		}
	case TransportLayerZero:
		if m.LzChainID == 0 || m.Endpoint == "" {
			return invalid("layerzero chain %s needs lz_chain_id and endpoint", m.Chain)
		}
	}

	tokens := make(map[common.Address]Token, len(m.Tokens))
	for _, t := range m.Tokens {
		addr := common.HexToAddress(t.Address)
		if _, ok := tokens[addr]; ok {
			return invalid("token %s declared twice", t.Address)
		}
		if t.OFT && m.Transport != TransportLayerZero {
			return invalid("oft token %s on gateway chain %s", t.Address, m.Chain)
		}
		tokens[addr] = t
	}

	ids := make(map[string]struct{}, len(m.Bridges))
	for _, b := range m.Bridges {
		if _, ok := ids[b.ID]; ok {
			return invalid("bridge %s declared twice", b.ID)
		}
		ids[b.ID] = struct{}{}

		if err := m.validateBridge(b, tokens); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manifest) validateBridge(b Bridge, tokens map[common.Address]Token) error {
	kind := bridge.Kind(b.Kind)
	wantTransport := TransportGateway
	if kind == bridge.KindOFT {
		wantTransport = TransportLayerZero
	}
	if m.Transport != wantTransport {
		return invalid("%s bridge %s needs a %s chain", b.Kind, b.ID, wantTransport)
	}
	if _, err := bridge.ParseMode(b.Mode); err != nil {
		return fmt.Errorf("%w: bridge %s: %w", ErrInvalidManifest, b.ID, err)
	}

	for _, addr := range b.Tokens {
		t, ok := tokens[common.HexToAddress(addr)]
		if !ok {
			return invalid("bridge %s supports undeclared token %s", b.ID, addr)
		}
		if t.OFT != (kind == bridge.KindOFT) {
			return invalid("bridge %s cannot carry token %s", b.ID, addr)
		}
	}
	if kind != bridge.KindDestination {
		if len(b.MaxTransferAmounts) != len(b.Tokens) || len(b.DailyLimits) != len(b.Tokens) {
			return invalid("bridge %s: %d tokens, %d max transfer amounts, %d daily limits",
				b.ID, len(b.Tokens), len(b.MaxTransferAmounts), len(b.DailyLimits))
		}
	}

	for _, r := range b.Routes {
		if kind != bridge.KindOFT {
			continue
		}
		if _, err := strconv.ParseUint(r.Chain, 10, 16); err != nil {
			return invalid("bridge %s: route chain %q is not a layerzero chain id", b.ID, r.Chain)
		}
		if !common.IsHexAddress(r.Counterpart) {
			return invalid("bridge %s: route counterpart %q is not an address", b.ID, r.Counterpart)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidManifest, fmt.Sprintf(format, args...))
}

// OwnerAddress returns the owner of every contract on the chain
func (m *Manifest) OwnerAddress() common.Address {
	return common.HexToAddress(m.Owner)
}

// Token returns the declared token at addr
func (m *Manifest) Token(addr common.Address) (Token, bool) {
	for _, t := range m.Tokens {
		if common.HexToAddress(t.Address) == addr {
			return t, true
		}
	}
	return Token{}, false
}

// InitialTokens converts the parallel lists of b into bridge seed tokens,
// scaling whole-token amounts by each token's decimals.
func (m *Manifest) InitialTokens(b Bridge) ([]bridge.InitialToken, error) {
	addrs := make([]common.Address, len(b.Tokens))
	maxSizes := make([]*uint256.Int, len(b.MaxTransferAmounts))
	limits := make([]*uint256.Int, len(b.DailyLimits))

	for i, raw := range b.Tokens {
		addrs[i] = common.HexToAddress(raw)
	}
	for i := range b.MaxTransferAmounts {
		dec, err := m.decimalsAt(addrs, i)
		if err != nil {
			return nil, err
		}
		if maxSizes[i], err = ToBaseUnits(b.MaxTransferAmounts[i], dec); err != nil {
			return nil, fmt.Errorf("bridge %s max transfer amount %d: %w", b.ID, i, err)
		}
	}
	for i := range b.DailyLimits {
		dec, err := m.decimalsAt(addrs, i)
		if err != nil {
			return nil, err
		}
		if limits[i], err = ToBaseUnits(b.DailyLimits[i], dec); err != nil {
			return nil, fmt.Errorf("bridge %s daily limit %d: %w", b.ID, i, err)
		}
	}
	return bridge.SeedTokens(addrs, maxSizes, limits)
}

func (m *Manifest) decimalsAt(addrs []common.Address, i int) (uint8, error) {
	if i >= len(addrs) {
		return 0, invalid("amount %d has no token", i)
	}
	t, ok := m.Token(addrs[i])
	if !ok {
		return 0, invalid("undeclared token %s", addrs[i].Hex())
	}
	return t.Decimals, nil
}

// SupportedTokens returns the token addresses of b
func (b Bridge) SupportedTokens() []common.Address {
	out := make([]common.Address, len(b.Tokens))
	for i, raw := range b.Tokens {
		out[i] = common.HexToAddress(raw)
	}
	return out
}
