// Package network assembles the in-process deployment described by the
// manifests: one transport per chain, the token contracts and the bridge
// instances, wired to each other the way the deploy scripts wire contracts.
package network

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/deploy"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/relayer"
	"github.com/chainsafe/rwa-bridge/pkg/token"
	"github.com/chainsafe/rwa-bridge/pkg/transport/gateway"
	"github.com/chainsafe/rwa-bridge/pkg/transport/layerzero"
)

var (
	ErrUnknownBridge = errors.New("unknown bridge")
	ErrUnknownChain  = errors.New("unknown chain")
	ErrUnknownToken  = errors.New("unknown token")
)

// Chain is one connected chain and the contracts deployed on it
type Chain struct {
	Name      string
	Transport string
	LzChainID uint16
	Owner     common.Address
	// Gateway is set on gateway chains, Endpoint on layerzero chains
	Gateway  *gateway.Gateway
	Endpoint *layerzero.Endpoint

	ledgers map[common.Address]*token.Ledger
	ofts    map[common.Address]*token.OFT
	bridges []string
}

// Ledger returns the token contract at addr. OFTs are found too.
func (c *Chain) Ledger(addr common.Address) (*token.Ledger, bool) {
	if l, ok := c.ledgers[addr]; ok {
		return l, true
	}
	if o, ok := c.ofts[addr]; ok {
		return o.Ledger, true
	}
	return nil, false
}

// Tokens returns the token addresses on the chain in order
func (c *Chain) Tokens() []common.Address {
	out := make([]common.Address, 0, len(c.ledgers)+len(c.ofts))
	for addr := range c.ledgers {
		out = append(out, addr)
	}
	for addr := range c.ofts {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Bridges returns the ids of the bridges deployed on the chain
func (c *Chain) Bridges() []string {
	return append([]string(nil), c.bridges...)
}

type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock of the transports and bridges
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Network is a built deployment
type Network struct {
	gateways  *gateway.Network
	endpoints *layerzero.Network

	chains  map[string]*Chain
	order   []string
	bridges map[string]bridge.Instance
	chainOf map[string]string
	initial map[string]bridge.Snapshot
	ids     []string
}

// Build creates every chain, token and bridge named by manifests.
func Build(manifests []*deploy.Manifest, opts ...Option) (*Network, error) {
	o := &options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	n := &Network{
		gateways:  gateway.NewNetwork(),
		endpoints: layerzero.NewNetwork(),
		chains:    make(map[string]*Chain, len(manifests)),
		bridges:   make(map[string]bridge.Instance),
		chainOf:   make(map[string]string),
		initial:   make(map[string]bridge.Snapshot),
	}

	for _, m := range manifests {
		if _, ok := n.chains[m.Chain]; ok {
			return nil, fmt.Errorf("chain %s deployed twice", m.Chain)
		}
		c, err := n.connect(m, o)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", m.Chain, err)
		}
		n.chains[m.Chain] = c
		n.order = append(n.order, m.Chain)
	}

	// remote endpoints are only known once every chain is connected
	n.pinRemoteEndpoints(manifests)

	for _, m := range manifests {
		c := n.chains[m.Chain]
		for _, b := range m.Bridges {
			if _, ok := n.bridges[b.ID]; ok {
				return nil, fmt.Errorf("bridge %s deployed twice", b.ID)
			}
			inst, err := n.deployBridge(m, c, b, o)
			if err != nil {
				return nil, fmt.Errorf("bridge %s: %w", b.ID, err)
			}
			n.bridges[b.ID] = inst
			n.chainOf[b.ID] = m.Chain
			n.initial[b.ID] = inst.Snapshot()
			n.ids = append(n.ids, b.ID)
			c.bridges = append(c.bridges, b.ID)
		}
	}
	sort.Strings(n.ids)

	o.logger.Info("Deployment built",
		zap.Int("chains", len(n.chains)),
		zap.Int("bridges", len(n.bridges)))
	return n, nil
}

func (n *Network) connect(m *deploy.Manifest, o *options) (*Chain, error) {
	c := &Chain{
		Name:      m.Chain,
		Transport: m.Transport,
		LzChainID: m.LzChainID,
		Owner:     m.OwnerAddress(),
		ledgers:   make(map[common.Address]*token.Ledger),
		ofts:      make(map[common.Address]*token.OFT),
	}
	logger := o.logger.With(zap.String("chain", m.Chain))

	var err error
	switch m.Transport {
	case deploy.TransportGateway:
		c.Gateway, err = n.gateways.NewGateway(m.Chain,
			gateway.WithLogger(logger), gateway.WithClock(o.now))
	case deploy.TransportLayerZero:
		c.Endpoint, err = n.endpoints.NewEndpoint(m.LzChainID, common.HexToAddress(m.Endpoint),
			layerzero.WithLogger(logger), layerzero.WithClock(o.now))
	default:
		err = fmt.Errorf("unknown transport %q", m.Transport)
	}
	if err != nil {
		return nil, err
	}

	for _, t := range m.Tokens {
		if err := deployToken(c, t); err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Address, err)
		}
	}
	return c, nil
}

func deployToken(c *Chain, t deploy.Token) error {
	addr := common.HexToAddress(t.Address)
	ledger, err := token.NewLedger(t.Name, t.Symbol, t.Decimals, c.Owner)
	if err != nil {
		return err
	}
	if t.Bridge != "" {
		if err := ledger.SetBridge(c.Owner, common.HexToAddress(t.Bridge)); err != nil {
			return err
		}
	}
	for _, mint := range t.Mints {
		amount, err := deploy.ToBaseUnits(mint.Amount, t.Decimals)
		if err != nil {
			return err
		}
		// the owner may only mint to itself
		if err := ledger.Mint(c.Owner, c.Owner, amount); err != nil {
			return err
		}
		if to := common.HexToAddress(mint.Account); to != c.Owner {
			if err := ledger.Transfer(c.Owner, to, amount); err != nil {
				return err
			}
		}
	}

	if !t.OFT {
		c.ledgers[addr] = ledger
		return nil
	}
	oft, err := token.NewOFT(ledger, addr, c.Endpoint)
	if err != nil {
		return err
	}
	for _, r := range t.Remotes {
		if err := oft.SetTrustedRemote(c.Owner, r.ChainID, common.HexToAddress(r.Address)); err != nil {
			return err
		}
	}
	c.Endpoint.RegisterReceiver(addr, oft)
	c.ofts[addr] = oft
	return nil
}

func (n *Network) pinRemoteEndpoints(manifests []*deploy.Manifest) {
	for _, m := range manifests {
		c := n.chains[m.Chain]
		if c.Endpoint == nil {
			continue
		}
		for _, t := range m.Tokens {
			for _, r := range t.Remotes {
				if remote, ok := n.endpoints.Endpoint(r.ChainID); ok {
					c.Endpoint.SetDestLzEndpoint(common.HexToAddress(r.Address), remote.Address())
				}
			}
		}
	}
}

func (n *Network) deployBridge(m *deploy.Manifest, c *Chain, b deploy.Bridge, o *options) (bridge.Instance, error) {
	mode, err := bridge.ParseMode(b.Mode)
	if err != nil {
		return nil, err
	}
	policy, err := bridge.ParseInboundPolicy(b.InboundPolicy)
	if err != nil {
		return nil, err
	}
	window, err := registry.ParseWindowMode(b.Window)
	if err != nil {
		return nil, err
	}

	ident := bridge.Identity{ID: b.ID, Address: common.HexToAddress(b.Address), Owner: c.Owner}
	opts := []bridge.Option{
		bridge.WithLogger(o.logger.With(zap.String("bridge", b.ID))),
		bridge.WithClock(o.now),
		bridge.WithMode(mode),
		bridge.WithInboundPolicy(policy),
		bridge.WithRegistryOptions(registry.WithWindowMode(window)),
	}

	switch bridge.Kind(b.Kind) {
	case bridge.KindSource:
		seeds, err := m.InitialTokens(b)
		if err != nil {
			return nil, err
		}
		src, err := bridge.NewSourceBridge(ident, c.Gateway, c.tokenResolver(), append(opts, bridge.WithSupportedTokens(seeds...))...)
		if err != nil {
			return nil, err
		}
		for _, r := range b.Routes {
			if err := src.AddDestinationChain(c.Owner, r.Chain, NormalizeCounterpart(r.Counterpart)); err != nil {
				return nil, err
			}
		}
		return src, nil

	case bridge.KindDestination:
		seeds := make([]bridge.InitialToken, 0, len(b.Tokens))
		for _, addr := range b.SupportedTokens() {
			seeds = append(seeds, bridge.InitialToken{Token: addr})
		}
		dst, err := bridge.NewDestinationBridge(ident, c.tokenResolver(), append(opts, bridge.WithSupportedTokens(seeds...))...)
		if err != nil {
			return nil, err
		}
		for _, r := range b.Routes {
			if err := dst.AddChainSupport(c.Owner, r.Chain, NormalizeCounterpart(r.Counterpart)); err != nil {
				return nil, err
			}
		}
		c.Gateway.RegisterExecutable(ident.Address.Hex(), dst)
		return dst, nil

	case bridge.KindOFT:
		seeds, err := m.InitialTokens(b)
		if err != nil {
			return nil, err
		}
		oft, err := bridge.NewOFTBridge(ident, c.oftResolver(), append(opts, bridge.WithSupportedTokens(seeds...))...)
		if err != nil {
			return nil, err
		}
		for _, r := range b.Routes {
			id, err := strconv.ParseUint(r.Chain, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("route chain %q: %w", r.Chain, err)
			}
			if err := oft.SetTrustedRemote(c.Owner, uint16(id), common.HexToAddress(r.Counterpart)); err != nil {
				return nil, err
			}
		}
		return oft, nil
	}
	return nil, fmt.Errorf("unknown bridge kind %q", b.Kind)
}

func (c *Chain) tokenResolver() bridge.StaticTokens {
	out := make(bridge.StaticTokens, len(c.ledgers))
	for addr, l := range c.ledgers {
		out[addr] = l
	}
	return out
}

func (c *Chain) oftResolver() bridge.StaticOFTs {
	out := make(bridge.StaticOFTs, len(c.ofts))
	for addr, o := range c.ofts {
		out[addr] = o
	}
	return out
}

// NormalizeCounterpart checksums hex addresses so route lookups match the
// sender string the gateway reports. Other strings are kept as given.
func NormalizeCounterpart(s string) string {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex()
	}
	return s
}

// Chains returns the chain names in manifest order
func (n *Network) Chains() []string {
	return append([]string(nil), n.order...)
}

func (n *Network) Chain(name string) (*Chain, error) {
	c, ok := n.chains[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return c, nil
}

// Ledger returns the token contract at addr on chain
func (n *Network) Ledger(chain string, addr common.Address) (*token.Ledger, error) {
	c, err := n.Chain(chain)
	if err != nil {
		return nil, err
	}
	l, ok := c.Ledger(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownToken, addr.Hex(), chain)
	}
	return l, nil
}

// BridgeIDs returns every bridge id in order
func (n *Network) BridgeIDs() []string {
	return append([]string(nil), n.ids...)
}

func (n *Network) Bridge(id string) (bridge.Instance, error) {
	b, ok := n.bridges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBridge, id)
	}
	return b, nil
}

// ChainOf returns the chain a bridge is deployed on
func (n *Network) ChainOf(id string) string {
	return n.chainOf[id]
}

// InitialSnapshot returns the state a bridge had right after deployment
func (n *Network) InitialSnapshot(id string) (bridge.Snapshot, bool) {
	s, ok := n.initial[id]
	return s, ok
}

// RelayPaths returns a relay path for every ordered pair of chains sharing a
// transport.
func (n *Network) RelayPaths() []relayer.Path {
	var paths []relayer.Path
	for _, from := range n.order {
		for _, to := range n.order {
			src, dst := n.chains[from], n.chains[to]
			if from == to || src.Transport != dst.Transport {
				continue
			}
			switch src.Transport {
			case deploy.TransportGateway:
				paths = append(paths, relayer.Path{
					Source:      relayer.NewGatewaySource(src.Gateway),
					Destination: relayer.NewGatewayDestination(dst.Gateway),
				})
			case deploy.TransportLayerZero:
				paths = append(paths, relayer.Path{
					Source:      relayer.NewEndpointSource(src.Endpoint),
					Destination: relayer.NewEndpointDestination(dst.Endpoint),
				})
			}
		}
	}
	return paths
}
