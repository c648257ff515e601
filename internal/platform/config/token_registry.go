package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the sentinel address standing in for the network's native asset.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token contains display and on-chain metadata for a tradable asset
type Token struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Address  common.Address `json:"address"` // NativeAddress for the native asset
	Decimals uint8          `json:"decimals"`
	IconURL  string         `json:"iconUrl,omitempty"`
	Color    string         `json:"color,omitempty"`
}

// IsNative reports whether the token is the network's native asset
func (t Token) IsNative() bool {
	return t.Address == NativeAddress
}

// TokenRegistry is an ordered, immutable set of tokens.
// Lookups by symbol and address are case-insensitive.
type TokenRegistry struct {
	tokens    []Token
	bySymbol  map[string]int
	byAddress map[common.Address]int
}

// NewTokenRegistry builds a registry preserving the order of tokens
func NewTokenRegistry(tokens []Token) (*TokenRegistry, error) {
	r := &TokenRegistry{
		tokens:    make([]Token, 0, len(tokens)),
		bySymbol:  make(map[string]int, len(tokens)),
		byAddress: make(map[common.Address]int, len(tokens)),
	}

	for _, tok := range tokens {
		sym := strings.ToUpper(tok.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("token %s: symbol is required", tok.Address.Hex())
		}
		if _, dup := r.bySymbol[sym]; dup {
			return nil, fmt.Errorf("duplicate token symbol: %s", tok.Symbol)
		}
		if _, dup := r.byAddress[tok.Address]; dup {
			return nil, fmt.Errorf("duplicate token address: %s", tok.Address.Hex())
		}
		if tok.Decimals > 77 {
			return nil, fmt.Errorf("token %s: decimals %d out of range", tok.Symbol, tok.Decimals)
		}

		r.bySymbol[sym] = len(r.tokens)
		r.byAddress[tok.Address] = len(r.tokens)
		r.tokens = append(r.tokens, tok)
	}

	return r, nil
}

// MustTokenRegistry is NewTokenRegistry that panics on error
func MustTokenRegistry(tokens []Token) *TokenRegistry {
	r, err := NewTokenRegistry(tokens)
	if err != nil {
		panic(err)
	}
	return r
}

// All returns every token in registry order
func (r *TokenRegistry) All() []Token {
	out := make([]Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

// ERC20 returns the non-native tokens in registry order
func (r *TokenRegistry) ERC20() []Token {
	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		if !t.IsNative() {
			out = append(out, t)
		}
	}
	return out
}

// Native returns the native asset entry, if registered
func (r *TokenRegistry) Native() (Token, bool) {
	return r.ByAddress(NativeAddress)
}

// BySymbol looks a token up by symbol
func (r *TokenRegistry) BySymbol(symbol string) (Token, bool) {
	i, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, false
	}
	return r.tokens[i], true
}

// ByAddress looks a token up by address
func (r *TokenRegistry) ByAddress(addr common.Address) (Token, bool) {
	i, ok := r.byAddress[addr]
	if !ok {
		return Token{}, false
	}
	return r.tokens[i], true
}

// Lookup resolves either a symbol or a hex address
func (r *TokenRegistry) Lookup(ref string) (Token, bool) {
	ref = strings.TrimSpace(ref)
	if common.IsHexAddress(ref) {
		return r.ByAddress(common.HexToAddress(ref))
	}
	return r.BySymbol(ref)
}

// Len returns the number of registered tokens
func (r *TokenRegistry) Len() int {
	return len(r.tokens)
}

// ParsePair parses a pair string like "WETH-USDC" into its two tokens
func (r *TokenRegistry) ParsePair(pairName string) (base Token, quote Token, err error) {
	parts := strings.Split(pairName, "-")
	if len(parts) != 2 {
		return Token{}, Token{}, fmt.Errorf("invalid pair format: %s (expected BASE-QUOTE like WETH-USDC)", pairName)
	}

	base, ok := r.Lookup(parts[0])
	if !ok {
		return Token{}, Token{}, fmt.Errorf("unknown base token: %s", parts[0])
	}

	quote, ok = r.Lookup(parts[1])
	if !ok {
		return Token{}, Token{}, fmt.Errorf("unknown quote token: %s", parts[1])
	}

	if base.Address == quote.Address {
		return Token{}, Token{}, fmt.Errorf("base and quote tokens must be different: %s", pairName)
	}

	return base, quote, nil
}

func (tc TokenConfig) toToken() (Token, error) {
	var addr common.Address
	switch {
	case tc.Address == "" || strings.EqualFold(tc.Address, "native"):
		addr = NativeAddress
	case common.IsHexAddress(tc.Address):
		addr = common.HexToAddress(tc.Address)
	default:
		return Token{}, fmt.Errorf("token %s: invalid address %q", tc.Symbol, tc.Address)
	}
	if tc.Decimals < 0 || tc.Decimals > 77 {
		return Token{}, fmt.Errorf("token %s: decimals %d out of range", tc.Symbol, tc.Decimals)
	}
	return Token{
		Symbol:   tc.Symbol,
		Name:     tc.Name,
		Address:  addr,
		Decimals: uint8(tc.Decimals),
		IconURL:  tc.IconURL,
		Color:    tc.Color,
	}, nil
}

// DefaultTokens returns the built-in Sepolia token list. The native asset comes first.
func DefaultTokens(nativeSymbol string) []Token {
	if nativeSymbol == "" {
		nativeSymbol = "ETH"
	}
	return []Token{
		{
			Symbol:   nativeSymbol,
			Name:     "Ether",
			Address:  NativeAddress,
			Decimals: 18,
			IconURL:  "/tokens/eth.svg",
			Color:    "#627EEA",
		},
		{
			Symbol:   "WETH",
			Name:     "Wrapped Ether",
			Address:  common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
			Decimals: 18,
			IconURL:  "/tokens/weth.svg",
			Color:    "#EC4899",
		},
		{
			Symbol:   "USDC",
			Name:     "USD Coin",
			Address:  common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
			Decimals: 6,
			IconURL:  "/tokens/usdc.svg",
			Color:    "#2775CA",
		},
		{
			Symbol:   "LINK",
			Name:     "Chainlink",
			Address:  common.HexToAddress("0x779877A7B0D9E8603169DdbD7836e478b4624789"),
			Decimals: 18,
			IconURL:  "/tokens/link.svg",
			Color:    "#2A5ADA",
		},
		{
			Symbol:   "UNI",
			Name:     "Uniswap",
			Address:  common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"),
			Decimals: 18,
			IconURL:  "/tokens/uni.svg",
			Color:    "#FF007A",
		},
	}
}
