package config

import (
	"fmt"
	"strings"
)

// Quote sources selectable via tracker.source.
const (
	SourceJupiter = "jupiter"
	SourceVault   = "vault"
	SourceDemo    = "demo"
)

// TokenMints lists well known Solana mints by symbol.
var TokenMints = map[string]string{
	"SOL":  "So11111111111111111111111111111111111111112",
	"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	"mSOL": "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So",
	"bSOL": "bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1",
	"BONK": "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
	"ETH":  "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs",
}

// Preset is a canned trading pair.
type Preset struct {
	InputMint  string
	OutputMint string
	Amount     int64
}

// Presets by name.
var Presets = map[string]Preset{
	"SOL_USDC": {InputMint: TokenMints["SOL"], OutputMint: TokenMints["USDC"], Amount: 1_000_000},
	"USDC_SOL": {InputMint: TokenMints["USDC"], OutputMint: TokenMints["SOL"], Amount: 100_000_000},
	"SOL_mSOL": {InputMint: TokenMints["SOL"], OutputMint: TokenMints["mSOL"], Amount: 1_000_000},
	"mSOL_SOL": {InputMint: TokenMints["mSOL"], OutputMint: TokenMints["SOL"], Amount: 1_000_000},
}

// TokenSymbol returns the display symbol of a mint, or an abbreviated address.
func TokenSymbol(mint string) string {
	for symbol, addr := range TokenMints {
		if addr == mint {
			return symbol
		}
	}
	if len(mint) > 8 {
		return mint[:8] + "..."
	}
	return mint
}

// ApplyPreset overwrites the pair and amount when tracker.preset is set.
func (c *Config) ApplyPreset() error {
	name := strings.TrimSpace(c.Tracker.Preset)
	if name == "" {
		return nil
	}
	p, ok := Presets[name]
	if !ok {
		return newConfigError("tracker.preset", fmt.Sprintf("unknown preset %q", name))
	}
	c.Tracker.InputMint = p.InputMint
	c.Tracker.OutputMint = p.OutputMint
	c.Tracker.Amount = p.Amount
	return nil
}
