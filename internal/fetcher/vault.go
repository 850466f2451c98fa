package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	erc4626ABIJSON = `[{"inputs":[{"internalType":"uint256","name":"assets","type":"uint256"}],"name":"previewDeposit","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	erc4626ABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc4626ABIJSON))
	if err != nil {
		panic("failed to parse ERC-4626 ABI: " + err.Error())
	}
	erc4626ABI = parsed
}

// VaultOptions parameterise the on-chain fetcher.
type VaultOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// Vault quotes ERC-4626 deposits: the output mint is the vault address and the
// output amount is the number of shares previewDeposit returns for the input amount.
type Vault struct {
	opts      VaultOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewVault builds a vault quote fetcher.
func NewVault(opts VaultOptions, logger zerolog.Logger) *Vault {
	return &Vault{opts: opts, logger: logger.With().Str("component", "vault_fetcher").Logger()}
}

// Fetch calls previewDeposit(amount) on the vault.
func (v *Vault) Fetch(ctx context.Context, q QuoteRequest) (Quote, error) {
	if v.opts.RPCURL == "" {
		return Quote{}, errors.New("ethereum rpc url not configured")
	}
	if !common.IsHexAddress(q.OutputMint) {
		return Quote{}, fmt.Errorf("vault address %q is not a hex address", q.OutputMint)
	}
	if q.Amount <= 0 {
		return Quote{}, errors.New("amount must be greater than zero")
	}

	timeout := v.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := v.getClient(ctx)
	if err != nil {
		return Quote{}, &FetchError{Err: err}
	}

	addr := common.HexToAddress(q.OutputMint)
	payload, err := erc4626ABI.Pack("previewDeposit", big.NewInt(q.Amount))
	if err != nil {
		return Quote{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return Quote{}, &FetchError{Err: fmt.Errorf("call previewDeposit: %w", err)}
	}

	outputs, err := erc4626ABI.Unpack("previewDeposit", res)
	if err != nil {
		return Quote{}, err
	}
	if len(outputs) != 1 {
		return Quote{}, errors.New("unexpected previewDeposit response")
	}

	shares, ok := outputs[0].(*big.Int)
	if !ok {
		return Quote{}, errors.New("failed to decode previewDeposit output")
	}
	if !shares.IsInt64() {
		return Quote{}, fmt.Errorf("previewDeposit result %s overflows int64", shares.String())
	}

	v.logger.Debug().Str("vault", addr.Hex()).Str("shares", shares.String()).Msg("vault quote")
	return Quote{OutputAmount: shares.Int64(), RouteHops: 1}, nil
}

func (v *Vault) getClient(ctx context.Context) (*ethclient.Client, error) {
	v.clientMux.Lock()
	defer v.clientMux.Unlock()

	if v.client != nil {
		return v.client, nil
	}

	client, err := ethclient.DialContext(ctx, v.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	v.client = client
	return client, nil
}

// Close releases the RPC connection.
func (v *Vault) Close() {
	v.clientMux.Lock()
	defer v.clientMux.Unlock()
	if v.client != nil {
		v.client.Close()
		v.client = nil
	}
}

var _ QuoteSource = (*Vault)(nil)
