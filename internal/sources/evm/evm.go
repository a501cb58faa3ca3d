// Package evm reads token metadata directly from contracts over JSON-RPC.
package evm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0xsequence/token-directory/internal/normalize"
)

const symbolABI = `[
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var parsedABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(symbolABI))
	if err != nil {
		panic(err)
	}
	return a
}()

// ErrUnsupportedChain is returned for chains without a configured endpoint.
var ErrUnsupportedChain = errors.New("no rpc endpoint for chain")

// Caller is the subset of ethclient.Client used here.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver reads ERC-20/721 symbol() for one chain.
type Resolver struct {
	chainID uint64
	caller  Caller
}

// NewResolver creates a Resolver answering for chainID through caller.
func NewResolver(chainID uint64, caller Caller) *Resolver {
	return &Resolver{chainID: chainID, caller: caller}
}

// Dial connects to rpcURL and returns a Resolver for the endpoint's chain.
// The caller closes the returned client.
func Dial(ctx context.Context, rpcURL string) (*Resolver, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("rpc chain id: %w", err)
	}
	return NewResolver(id.Uint64(), client), client, nil
}

var _ normalize.SymbolResolver = (*Resolver)(nil)

// Symbol calls symbol() on address. Contracts returning bytes32 are decoded
// with trailing zero bytes removed.
func (r *Resolver) Symbol(ctx context.Context, chainID uint64, address string) (string, error) {
	if chainID != r.chainID {
		return "", fmt.Errorf("%w %d", ErrUnsupportedChain, chainID)
	}
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address %q", address)
	}
	to := common.HexToAddress(address)
	data, err := parsedABI.Pack("symbol")
	if err != nil {
		return "", err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("call symbol(): %w", err)
	}
	return decodeSymbol(out)
}

func decodeSymbol(out []byte) (string, error) {
	if len(out) == 0 {
		return "", errors.New("symbol(): empty result")
	}
	if vals, err := parsedABI.Unpack("symbol", out); err == nil && len(vals) == 1 {
		if s, ok := vals[0].(string); ok && utf8.ValidString(s) {
			return s, nil
		}
	}
	if len(out) == 32 {
		s := string(bytes.TrimRight(out, "\x00"))
		if utf8.ValidString(s) {
			return s, nil
		}
	}
	return "", errors.New("symbol(): undecodable result")
}
