package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	out []byte
	err error
	msg ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.msg = msg
	return f.out, f.err
}

func encodeString(t *testing.T, s string) []byte {
	t.Helper()
	typ, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	out, err := abi.Arguments{{Type: typ}}.Pack(s)
	require.NoError(t, err)
	return out
}

const dai = "0x6B175474E89094C44Da98b954EedeAC495271d0F"

func TestSymbol_String(t *testing.T) {
	f := &fakeCaller{out: encodeString(t, "DAI")}
	r := NewResolver(1, f)

	got, err := r.Symbol(context.Background(), 1, dai)
	require.NoError(t, err)
	assert.Equal(t, "DAI", got)
	assert.Equal(t, dai, f.msg.To.Hex())
	assert.Equal(t, []byte{0x95, 0xd8, 0x9b, 0x41}, f.msg.Data) // symbol() selector
}

func TestSymbol_Bytes32(t *testing.T) {
	out := make([]byte, 32)
	copy(out, "MKR")
	r := NewResolver(1, &fakeCaller{out: out})

	got, err := r.Symbol(context.Background(), 1, dai)
	require.NoError(t, err)
	assert.Equal(t, "MKR", got)
}

func TestSymbol_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewResolver(1, &fakeCaller{}).Symbol(ctx, 137, dai)
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = NewResolver(1, &fakeCaller{}).Symbol(ctx, 1, "nope")
	assert.Error(t, err)

	_, err = NewResolver(1, &fakeCaller{err: errors.New("execution reverted")}).Symbol(ctx, 1, dai)
	assert.ErrorContains(t, err, "execution reverted")

	_, err = NewResolver(1, &fakeCaller{}).Symbol(ctx, 1, dai)
	assert.ErrorContains(t, err, "empty result")
}
