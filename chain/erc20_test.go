package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	calls []ethereum.CallMsg
	out   []byte
	err   error
	block bool
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, call)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.out, f.err
}

var tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestERC20BalanceSourceDecodesBalance(t *testing.T) {
	raw := new(big.Int).Mul(big.NewInt(1255), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	caller := &fakeCaller{out: common.LeftPadBytes(raw.Bytes(), 32)}
	src := NewERC20BalanceSource(caller, tokenAddr, 18, time.Second)

	holder := "0x1111111111111111111111111111111111111111"
	balance, err := src.GetBalance(context.Background(), holder)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("12.55").Equal(balance), balance.String())

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	require.Equal(t, tokenAddr, *call.To)
	require.True(t, bytes.Equal(balanceOfSelector, call.Data[:4]))
	require.Equal(t, common.HexToAddress(holder), common.BytesToAddress(call.Data[4:]))
}

func TestERC20BalanceSourceRejectsBadAddress(t *testing.T) {
	src := NewERC20BalanceSource(&fakeCaller{}, tokenAddr, 18, time.Second)
	_, err := src.GetBalance(context.Background(), "not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestERC20BalanceSourcePropagatesFailures(t *testing.T) {
	rpcErr := errors.New("connection refused")
	src := NewERC20BalanceSource(&fakeCaller{err: rpcErr}, tokenAddr, 18, time.Second)
	_, err := src.GetBalance(context.Background(), "0x1111111111111111111111111111111111111111")
	require.ErrorIs(t, err, rpcErr)

	short := NewERC20BalanceSource(&fakeCaller{out: []byte{1, 2}}, tokenAddr, 18, time.Second)
	_, err = short.GetBalance(context.Background(), "0x1111111111111111111111111111111111111111")
	require.Error(t, err)
}

func TestERC20BalanceSourceHonoursTimeout(t *testing.T) {
	src := NewERC20BalanceSource(&fakeCaller{block: true}, tokenAddr, 18, 20*time.Millisecond)
	_, err := src.GetBalance(context.Background(), "0x1111111111111111111111111111111111111111")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
