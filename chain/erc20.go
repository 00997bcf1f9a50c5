// Package chain reads RCN balances from the token contract.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

var balanceOfSelector = gethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]

var ErrInvalidAddress = errors.New("chain: invalid address")

// ContractCaller is the subset of the Ethereum RPC used to read balances.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial initialises an RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("chain rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// ERC20BalanceSource implements store.ChainBalanceSource against the RCN
// ERC-20 contract.
type ERC20BalanceSource struct {
	caller   ContractCaller
	token    common.Address
	decimals int32
	timeout  time.Duration
}

func NewERC20BalanceSource(caller ContractCaller, token common.Address, decimals int32, timeout time.Duration) *ERC20BalanceSource {
	return &ERC20BalanceSource{caller: caller, token: token, decimals: decimals, timeout: timeout}
}

func (s *ERC20BalanceSource) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if s == nil || s.caller == nil {
		return decimal.Zero, fmt.Errorf("chain: balance source not initialised")
	}
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	holder := common.HexToAddress(address)
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), 32)...)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	token := s.token
	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: balanceOf %s: %w", holder.Hex(), err)
	}
	if len(out) < 32 {
		return decimal.Zero, fmt.Errorf("chain: balanceOf %s: short response (%d bytes)", holder.Hex(), len(out))
	}
	raw := new(big.Int).SetBytes(out[:32])
	return decimal.NewFromBigInt(raw, -s.decimals), nil
}
