package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Raw 4-byte selectors for the handful of contract calls we make. Hand-rolled
// calldata keeps the ABI surface small enough to skip code generation.
var (
	selBalanceOf         = ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selAllowance         = ethcrypto.Keccak256([]byte("allowance(address,address)"))[:4]
	selApprove           = ethcrypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	selIsApprovedForAll  = ethcrypto.Keccak256([]byte("isApprovedForAll(address,address)"))[:4]
	selSetApprovalForAll = ethcrypto.Keccak256([]byte("setApprovalForAll(address,bool)"))[:4]
	selWithdrawPayout    = ethcrypto.Keccak256([]byte("withdrawPayout(uint256)"))[:4]

	topicTransfer = common.BytesToHash(ethcrypto.Keccak256([]byte("Transfer(address,address,uint256)")))
)

// MaxApproval is the unlimited ERC-20 allowance (2^256 - 1).
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NativeBalance returns the wallet's native token balance in wei.
func (e *Executor) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.Execute(ctx, "native_balance", func(ctx context.Context, conn *ConnContext) error {
		bal, err := conn.Client.BalanceAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		out = bal
		return nil
	})
	return out, err
}

// TokenBalance returns the ERC-20 balance of owner on the given token.
func (e *Executor) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(owner.Bytes(), 32)...)
	return e.callUint256(ctx, "token_balance", token, data)
}

// TokenAllowance returns the ERC-20 allowance owner has granted spender.
func (e *Executor) TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data := append([]byte{}, selAllowance...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	return e.callUint256(ctx, "token_allowance", token, data)
}

// IsApprovedForAll reports whether operator may manage owner's bet NFTs.
func (e *Executor) IsApprovedForAll(ctx context.Context, nft, owner, operator common.Address) (bool, error) {
	data := append([]byte{}, selIsApprovedForAll...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(operator.Bytes(), 32)...)

	v, err := e.callUint256(ctx, "is_approved_for_all", nft, data)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// callUint256 executes a read-only contract call returning one uint256 word.
func (e *Executor) callUint256(ctx context.Context, name string, to common.Address, data []byte) (*big.Int, error) {
	var out *big.Int
	err := e.Execute(ctx, name, func(ctx context.Context, conn *ConnContext) error {
		res, err := conn.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			return err
		}
		if len(res) < 32 {
			return fmt.Errorf("short return data (%d bytes)", len(res))
		}
		out = new(big.Int).SetBytes(res[:32])
		return nil
	})
	return out, err
}
