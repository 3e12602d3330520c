// Package eth implements the asset registry and payment backend against an
// Ethereum-compatible chain: ERC-721 title and approval queries, ERC-721
// transfers, and ERC-20 or native payments, all executed by the engine's
// operator key.
package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient connection together with the operator identity
// used to sign transactions.
type Client struct {
	eth      *ethclient.Client
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	operator common.Address
}

// Dial connects to the given RPC endpoint and derives the operator address
// from the hex-encoded private key.
func Dial(ctx context.Context, rpcURL, privateKeyHex string) (*Client, error) {
	key, err := gethcrypto.HexToECDSA(trim0x(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("eth: parse operator key: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("eth: dial %s: %w", rpcURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("eth: chain id: %w", err)
	}

	return &Client{
		eth:      ec,
		chainID:  chainID,
		key:      key,
		operator: gethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Operator returns the engine's transaction-signing address. This is the
// address asset owners must approve.
func (c *Client) Operator() common.Address {
	return c.operator
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// call performs a read-only contract call.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth: call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// transact signs and sends a transaction from the operator and waits for it
// to be mined. It returns an error when the receipt reports failure.
func (c *Client) transact(ctx context.Context, to common.Address, data []byte, value *big.Int) error {
	nonce, err := c.eth.PendingNonceAt(ctx, c.operator)
	if err != nil {
		return fmt.Errorf("eth: nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("eth: gas price: %w", err)
	}

	msg := ethereum.CallMsg{From: c.operator, To: &to, Value: value, Data: data}
	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		// Estimation fails when the call would revert; surface it as such.
		return fmt.Errorf("eth: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("eth: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("eth: send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return fmt.Errorf("eth: wait mined %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("eth: tx %s reverted", signed.Hash().Hex())
	}
	return nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
