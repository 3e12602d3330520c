package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

const erc20ABIJSON = `[
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Payments implements domain.PaymentBackend. With a token address configured
// it pays out in that ERC-20; otherwise it sends native currency from the
// operator account.
type Payments struct {
	client *Client
	token  common.Address
	abi    abi.ABI
}

// NewPayments creates a Payments backend. A zero token address selects
// native-currency payouts.
func NewPayments(client *Client, token common.Address) (*Payments, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("eth: parse erc20 abi: %w", err)
	}
	return &Payments{client: client, token: token, abi: parsed}, nil
}

// Transfer pays amount to the recipient. Any refusal surfaces as
// domain.ErrPaymentRejected.
func (p *Payments) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if p.token == (common.Address{}) {
		if err := p.client.transact(ctx, to, nil, amount); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPaymentRejected, err)
		}
		return nil
	}

	input, err := p.abi.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("eth: pack transfer: %w", err)
	}
	if err := p.client.transact(ctx, p.token, input, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPaymentRejected, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PaymentBackend = (*Payments)(nil)
