package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAssetKeyStringRoundTrip(t *testing.T) {
	key := NewAssetKey(
		common.HexToAddress("0xAbCd00000000000000000000000000000000EF12"),
		big.NewInt(123456789),
	)

	s := key.String()
	require.Equal(t, "0xabcd00000000000000000000000000000000ef12:123456789", s)

	parsed, err := ParseAssetKey(s)
	require.NoError(t, err)
	require.Equal(t, key.Contract, parsed.Contract)
	require.Zero(t, key.TokenID.Cmp(parsed.TokenID))
}

func TestParseAssetKeyRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"0xabcd00000000000000000000000000000000ef12",
		"nothex:1",
		"0xabcd00000000000000000000000000000000ef12:",
		"0xabcd00000000000000000000000000000000ef12:0x1f",
		"0xabcd00000000000000000000000000000000ef12:-1",
	} {
		_, err := ParseAssetKey(in)
		require.Error(t, err, "input %q", in)
	}
}

func TestAssetKeyValid(t *testing.T) {
	require.False(t, AssetKey{}.Valid())
	require.False(t, AssetKey{Contract: common.HexToAddress("0x1"), TokenID: nil}.Valid())
	require.True(t, NewAssetKey(common.HexToAddress("0x1"), big.NewInt(0)).Valid())
}

func TestSettlementFaultUnwrap(t *testing.T) {
	fault := &SettlementFault{
		Key:     NewAssetKey(common.HexToAddress("0x1"), big.NewInt(1)),
		Amount:  big.NewInt(100),
		LegErr:  ErrPaymentRejected,
		CompErr: errors.New("rpc timeout"),
	}

	require.ErrorIs(t, fault, ErrPaymentRejected)
	require.Contains(t, fault.Error(), "reversal failed")
}
