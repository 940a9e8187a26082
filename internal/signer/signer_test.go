package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEngine = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

func samplePaid() *PaidOrder {
	return &PaidOrder{
		OrderID:      big.NewInt(42),
		Buyer:        common.HexToAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8"),
		ItemIDs:      []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
		PaymentAsset: common.HexToAddress("0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0"),
		Amount:       big.NewInt(1_000_000),
		MinRevenue:   big.NewInt(10),
		ExpiresAt:    big.NewInt(1_800_000_000),
	}
}

func TestSigner_SignPaid(t *testing.T) {
	// Generate a random key for testing
	key, _ := crypto.GenerateKey()
	keyHex := hexutil.Encode(crypto.FromECDSA(key))[2:]

	codec := NewCodec(31337, testEngine)
	s, err := NewSigner(keyHex, codec)
	require.NoError(t, err)

	sig, err := s.SignPaid(samplePaid())
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	recovered, err := Recover(codec.DigestPaid(samplePaid()), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("", NewCodec(1, testEngine))
	assert.Error(t, err)
	_, err = NewSigner("zz", NewCodec(1, testEngine))
	assert.Error(t, err)
}

func TestDigestMatchesTypedData(t *testing.T) {
	codec := NewCodec(31337, testEngine)

	paid := samplePaid()
	want, _, err := apitypes.TypedDataAndHash(codec.BuildPaidTypedData(paid))
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(want), codec.DigestPaid(paid))

	free := &FreeOrder{OrderID: big.NewInt(7), Buyer: paid.Buyer, ItemIDs: paid.ItemIDs, ExpiresAt: paid.ExpiresAt}
	want, _, err = apitypes.TypedDataAndHash(codec.BuildFreeTypedData(free))
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(want), codec.DigestFree(free))
}

func TestDigestDeterministicAndOrderSensitive(t *testing.T) {
	codec := NewCodec(31337, testEngine)

	a, b := samplePaid(), samplePaid()
	assert.Equal(t, codec.DigestPaid(a), codec.DigestPaid(b))

	b.ItemIDs = []*big.Int{big.NewInt(3), big.NewInt(2), big.NewInt(1)}
	assert.NotEqual(t, codec.DigestPaid(a), codec.DigestPaid(b))

	c := samplePaid()
	c.ItemIDs = []*big.Int{big.NewInt(1), big.NewInt(2)}
	assert.NotEqual(t, codec.DigestPaid(a), codec.DigestPaid(c))
}

func TestDigestDomainSeparated(t *testing.T) {
	order := samplePaid()
	base := NewCodec(31337, testEngine).DigestPaid(order)

	assert.NotEqual(t, base, NewCodec(1, testEngine).DigestPaid(order))
	assert.NotEqual(t, base, NewCodec(31337, common.HexToAddress("0x01")).DigestPaid(order))

	free := &FreeOrder{OrderID: order.OrderID, Buyer: order.Buyer, ItemIDs: order.ItemIDs, ExpiresAt: order.ExpiresAt}
	assert.NotEqual(t, base, NewCodec(31337, testEngine).DigestFree(free))
}

func TestDigestDoesNotMutateInputs(t *testing.T) {
	codec := NewCodec(31337, testEngine)
	order := samplePaid()
	order.Amount = new(big.Int).Neg(big.NewInt(1))
	_ = codec.DigestPaid(order)
	assert.Equal(t, int64(-1), order.Amount.Int64())
}

func BenchmarkDigestPaid(b *testing.B) {
	codec := NewCodec(31337, testEngine)
	order := samplePaid()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = codec.DigestPaid(order)
	}
}
