package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtocolStateRoundTrip(t *testing.T) {
	ps := &ProtocolState{
		Initialized:       true,
		Authority:         Address{1},
		Treasury:          Address{2},
		AssetID:           Address{3},
		TotalDeposited:    20_000_000,
		TotalWithdrawn:    10_000_000,
		TotalFees:         200_000,
		TotalPoints:       2,
		DepositFeeRate:    100,
		WithdrawalFeeRate: 50,
		Paused:            true,
	}
	data := ps.Marshal()
	require.Len(t, data, protocolStateLen)
	got, err := UnmarshalProtocolState(data)
	require.NoError(t, err)
	require.Equal(t, ps, got)
}

func TestFloatingPointRoundTrip(t *testing.T) {
	p := &FloatingPoint{
		Initialized: true,
		Commitment:  Hash{0xaa, 0xbb},
		CreatedAt:   1_700_000_000,
		Mass:        1,
		Active:      true,
		Creator:     Address{7},
		LockedUntil: 1_700_000_012,
	}
	got, err := UnmarshalFloatingPoint(p.Marshal())
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestNullifierRecordRoundTrip(t *testing.T) {
	n := &NullifierRecord{
		Initialized: true,
		Nullifier:   Hash{0xcd},
		Used:        true,
		Timestamp:   1_700_000_000,
	}
	got, err := UnmarshalNullifierRecord(n.Marshal())
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestWithdrawalRequestRoundTrip(t *testing.T) {
	w := &WithdrawalRequest{
		Initialized: true,
		Requester:   Address{9},
		Amount:      30_000_000,
		RequestTime: 1_700_000_000,
		UnlockTime:  1_700_086_400,
		Points:      []Hash{{1}, {2}, {3}},
		Nullifiers:  []Hash{{4}, {5}, {6}},
	}
	got, err := UnmarshalWithdrawalRequest(w.Marshal())
	require.NoError(t, err)
	require.Equal(t, w, got)
}

func TestWithdrawalRequestEmptyLists(t *testing.T) {
	w := &WithdrawalRequest{Initialized: true, Requester: Address{1}, Cancelled: true}
	got, err := UnmarshalWithdrawalRequest(w.Marshal())
	require.NoError(t, err)
	require.True(t, got.Terminal())
	require.Empty(t, got.Points)
	require.Empty(t, got.Nullifiers)
}

func TestWithdrawalRequestMarshalRefusesOversizedLists(t *testing.T) {
	// One past the u16 count prefix: without the guard the length would wrap
	// to zero while the hashes were still written, producing a record that
	// can never be decoded again.
	points := make([]Hash, MaxWithdrawalPoints+1)
	w := &WithdrawalRequest{
		Initialized: true,
		Requester:   Address{9},
		Points:      points,
		Nullifiers:  points,
	}
	require.Panics(t, func() { w.Marshal() })
}

func TestUnmarshalRejectsTruncatedData(t *testing.T) {
	ps := (&ProtocolState{Initialized: true}).Marshal()
	_, err := UnmarshalProtocolState(ps[:len(ps)-1])
	require.ErrorIs(t, err, ErrInvalidAccount)

	fp := (&FloatingPoint{Initialized: true}).Marshal()
	_, err = UnmarshalFloatingPoint(fp[:5])
	require.ErrorIs(t, err, ErrInvalidAccount)

	w := (&WithdrawalRequest{Initialized: true, Points: []Hash{{1}}, Nullifiers: []Hash{{2}}}).Marshal()
	_, err = UnmarshalWithdrawalRequest(w[:len(w)-8])
	require.ErrorIs(t, err, ErrInvalidAccount)
}

func TestUnmarshalRejectsBadBool(t *testing.T) {
	data := (&NullifierRecord{Initialized: true}).Marshal()
	data[0] = 2
	_, err := UnmarshalNullifierRecord(data)
	require.ErrorIs(t, err, ErrInvalidAccount)
}

func TestWithdrawalKeyDerivation(t *testing.T) {
	a := WithdrawalKey(Address{1}, 0)
	require.Equal(t, a, WithdrawalKey(Address{1}, 0))
	require.NotEqual(t, a, WithdrawalKey(Address{1}, 1))
	require.NotEqual(t, a, WithdrawalKey(Address{2}, 0))
}

func TestTransferDigestBindsAllParts(t *testing.T) {
	nulls := []Hash{{1}}
	outs := []Hash{{2}}
	proof := []byte{3, 4, 5}
	base := TransferDigest(nulls, outs, proof)
	require.Equal(t, base, TransferDigest(nulls, outs, proof))
	require.NotEqual(t, base, TransferDigest([]Hash{{9}}, outs, proof))
	require.NotEqual(t, base, TransferDigest(nulls, []Hash{{9}}, proof))
	require.NotEqual(t, base, TransferDigest(nulls, outs, []byte{9}))
}

func TestFeeFor(t *testing.T) {
	require.Equal(t, uint64(200_000), feeFor(20_000_000, 100))
	require.Equal(t, uint64(0), feeFor(0, 500))
	require.Equal(t, uint64(0), feeFor(99, 100))
	// 128-bit intermediate: max amount at max rate does not overflow.
	require.Equal(t, uint64(5_000_000_000), feeFor(100_000_000_000, 500))
}
