package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParcelRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(42)
	w.WriteInt32(-7)
	w.WriteUint64(1 << 40)
	w.WriteInt64(-(1 << 40))
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteFloat64(3.25)
	w.WriteString("svc")
	w.WriteBytes([]byte{0xde, 0xad})
	w.WriteHandle(9)
	w.WriteHandle(3)

	r := NewReader(w.Payload(), w.Handles())

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), u32)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u64)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-(1<<40)), i64)

	b1, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b1)
	b2, err := r.ReadBool()
	require.NoError(t, err)
	assert.False(t, b2)

	f, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 3.25, f)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "svc", s)

	raw, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, raw)

	h1, err := r.ReadHandle()
	require.NoError(t, err)
	assert.Equal(t, uint32(9), h1)
	h2, err := r.ReadHandle()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h2)

	assert.Zero(t, r.Remaining())
}

func TestReaderShortPayload(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(1)

	r := NewReader(w.Payload(), nil)
	_, err := r.ReadUint32()
	require.NoError(t, err)

	_, err = r.ReadUint32()
	assert.ErrorIs(t, err, ErrShortPayload)
	_, err = r.ReadString()
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestReaderBadHandleIndex(t *testing.T) {
	w := NewWriter()
	w.WriteHandle(5)

	// Handle table deliberately empty: the index in the payload dangles.
	r := NewReader(w.Payload(), nil)
	_, err := r.ReadHandle()
	assert.ErrorIs(t, err, ErrBadHandleIndex)
}

func TestWriterReset(t *testing.T) {
	w := NewWriter()
	w.WriteString("before")
	w.WriteHandle(1)
	w.Reset()

	assert.Zero(t, w.Len())
	assert.Empty(t, w.Handles())
}

func TestTransactionEncodeDecode(t *testing.T) {
	txn := &Transaction{
		Target:    7,
		Code:      3,
		Flags:     FlagReplyExpected,
		SenderUID: 1000,
		SenderPID: 42,
		Status:    StatusException,
		Payload:   []byte("payload-bytes"),
		Handles:   []uint32{1, 2, 99},
		Trace:     "txn_01ABC",
	}

	got, err := Decode(txn.Encode())
	require.NoError(t, err)
	assert.Equal(t, txn, got)
}

func TestTransactionDecodeEmpty(t *testing.T) {
	txn := &Transaction{Target: 1, Code: 2, Flags: FlagOneway}
	got, err := Decode(txn.Encode())
	require.NoError(t, err)
	assert.Equal(t, txn, got)
}

func TestTransactionDecodeTruncated(t *testing.T) {
	txn := &Transaction{Target: 1, Payload: []byte("0123456789")}
	enc := txn.Encode()

	for _, cut := range []int{0, 5, headerSize - 1, len(enc) - 1} {
		_, err := Decode(enc[:cut])
		assert.ErrorIs(t, err, ErrTruncated, "cut=%d", cut)
	}
}

func TestTransactionDecodeBadVersion(t *testing.T) {
	enc := (&Transaction{}).Encode()
	enc[0] = 0xFF
	_, err := Decode(enc)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestFlagPredicates(t *testing.T) {
	assert.True(t, FlagOneway.Oneway())
	assert.False(t, FlagOneway.ReplyExpected())
	assert.True(t, FlagReplyExpected.ReplyExpected())
	assert.True(t, (FlagOneway | FlagReplyExpected).Oneway())
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusException, "exception"},
		{StatusDeadTarget, "dead_target"},
		{StatusTooLarge, "too_large"},
		{StatusUnknownMethod, "unknown_method"},
		{Status(99), "status(99)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}
