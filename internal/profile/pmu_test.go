package profile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeHeader() []byte {
	return make([]byte, perfHeaderDataTailOffset+8)
}

func TestDataHeadSetDataTail_RoundTrip(t *testing.T) {
	header := makeHeader()
	binary.LittleEndian.PutUint64(header[perfHeaderDataHeadOffset:], 4096)
	require.EqualValues(t, 4096, dataHead(header))

	setDataTail(header, 2048)
	assert.EqualValues(t, 2048, binary.LittleEndian.Uint64(header[perfHeaderDataTailOffset:]))
}

func writeSampleRecord(data []byte, pos int, addr uint64) int {
	binary.LittleEndian.PutUint32(data[pos:], perfRecordSample)
	binary.LittleEndian.PutUint16(data[pos+6:], 16)
	binary.LittleEndian.PutUint64(data[pos+8:], addr)
	return pos + 16
}

func TestParseAddrs_SingleRecordNoWrap(t *testing.T) {
	data := make([]byte, 64)
	end := writeSampleRecord(data, 0, 0xdeadbeef)

	addrs := parseAddrs(data, 0, uint64(end))
	require.Len(t, addrs, 1)
	assert.EqualValues(t, 0xdeadbeef, addrs[0])
}

func TestParseAddrs_MultipleRecords(t *testing.T) {
	data := make([]byte, 64)
	pos := writeSampleRecord(data, 0, 1)
	pos = writeSampleRecord(data, pos, 2)
	pos = writeSampleRecord(data, pos, 3)

	addrs := parseAddrs(data, 0, uint64(pos))
	require.Len(t, addrs, 3)
	assert.Equal(t, []uint64{1, 2, 3}, addrs)
}

func TestParseAddrs_WrapsAroundRingBoundary(t *testing.T) {
	data := make([]byte, 32)
	// Lay a 16-byte record starting at offset 24, wrapping 8 bytes into
	// the front of the buffer.
	tmp := make([]byte, 16)
	writeSampleRecord(tmp, 0, 0xabc)
	copy(data[24:], tmp[:8])
	copy(data[:8], tmp[8:])

	addrs := parseAddrs(data, 24, 24+16)
	require.Len(t, addrs, 1)
	assert.EqualValues(t, 0xabc, addrs[0])
}

func TestParseAddrs_EmptyRangeReturnsNil(t *testing.T) {
	data := make([]byte, 64)
	assert.Nil(t, parseAddrs(data, 10, 10))
	assert.Nil(t, parseAddrs(data, 10, 5))
}

func TestReadWrapped_NoWrap(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	out := readWrapped(data, 1, 3)
	assert.Equal(t, []byte{2, 3, 4}, out)
}

func TestReadWrapped_Wraps(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	out := readWrapped(data, 4, 4)
	assert.Equal(t, []byte{5, 6, 1, 2}, out)
}
