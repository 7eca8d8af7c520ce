package wsproto_test

import (
	"testing"

	"github.com/duplexsock/duplexsock/wsproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 125, 126, 65535, 65536, 1 << 20}
	for _, n := range sizes {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}
		encoded := wsproto.EncodeFrame(wsproto.OpBinary, payload)
		frames, consumed, residual, err := wsproto.DecodeFrames(encoded)
		require.NoError(t, err)
		require.Len(t, frames, 1)
		assert.Equal(t, len(encoded), consumed)
		assert.Empty(t, residual)
		assert.True(t, frames[0].Fin)
		assert.Equal(t, wsproto.OpBinary, frames[0].Opcode)
		assert.Equal(t, payload, frames[0].Payload)
	}
}

func TestDecodeFramesMultipleInOneRead(t *testing.T) {
	a := wsproto.EncodeFrame(wsproto.OpText, []byte("one"))
	b := wsproto.EncodeFrame(wsproto.OpText, []byte("two"))
	buf := append(append([]byte{}, a...), b...)

	frames, consumed, residual, err := wsproto.DecodeFrames(buf)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "one", string(frames[0].Payload))
	assert.Equal(t, "two", string(frames[1].Payload))
	assert.Equal(t, len(buf), consumed)
	assert.Empty(t, residual)
}

func TestDecodeFramesSplitAcrossReads(t *testing.T) {
	full := wsproto.EncodeFrame(wsproto.OpText, []byte("hello world"))
	split := len(full) / 2

	frames, consumed, residual, err := wsproto.DecodeFrames(full[:split])
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Zero(t, consumed)
	assert.Equal(t, full[:split], residual)

	rest := append(append([]byte{}, residual...), full[split:]...)
	frames, consumed, residual, err = wsproto.DecodeFrames(rest)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "hello world", string(frames[0].Payload))
	assert.Equal(t, len(rest), consumed)
	assert.Empty(t, residual)
}

func TestDecodeFramesRejectsOversized(t *testing.T) {
	hdr := []byte{0x82, 127, 0, 0, 0, 0, 1, 0, 0, 1} // declares 16MiB+1
	_, _, _, err := wsproto.DecodeFrames(hdr)
	assert.ErrorIs(t, err, wsproto.ErrOversizedFrame)
}

func TestDecodeFramesUnknownOpcodeAborts(t *testing.T) {
	// opcode 0x3 is undefined.
	raw := []byte{0x83, 0x00}
	frames, consumed, _, err := wsproto.DecodeFrames(raw)
	assert.ErrorIs(t, err, wsproto.ErrUnknownOpcode)
	assert.Empty(t, frames)
	assert.Equal(t, len(raw), consumed)
}

func TestMaskedClientFrameDecodes(t *testing.T) {
	// Hand-build a masked client->server frame per RFC 6455 example.
	payload := []byte("Hello")
	maskKey := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ maskKey[i%4]
	}
	raw := append([]byte{0x81, 0x85}, maskKey[:]...)
	raw = append(raw, masked...)

	frames, consumed, residual, err := wsproto.DecodeFrames(raw)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0].Payload)
	assert.Equal(t, len(raw), consumed)
	assert.Empty(t, residual)
}
