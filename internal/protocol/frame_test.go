package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestChecksumFoldsLengthThenPayload(t *testing.T) {
	// 0x00 ^ 0x04 ^ 0x45 ^ 0x73 ^ 0xAF ^ 0x20
	assert.Equal(t, byte(0xBD), Checksum(4, []byte{0x45, 0x73, 0xAF, 0x20}))
	assert.Equal(t, Checksum(4, []byte{0x45, 0x73}, []byte{0xAF, 0x20}),
		Checksum(4, []byte{0x45, 0x73, 0xAF, 0x20}))
}

func TestEncodeListTracks(t *testing.T) {
	raw, err := Encode(CmdListTracks, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x01, 0x78, 0x79}, raw)
}

func TestEncodeRejectsOversizedParameter(t *testing.T) {
	_, err := Encode(CmdDownloadTracks, make([]byte, MaxParameter+1))
	require.ErrorIs(t, err, ErrFrameLength)
}

func TestDecodeReply(t *testing.T) {
	raw := []byte{0x81, 0x00, 0x04, 0x45, 0x73, 0xAF, 0x20, 0xBD}
	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x81), f.Command)
	assert.Equal(t, uint16(4), f.PayloadLength)
	assert.Equal(t, []byte{0x45, 0x73, 0xAF, 0x20}, f.Parameter)
	assert.Equal(t, byte(0xBD), f.Checksum)

	raw[3] = 0
	assert.Equal(t, byte(0x45), f.Parameter[0], "frame must not alias the read buffer")
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	raw, err := EncodeReply(CmdNextSegment, []byte{1, 2, 3})
	require.NoError(t, err)
	raw[2]++ // declare one byte more than present

	_, err = Decode(raw)
	require.ErrorIs(t, err, ErrFrameLength)

	var lerr *LengthError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 4, lerr.Declared)
	assert.Equal(t, 3, lerr.Actual)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	raw, err := EncodeReply(CmdNextSegment, []byte{1, 2, 3})
	require.NoError(t, err)
	raw[len(raw)-1]++

	_, err = Decode(raw)
	require.ErrorIs(t, err, ErrFrameChecksum)
	assert.NotErrorIs(t, err, ErrFrameLength)
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	_, err := Decode([]byte{0x81, 0x00})
	require.ErrorIs(t, err, ErrFrameLength)
}

func TestReplyRemaining(t *testing.T) {
	assert.Equal(t, 59, ReplyRemaining([]byte{0x80, 0x00, 0x3A}))
	assert.Equal(t, 1, ReplyRemaining([]byte{0x8A, 0x00, 0x00}))
	assert.Equal(t, 0, ReplyRemaining([]byte{0x8A}))
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte{0x02, 0x00, 0x01, 0x78, 0x79})
	require.NoError(t, err)
	assert.Equal(t, CmdListTracks, req.Command)
	assert.Empty(t, req.Parameter)

	_, err = DecodeRequest([]byte{0x03, 0x00, 0x01, 0x78, 0x79})
	require.ErrorIs(t, err, ErrWrongMessageType)

	_, err = DecodeRequest([]byte{0x02, 0x00, 0x01, 0x78, 0x78})
	require.ErrorIs(t, err, ErrFrameChecksum)
}

func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cmd := rapid.Byte().Draw(t, "cmd")
		param := rapid.SliceOfN(rapid.Byte(), 0, 600).Draw(t, "param")

		reply, err := EncodeReply(cmd, param)
		if err != nil {
			t.Fatal(err)
		}
		f, err := Decode(reply)
		if err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		if f.Command != cmd || string(f.Parameter) != string(param) {
			t.Fatalf("reply round trip mismatch: %v", f)
		}

		request, err := Encode(cmd, param)
		if err != nil {
			t.Fatal(err)
		}
		req, err := DecodeRequest(request)
		if err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Command != cmd || string(req.Parameter) != string(param) {
			t.Fatalf("request round trip mismatch")
		}
	})
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x81, 0x00, 0x04, 0x45, 0x73, 0xAF, 0x20, 0xBD})
	f.Add([]byte{0x8A, 0x00, 0x00, 0x00})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, raw []byte) {
		fr, err := Decode(raw)
		if err != nil {
			return
		}
		again, err := EncodeReply(fr.Command, fr.Parameter)
		if err != nil {
			t.Fatal(err)
		}
		if string(again) != string(raw) {
			t.Fatalf("valid frame did not re-encode identically")
		}
	})
}
