package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/core"
)

func TestPCMBytesToWavBytes_Header(t *testing.T) {
	pcm := make([]byte, 3200)
	wav, err := PCMBytesToWavBytes(pcm, 1, 16000)
	require.NoError(t, err)

	require.Len(t, wav, wavHeaderSize+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))

	back, err := StripWAVHeaderIfPresent(wav)
	require.NoError(t, err)
	assert.Equal(t, pcm, back)
}

func TestPCMBytesToWavBytes_Rejects(t *testing.T) {
	_, err := PCMBytesToWavBytes(nil, 1, 16000)
	assert.Error(t, err)
	_, err = PCMBytesToWavBytes([]byte{1, 2, 3}, 1, 16000)
	assert.Error(t, err)
	_, err = PCMBytesToWavBytes([]byte{1, 2}, 2, 16000)
	assert.Error(t, err)
	_, err = PCMBytesToWavBytes([]byte{1, 2}, 1, 0)
	assert.Error(t, err)
}

func TestStripWAVHeader_PassThrough(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	out, err := StripWAVHeaderIfPresent(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestStripWAVHeader_StreamingHeader(t *testing.T) {
	wav, err := PCMBytesToWavBytes([]byte{1, 0, 2, 0}, 1, 8000)
	require.NoError(t, err)
	// recorders writing to a pipe leave the size fields at their maximum
	binary.LittleEndian.PutUint32(wav[40:44], 0x7fffffff)

	out, err := StripWAVHeaderIfPresent(wav)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0}, out)
}

func TestPackageRecording_PCM(t *testing.T) {
	chunks := []core.AudioChunk{
		{Data: []byte{1, 0, 2}, SampleRate: 16000, Channels: 1, Format: core.PCM},
		{Data: []byte{0, 3, 0}, SampleRate: 16000, Channels: 1, Format: core.PCM},
	}
	rec, err := PackageRecording(chunks)
	require.NoError(t, err)

	assert.Equal(t, "recording.wav", rec.Filename)
	assert.Equal(t, "audio/wav", rec.MimeType)
	pcm, err := StripWAVHeaderIfPresent(rec.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, pcm)
	assert.InDelta(t, 3.0/16000, rec.Duration, 1e-9)
}

func TestPackageRecording_ULaw(t *testing.T) {
	pcm := []byte{0x00, 0x10, 0x00, 0xf0, 0x34, 0x12, 0x00, 0x00}
	ulaw, err := PCMBytesToULaw(pcm)
	require.NoError(t, err)

	rec, err := PackageRecording([]core.AudioChunk{{Data: ulaw, SampleRate: 8000, Channels: 1, Format: core.ULAW}})
	require.NoError(t, err)
	assert.Equal(t, "recording.wav", rec.Filename)

	decoded, err := StripWAVHeaderIfPresent(rec.Data)
	require.NoError(t, err)
	assert.Equal(t, ULawBytesToPCM(ulaw), decoded)
	assert.Len(t, decoded, len(pcm))
}

func TestPackageRecording_Containers(t *testing.T) {
	rec, err := PackageRecording([]core.AudioChunk{{Data: []byte("OggS"), Format: core.OPUS}, {Data: []byte("..."), Format: core.OPUS}})
	require.NoError(t, err)
	assert.Equal(t, "recording.ogg", rec.Filename)
	assert.Equal(t, "audio/ogg", rec.MimeType)
	assert.Equal(t, []byte("OggS..."), rec.Data)

	rec, err = PackageRecording([]core.AudioChunk{{Data: []byte{0x1a, 0x45, 0xdf, 0xa3}, Format: core.WEBM}})
	require.NoError(t, err)
	assert.Equal(t, "recording.webm", rec.Filename)
	assert.Equal(t, "audio/webm", rec.MimeType)
}

func TestPackageRecording_Empty(t *testing.T) {
	_, err := PackageRecording(nil)
	assert.ErrorIs(t, err, ErrEmptyRecording)
	_, err = PackageRecording([]core.AudioChunk{{Format: core.PCM, SampleRate: 16000, Channels: 1}})
	assert.ErrorIs(t, err, ErrEmptyRecording)
}
