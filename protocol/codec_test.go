package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentEnvelope(t *testing.T) {
	data, err := Marshal(MsgIntent, IntentPayload{RequestID: "r1", Kind: "send", Arg: "hello"})
	require.NoError(t, err)

	msgType, raw, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, MsgIntent, msgType)

	p, err := UnmarshalPayload[IntentPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, IntentPayload{RequestID: "r1", Kind: "send", Arg: "hello"}, p)
}

func TestUnmarshalRejectsMissingType(t *testing.T) {
	_, _, err := Unmarshal([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, _, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestEmptyPayloadIsZeroValue(t *testing.T) {
	data, err := Marshal(MsgShutdown, nil)
	require.NoError(t, err)

	msgType, raw, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, MsgShutdown, msgType)

	p, err := UnmarshalPayload[ShutdownPayload](raw)
	require.NoError(t, err)
	assert.Empty(t, p.Reason)
}
