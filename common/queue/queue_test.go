package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	body, err := Encode(ActorRunStart, RunStartArgs{RunID: "r1"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, ActorRunStart, env.Actor)
	assert.NotZero(t, env.EnqueuedAt)

	var args RunStartArgs
	require.NoError(t, env.DecodeArgs(&args))
	assert.Equal(t, "r1", args.RunID)
}

func TestPeekActor(t *testing.T) {
	body, err := Encode("ingest.url", NodeTaskArgs{RunID: "r1", NodeID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "ingest.url", PeekActor(body))

	assert.Equal(t, "", PeekActor([]byte("not json")))
	assert.Equal(t, "", PeekActor([]byte(`{"args":{}}`)))
}

func TestDecodeArgsMismatch(t *testing.T) {
	env := Envelope{Actor: "x", Args: json.RawMessage(`"scalar"`)}
	var args NodeTaskArgs
	assert.Error(t, env.DecodeArgs(&args))
}

func TestDeliveryFinal(t *testing.T) {
	assert.False(t, Delivery{Attempts: 1, MaxAttempts: 3}.Final())
	assert.False(t, Delivery{Attempts: 2, MaxAttempts: 3}.Final())
	assert.True(t, Delivery{Attempts: 3, MaxAttempts: 3}.Final())
	assert.True(t, Delivery{Attempts: 1, MaxAttempts: 1}.Final())
}
