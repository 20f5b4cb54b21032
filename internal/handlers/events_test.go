// internal/handlers/events_test.go
package handlers

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpayne5/skatevs/internal/ratelimit"
)

func TestEventClassMapping(t *testing.T) {
	cases := map[string]string{
		EvGameTrick:         ratelimit.ClassTrickSubmit,
		EvGameVote:          ratelimit.ClassVote,
		EvBattleVote:        ratelimit.ClassVote,
		EvRoomJoin:          ratelimit.ClassRoom,
		EvRoomLeave:         ratelimit.ClassRoom,
		EvGameCreate:        ratelimit.ClassSession,
		EvGameJoin:          ratelimit.ClassSession,
		EvGamePass:          ratelimit.ClassSession,
		EvGameForfeit:       ratelimit.ClassSession,
		EvGameReconnect:     ratelimit.ClassSession,
		EvBattleCreate:      ratelimit.ClassSession,
		EvBattleJoin:        ratelimit.ClassSession,
		EvBattleStartVoting: ratelimit.ClassSession,
		EvBattleReady:       ratelimit.ClassSession,
		EvPing:              ratelimit.ClassPing,
		EvPong:              ratelimit.ClassPing,
	}
	for eventType, want := range cases {
		class, ok := eventClass(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, want, class, eventType)
	}
}

func TestEventClassRejectsUnknown(t *testing.T) {
	_, ok := eventClass("game:cheat")
	assert.False(t, ok)
	_, ok = eventClass("")
	assert.False(t, ok)
}

func TestDecodeTrickRequest(t *testing.T) {
	id := uuid.New()
	raw := json.RawMessage(`{"gameId":"` + id.String() + `","trickName":"kickflip","clipRef":"clips/a.mp4","setTrick":true,"idempotencyKey":"k1"}`)

	var req gameTrickReq
	require.NoError(t, decode(raw, &req))
	assert.Equal(t, id, req.GameID)
	assert.Equal(t, "clips/a.mp4", req.ClipKey)
	assert.True(t, req.SetTrick)
}

func TestDecodeTrickRequestRejections(t *testing.T) {
	id := uuid.New().String()
	cases := map[string]string{
		"missing payload":     ``,
		"malformed json":      `{"gameId":`,
		"nil game id":         `{"trickName":"x","clipRef":"c","setTrick":true,"idempotencyKey":"k"}`,
		"missing clip":        `{"gameId":"` + id + `","trickName":"x","setTrick":true,"idempotencyKey":"k"}`,
		"set without name":    `{"gameId":"` + id + `","clipRef":"c","setTrick":true,"idempotencyKey":"k"}`,
		"missing idempotency": `{"gameId":"` + id + `","trickName":"x","clipRef":"c","setTrick":true}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var req gameTrickReq
			assert.Error(t, decode(json.RawMessage(raw), &req))
		})
	}
}

func TestMatchAttemptNeedsNoTrickName(t *testing.T) {
	raw := json.RawMessage(`{"gameId":"` + uuid.New().String() + `","clipRef":"c","idempotencyKey":"k"}`)
	var req gameTrickReq
	assert.NoError(t, decode(raw, &req))
}

func TestDecodeVoteRequest(t *testing.T) {
	good := `{"gameId":"` + uuid.New().String() + `","moveId":"` + uuid.New().String() + `","vote":"bailed","idempotencyKey":"k"}`
	var req gameVoteReq
	require.NoError(t, decode(json.RawMessage(good), &req))

	bad := `{"gameId":"` + uuid.New().String() + `","moveId":"` + uuid.New().String() + `","vote":"maybe","idempotencyKey":"k"}`
	var req2 gameVoteReq
	assert.Error(t, decode(json.RawMessage(bad), &req2))
}

func TestDecodeBattleCreateRequest(t *testing.T) {
	var req battleCreateReq
	require.NoError(t, decode(json.RawMessage(`{"matchmaking":"open"}`), &req))

	var req2 battleCreateReq
	assert.Error(t, decode(json.RawMessage(`{"matchmaking":"ranked"}`), &req2))

	var req3 battleCreateReq
	assert.Error(t, decode(json.RawMessage(`{"matchmaking":"open","rounds":21}`), &req3))
}

func TestDecodeBattleVoteRequest(t *testing.T) {
	id := uuid.New().String()
	for _, vote := range []string{"clean", "sketch", "redo"} {
		var req battleVoteReq
		raw := `{"battleId":"` + id + `","vote":"` + vote + `","idempotencyKey":"k"}`
		assert.NoError(t, decode(json.RawMessage(raw), &req), vote)
	}

	var req battleVoteReq
	raw := `{"battleId":"` + id + `","vote":"fire","idempotencyKey":"k"}`
	assert.Error(t, decode(json.RawMessage(raw), &req))
}

func TestDecodeRoomRequest(t *testing.T) {
	id := uuid.New().String()
	var req roomReq
	require.NoError(t, decode(json.RawMessage(`{"type":"game","id":"`+id+`"}`), &req))

	var req2 roomReq
	assert.Error(t, decode(json.RawMessage(`{"type":"lobby","id":"`+id+`"}`), &req2))

	var req3 roomReq
	assert.Error(t, decode(json.RawMessage(`{"type":"game","id":"not-a-uuid"}`), &req3))
}

func TestDecodePongRequest(t *testing.T) {
	var req pongReq
	require.NoError(t, decode(json.RawMessage(`{"sentAt":1700000000000}`), &req))

	var req2 pongReq
	assert.Error(t, decode(json.RawMessage(`{"sentAt":0}`), &req2))
}
