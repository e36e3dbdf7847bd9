package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

func TestBroadcaster_DecodeSkipsOwnMessages(t *testing.T) {
	b := NewBroadcaster(nil, logging.NewNopLogger())
	snap := meeting.StatusSnapshot{MeetingID: "mt-1", State: meeting.StateQueued}

	payload, err := b.encode(snap)
	require.NoError(t, err)

	// A transition this process published is already on its local
	// Publisher; replaying it would deliver it twice.
	_, ok := b.decode(channelPrefix+"mt-1", payload)
	assert.False(t, ok)

	other := NewBroadcaster(nil, logging.NewNopLogger())
	got, ok := other.decode(channelPrefix+"mt-1", payload)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestBroadcaster_DecodeDropsMalformedPayload(t *testing.T) {
	b := NewBroadcaster(nil, logging.NewNopLogger())

	_, ok := b.decode(channelPrefix+"mt-1", []byte("{not json"))
	assert.False(t, ok)
}

func TestBroadcaster_DecodeFillsMeetingIDFromChannel(t *testing.T) {
	sender := NewBroadcaster(nil, logging.NewNopLogger())
	payload, err := sender.encode(meeting.StatusSnapshot{State: meeting.StateProcessing})
	require.NoError(t, err)

	receiver := NewBroadcaster(nil, logging.NewNopLogger())
	got, ok := receiver.decode(channelPrefix+"mt-9", payload)
	require.True(t, ok)
	assert.Equal(t, "mt-9", got.MeetingID)
}
