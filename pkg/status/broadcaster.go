package status

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

const channelPrefix = "scribe:status:"

// broadcastEnvelope is the Redis wire shape. The origin tag lets a
// process that both publishes and listens drop its own messages, since
// its transitions are already delivered to the local Publisher.
type broadcastEnvelope struct {
	Origin   string                 `json:"origin"`
	Snapshot meeting.StatusSnapshot `json:"snapshot"`
}

// Broadcaster mirrors pipeline status transitions across processes via
// Redis Pub/Sub. Local delivery never depends on it: every process
// publishes transitions to its own Publisher first and uses the
// broadcaster only to reach subscribers attached to other processes.
type Broadcaster struct {
	rdb    *redis.Client
	origin string
	logger logging.Logger
}

// NewBroadcaster creates a Redis status broadcaster.
func NewBroadcaster(rdb *redis.Client, logger logging.Logger) *Broadcaster {
	return &Broadcaster{
		rdb:    rdb,
		origin: uuid.New().String(),
		logger: logger.With(logging.F("component", "status_broadcaster")),
	}
}

// Publish sends one snapshot to the meeting's channel. Errors are
// logged, not returned: status fan-out must never fail the pipeline
// transition that produced it.
func (b *Broadcaster) Publish(ctx context.Context, snap meeting.StatusSnapshot) {
	payload, err := b.encode(snap)
	if err != nil {
		b.logger.Error("Failed to marshal status snapshot", logging.Err(err))
		return
	}
	if err := b.rdb.Publish(ctx, channelPrefix+snap.MeetingID, payload).Err(); err != nil {
		b.logger.Warn("Failed to publish status snapshot",
			logging.F("meeting_id", snap.MeetingID), logging.Err(err))
	}
}

// Listen subscribes to all meeting status channels and replays each
// foreign snapshot into the local publisher until the context is
// cancelled.
func (b *Broadcaster) Listen(ctx context.Context, local *Publisher) {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	b.logger.Info("Status broadcaster listening",
		logging.F("pattern", channelPrefix+"*"))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Status pubsub channel closed")
				return
			}
			if snap, ok := b.decode(msg.Channel, []byte(msg.Payload)); ok {
				local.Publish(snap)
			}
		}
	}
}

func (b *Broadcaster) encode(snap meeting.StatusSnapshot) ([]byte, error) {
	return json.Marshal(broadcastEnvelope{Origin: b.origin, Snapshot: snap})
}

// decode unwraps one pubsub payload. It reports false for malformed
// payloads and for snapshots this process published itself.
func (b *Broadcaster) decode(channel string, payload []byte) (meeting.StatusSnapshot, bool) {
	var env broadcastEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn("Dropping malformed status payload",
			logging.F("channel", channel), logging.Err(err))
		return meeting.StatusSnapshot{}, false
	}
	if env.Origin == b.origin {
		return meeting.StatusSnapshot{}, false
	}
	if env.Snapshot.MeetingID == "" {
		env.Snapshot.MeetingID = strings.TrimPrefix(channel, channelPrefix)
	}
	return env.Snapshot, true
}
