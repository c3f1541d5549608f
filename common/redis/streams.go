package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// PayloadField is the stream entry field that carries the message body
const PayloadField = "data"

// StreamMessage a single Redis Streams entry
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// Payload returns the raw message body, or nil when the entry has none
func (m StreamMessage) Payload() []byte {
	switch v := m.Values[PayloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}

// ReadArgs XREADGROUP parameters
type ReadArgs struct {
	Stream   string
	Group    string
	Consumer string
	// Start is ">" for new entries or "0" for entries already delivered to
	// this consumer but not yet acknowledged.
	Start string
	Count int64
	Block time.Duration
}

// ClaimArgs selects pending entries to take over
type ClaimArgs struct {
	Stream   string
	Group    string
	Consumer string
	// MinIdle only entries not delivered for at least this long are taken
	MinIdle time.Duration
	Count   int64
}

// PublishToStream appends an entry with XADD and returns its ID
func PublishToStream(ctx context.Context, client *redis.Client, stream string, values map[string]interface{}) (string, error) {
	streamValues := make(map[string]interface{}, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			streamValues[k] = val
		case []byte:
			streamValues[k] = string(val)
		case int:
			streamValues[k] = strconv.Itoa(val)
		case int64:
			streamValues[k] = strconv.FormatInt(val, 10)
		case float64:
			streamValues[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			streamValues[k] = strconv.FormatBool(val)
		default:
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("failed to encode stream field %s: %w", k, err)
			}
			streamValues[k] = string(jsonBytes)
		}
	}

	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: streamValues,
	}).Result()
}

// PublishPayload appends a raw body under PayloadField
func PublishPayload(ctx context.Context, client *redis.Client, stream string, payload []byte) (string, error) {
	return PublishToStream(ctx, client, stream, map[string]interface{}{
		PayloadField: payload,
		"timestamp":  time.Now().Unix(),
	})
}

// ReadFromStream reads a batch for a consumer group member.
// A read that times out with nothing to deliver returns an empty slice.
func ReadFromStream(ctx context.Context, client *redis.Client, args ReadArgs) ([]StreamMessage, error) {
	start := args.Start
	if start == "" {
		start = ">"
	}

	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    args.Group,
		Consumer: args.Consumer,
		Streams:  []string{args.Stream, start},
		Count:    args.Count,
		Block:    args.Block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, StreamMessage{
				Stream: stream.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}

	return messages, nil
}

// ClaimIdle moves up to Count pending entries idle for at least MinIdle to
// Consumer, whichever consumer held them before, and returns them. Claiming
// resets an entry's idle time. Uses XPENDING IDLE (Redis 6.2+) and XCLAIM;
// go-redis v8 cannot parse the Redis 7 XAUTOCLAIM reply.
func ClaimIdle(ctx context.Context, client *redis.Client, args ClaimArgs) ([]StreamMessage, error) {
	pending, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: args.Stream,
		Group:  args.Group,
		Idle:   args.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  args.Count,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []StreamMessage{}, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   args.Stream,
		Group:    args.Group,
		Consumer: args.Consumer,
		MinIdle:  args.MinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]StreamMessage, 0, len(claimed))
	for _, msg := range claimed {
		messages = append(messages, StreamMessage{
			Stream: args.Stream,
			ID:     msg.ID,
			Values: msg.Values,
		})
	}
	return messages, nil
}

// AckStream acknowledges entries for a consumer group
func AckStream(ctx context.Context, client *redis.Client, stream, group string, ids ...string) error {
	return client.XAck(ctx, stream, group, ids...).Err()
}

// CreateConsumerGroup creates the group (and the stream, if missing).
// An existing group is not an error.
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream string, groupName string) error {
	err := client.XGroupCreateMkStream(ctx, stream, groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}
