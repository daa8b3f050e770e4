package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T, rdb *redis.Client) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(rdb, logger.NewNopLogger())
	go func() { _ = h.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func attach(t *testing.T, h *Hub, adminID int64) *Client {
	t.Helper()
	c := &Client{Hub: h, AdminID: adminID, Send: make(chan []byte, 16)}
	h.register <- c
	require.Eventually(t, func() bool { return h.Connected() > 0 }, time.Second, 5*time.Millisecond)
	return c
}

func decode(t *testing.T, raw []byte) events.JobEvent {
	t.Helper()
	var msg struct {
		Type string          `json:"type"`
		Data events.JobEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "job", msg.Type)
	return msg.Data
}

func TestHubDeliversJobEvents(t *testing.T) {
	h := runHub(t, nil)
	c := attach(t, h, 1)

	h.HandleJobEvent(context.Background(), events.JobEvent{
		Type:  events.JobFinished,
		JobID: "job-1",
		Kind:  entity.KindImageGen,
		State: entity.JobCompleted,
	})

	select {
	case raw := <-c.Send:
		e := decode(t, raw)
		assert.Equal(t, "job-1", e.JobID)
		assert.Equal(t, entity.JobCompleted, e.State)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubDropsSlowConsole(t *testing.T) {
	h := runHub(t, nil)
	c := &Client{Hub: h, AdminID: 1, Send: make(chan []byte)}
	h.register <- c
	require.Eventually(t, func() bool { return h.Connected() == 1 }, time.Second, 5*time.Millisecond)

	h.HandleJobEvent(context.Background(), events.JobEvent{JobID: "job-1"})

	assert.Eventually(t, func() bool { return h.Connected() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubRelaysEventsFromOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := runHub(t, rdb)
	c := attach(t, h, 7)

	own, _ := json.Marshal(clusterMessage{Origin: h.instance, Message: json.RawMessage(`{"type":"job","data":{"job_id":"mine"}}`)})
	foreign, _ := json.Marshal(clusterMessage{Origin: "other", Message: json.RawMessage(`{"type":"job","data":{"job_id":"theirs"}}`)})

	// The subscription starts asynchronously; publish until it is live.
	var got []byte
	require.Eventually(t, func() bool {
		rdb.Publish(context.Background(), ClusterChannel, own)
		rdb.Publish(context.Background(), ClusterChannel, foreign)
		select {
		case got = <-c.Send:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "theirs", decode(t, got).JobID)
}
