package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/homewx/internal/types"
	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTopic(t *testing.T) {
	s, err := New("", "homewx/", nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, "homewx/mobilealerts/08A1/rst", s.Topic("mobilealerts.08A1.rst"))
}

func TestPublishRetained(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()

	s, err := New("", "homewx", nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	changes := s.StartStorageEngine(ctx, wg)

	got := make(chan packets.Packet, 1)
	err = s.Server().Subscribe("homewx/mobilealerts/+/rb", 1, func(cl *mqttserver.Client, sub packets.Subscription, pk packets.Packet) {
		got <- pk
	})
	require.NoError(t, err)

	ts := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	changes <- types.StateChange{
		ID:  "mobilealerts.08A1.rb",
		New: types.State{ID: "mobilealerts.08A1.rb", Val: true, Ack: true, Ts: ts, LastChange: ts},
	}

	select {
	case pk := <-got:
		assert.Equal(t, "homewx/mobilealerts/08A1/rb", pk.TopicName)
		var p Payload
		require.NoError(t, json.Unmarshal(pk.Payload, &p))
		assert.Equal(t, true, p.Val)
		assert.True(t, p.Ack)
		assert.Equal(t, ts.UnixMilli(), p.Ts)
	case <-time.After(5 * time.Second):
		t.Fatal("no message published")
	}
}

func TestSetHook(t *testing.T) {
	type write struct {
		id  string
		val interface{}
		ack bool
	}
	var writes []write
	hook := &SetHook{
		prefix: "homewx/set/",
		logger: zap.NewNop().Sugar(),
		set: func(_ context.Context, id string, val interface{}, ack bool) error {
			writes = append(writes, write{id, val, ack})
			return nil
		},
	}

	tests := []struct {
		topic   string
		payload string
		want    *write
	}{
		{topic: "homewx/set/server/powerLed", payload: `0`, want: &write{"server.powerLed", 0.0, false}},
		{topic: "homewx/set/server/powerLed", payload: `{"val":1,"ack":true}`, want: &write{"server.powerLed", 1.0, true}},
		{topic: "homewx/set/var/note", payload: `ON`, want: &write{"var.note", "ON", false}},
		{topic: "homewx/mobilealerts/08A1/rb", payload: `true`},
		{topic: "homewx/set/", payload: `1`},
	}

	for _, tt := range tests {
		writes = nil
		_, err := hook.OnPublish(nil, packets.Packet{TopicName: tt.topic, Payload: []byte(tt.payload)})
		require.NoError(t, err)
		if tt.want == nil {
			assert.Empty(t, writes, tt.topic)
			continue
		}
		require.Len(t, writes, 1, tt.topic)
		assert.Equal(t, *tt.want, writes[0])
	}
}
