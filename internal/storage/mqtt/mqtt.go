// Package mqtt runs an embedded MQTT broker that publishes every state as a
// retained message and accepts writes from clients.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chrissnell/homewx/internal/storage"
	"github.com/chrissnell/homewx/internal/types"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"
)

// Setter writes a state on behalf of an MQTT client.
type Setter func(ctx context.Context, id string, val interface{}, ack bool) error

// Payload is the JSON body of a published state.
type Payload struct {
	Val        interface{} `json:"val"`
	Ack        bool        `json:"ack"`
	Ts         int64       `json:"ts"`
	LastChange int64       `json:"lc"`
}

// Storage is the MQTT storage engine.
type Storage struct {
	server *mqtt.Server
	prefix string
	logger *zap.SugaredLogger
}

var _ storage.StorageEngineInterface = (*Storage)(nil)

// New creates the broker. An empty listenAddr runs it without a TCP
// listener, reachable only in-process. When set is non-nil, clients can
// write states by publishing to <prefix>/set/<state path>.
func New(listenAddr, prefix string, set Setter, logger *zap.SugaredLogger) (*Storage, error) {
	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add MQTT auth hook: %w", err)
	}

	s := &Storage{
		server: server,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.Named("mqtt"),
	}

	if set != nil {
		hook := &SetHook{prefix: s.prefix + "/set/", set: set, logger: s.logger}
		if err := server.AddHook(hook, nil); err != nil {
			return nil, fmt.Errorf("failed to add MQTT set hook: %w", err)
		}
	}

	if listenAddr != "" {
		tcp := listeners.NewTCP(listeners.Config{
			ID:      "tcp",
			Address: listenAddr,
		})
		if err := server.AddListener(tcp); err != nil {
			return nil, fmt.Errorf("failed to add MQTT listener: %w", err)
		}
	}

	return s, nil
}

// Server exposes the broker, for inline subscriptions.
func (s *Storage) Server() *mqtt.Server {
	return s.server
}

// Topic maps a state id to its topic: dots become slashes below the prefix.
func (s *Storage) Topic(id string) string {
	return s.prefix + "/" + strings.ReplaceAll(id, ".", "/")
}

// StartStorageEngine starts the broker and publishes every change it
// receives until ctx is cancelled.
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.StateChange {
	s.logger.Info("starting MQTT broker")
	go func() {
		if err := s.server.Serve(); err != nil {
			s.logger.Errorw("MQTT server error", "error", err)
		}
	}()

	changes := make(chan types.StateChange, 10)
	wg.Add(2)
	go storage.ProcessChanges(ctx, wg, changes, s.Publish, "MQTT")
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := s.server.Close(); err != nil {
			s.logger.Errorw("failed to close MQTT server", "error", err)
		}
	}()
	return changes
}

// Publish sends the new value of c as a retained message.
func (s *Storage) Publish(c types.StateChange) error {
	body, err := json.Marshal(Payload{
		Val:        c.New.Val,
		Ack:        c.New.Ack,
		Ts:         c.New.Ts.UnixMilli(),
		LastChange: c.New.LastChange.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", c.ID, err)
	}
	return s.server.Publish(s.Topic(c.ID), body, true, 0)
}

// SetHook turns client publishes below <prefix>/set/ into state writes.
type SetHook struct {
	mqtt.HookBase
	prefix string
	set    Setter
	logger *zap.SugaredLogger
}

// ID returns the hook identifier
func (h *SetHook) ID() string {
	return "homewx-set-hook"
}

// Provides returns the hook methods this hook provides
func (h *SetHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mqtt.OnPublish}, []byte{b})
}

// OnPublish is called when a message is received from a client. The payload
// is either a JSON value or a Payload object; writes are unacknowledged
// commands unless the payload says otherwise.
func (h *SetHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	if !strings.HasPrefix(pk.TopicName, h.prefix) {
		return pk, nil
	}
	id := strings.ReplaceAll(strings.TrimPrefix(pk.TopicName, h.prefix), "/", ".")
	if id == "" {
		return pk, nil
	}

	val, ack, err := decodeSet(pk.Payload)
	if err != nil {
		h.logger.Warnw("ignoring invalid set payload", "topic", pk.TopicName, "error", err)
		return pk, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.set(ctx, id, val, ack); err != nil {
		h.logger.Errorw("failed to set state from MQTT", "id", id, "error", err)
	}
	return pk, nil
}

func decodeSet(payload []byte) (interface{}, bool, error) {
	var obj struct {
		Val *json.RawMessage `json:"val"`
		Ack bool             `json:"ack"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Val != nil {
		var v interface{}
		if err := json.Unmarshal(*obj.Val, &v); err != nil {
			return nil, false, err
		}
		return v, obj.Ack, nil
	}

	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		// bare words like ON are taken as strings
		return string(payload), false, nil
	}
	return v, false, nil
}
