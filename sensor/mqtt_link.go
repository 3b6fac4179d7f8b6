package sensor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/elijahnyp/parking_controller/state"
	"github.com/elijahnyp/parking_controller/util"
)

type reply struct {
	err   error
	addr  uint8
	value byte
}

// MQTTLink runs sensor transactions over a broker. Only one transaction is on
// the bus at a time; a reply is matched to the address being waited on and
// anything else is dropped as stale.
type MQTTLink struct {
	client   func() MQTT.Client
	replies  chan reply
	topics   Topics
	timeout  time.Duration
	mu       sync.Mutex
	awaiting atomic.Int32 // address+1 of the outstanding query, 0 when idle
}

var _ state.SensorLink = (*MQTTLink)(nil)

// NewMQTTLink resolves the client through the given func on every call so
// reconnects are picked up. timeout bounds both the publish and the reply.
func NewMQTTLink(client func() MQTT.Client, topics Topics, timeout time.Duration) *MQTTLink {
	return &MQTTLink{
		client:  client,
		topics:  topics,
		timeout: timeout,
		replies: make(chan reply, 1),
	}
}

// HandleReply is the MQTT handler for the reply filter.
func (l *MQTTLink) HandleReply(client MQTT.Client, message MQTT.Message) {
	addr, err := l.topics.Address(message.Topic())
	if err != nil {
		util.Logger.Warn().Msgf("sensor reply: %v", err)
		return
	}
	if l.awaiting.Load() != int32(addr)+1 {
		util.Logger.Debug().Msgf("dropping stale reply from sensor 0x%02X", addr)
		return
	}
	r := reply{addr: addr}
	if payload := message.Payload(); len(payload) != 1 {
		r.err = fmt.Errorf("%w: %d bytes from 0x%02X", ErrBadReply, len(payload), addr)
	} else {
		r.value = payload[0]
	}
	select {
	case l.replies <- r:
	default:
		util.Logger.Debug().Msgf("duplicate reply from sensor 0x%02X", addr)
	}
}

func (l *MQTTLink) transact(ctx context.Context, addr uint8, frame []byte, wantReply bool) (byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	client := l.client()
	if client == nil || !client.IsConnectionOpen() {
		return 0, ErrNoClient
	}
	if wantReply {
		select {
		case <-l.replies:
		default:
		}
		l.awaiting.Store(int32(addr) + 1)
		defer l.awaiting.Store(0)
	}

	token := client.Publish(l.topics.Command(addr), 0, false, frame)
	if !token.WaitTimeout(l.timeout) {
		return 0, fmt.Errorf("%w: publish to 0x%02X", ErrTimeout, addr)
	}
	if err := token.Error(); err != nil {
		return 0, fmt.Errorf("publish to 0x%02X: %w", addr, err)
	}
	if !wantReply {
		return 0, nil
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	for {
		select {
		case r := <-l.replies:
			// a handler preempted during an earlier transaction can still land here
			if r.addr != addr {
				util.Logger.Debug().Msgf("dropping stale reply from sensor 0x%02X while waiting on 0x%02X", r.addr, addr)
				continue
			}
			return r.value, r.err
		case <-timer.C:
			return 0, fmt.Errorf("%w: no reply from 0x%02X", ErrTimeout, addr)
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (l *MQTTLink) QueryPresence(ctx context.Context, addr uint8) (bool, error) {
	v, err := l.transact(ctx, addr, []byte{CmdPresence}, true)
	return v != 0, err
}

func (l *MQTTLink) QueryBlinkState(ctx context.Context, addr uint8) (bool, error) {
	v, err := l.transact(ctx, addr, []byte{CmdBlinkStatus}, true)
	return v != 0, err
}

func (l *MQTTLink) SetAttention(ctx context.Context, addr uint8, on bool) error {
	_, err := l.transact(ctx, addr, ledFrame(on), false)
	return err
}

// NewChangeHandler turns change notifications into pending flags. It does
// nothing else: no bus traffic, no display writes.
func NewChangeHandler(topics Topics, slotByAddr map[uint8]int, flags *state.EventFlags) MQTT.MessageHandler {
	return func(client MQTT.Client, message MQTT.Message) {
		addr, err := topics.Address(message.Topic())
		if err != nil {
			return
		}
		if id, ok := slotByAddr[addr]; ok {
			flags.SignalChange(id)
		}
	}
}
