package server

import (
	"encoding/json"
	"sync"

	"github.com/playperu/fieldquest/internal/session"
)

type sseMessage struct {
	event string
	data  []byte
}

// Broker is an in-process pub/sub for session events, keyed by device.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan sseMessage]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan sseMessage]struct{}),
	}
}

// Subscribe returns a channel that receives events for the given device.
func (b *Broker) Subscribe(device string) chan sseMessage {
	ch := make(chan sseMessage, 16)
	b.mu.Lock()
	if b.subs[device] == nil {
		b.subs[device] = make(map[chan sseMessage]struct{})
	}
	b.subs[device][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the device's subscribers.
func (b *Broker) Unsubscribe(device string, ch chan sseMessage) {
	b.mu.Lock()
	delete(b.subs[device], ch)
	if len(b.subs[device]) == 0 {
		delete(b.subs, device)
	}
	b.mu.Unlock()
}

// Publish sends ev to all subscribers of device. It never blocks.
func (b *Broker) Publish(device string, ev session.Event) {
	data, _ := json.Marshal(ev)
	msg := sseMessage{event: ev.Type, data: data}
	b.mu.RLock()
	for ch := range b.subs[device] {
		select {
		case ch <- msg:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}

func (b *Broker) subscribers(device string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[device])
}
