package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// TopicHandler receives the decoded value of one record:
// the JSON-decoded payload, or the raw string when the payload is not JSON.
type TopicHandler func(ctx context.Context, value any) error

// Handle adapts a typed handler to TopicHandler.
// Inside Dispatch T is decoded straight from the record bytes, so 64-bit
// integers keep full precision; a payload that cannot become a T fails
// with ErrDecode.
//
//	consumer.RegisterHandler("auth.public.sessions",
//	    kafka.Handle(func(ctx context.Context, ev kafka.DatabaseEvent[Session]) error {
//	        return store.Apply(ctx, ev)
//	    }))
func Handle[T any](fn func(ctx context.Context, value T) error) TopicHandler {
	return func(ctx context.Context, value any) error {
		if v, ok := value.(T); ok {
			return fn(ctx, v)
		}

		var typed T
		if msg, ok := MessageFromContext(ctx); ok && len(msg.Value) > 0 {
			if err := json.Unmarshal(msg.Value, &typed); err != nil {
				return ErrDecode.Wrap(err)
			}
			return fn(ctx, typed)
		}

		data, err := json.Marshal(value)
		if err != nil {
			return ErrDecode.Wrap(err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&typed); err != nil {
			return ErrDecode.Wrap(err)
		}
		return fn(ctx, typed)
	}
}

// RegisterTypedHandler registers fn for topic on c through Handle
func RegisterTypedHandler[T any](c *Consumer, topic string, fn func(ctx context.Context, value T) error) {
	c.RegisterHandler(topic, Handle(fn))
}

// handlerRegistry maps topic to handler; the last registration for a topic wins
type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]TopicHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[string]TopicHandler)}
}

func (r *handlerRegistry) set(topic string, h TopicHandler) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced = r.handlers[topic]
	r.handlers[topic] = h
	return replaced
}

func (r *handlerRegistry) remove(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[topic]; !ok {
		return false
	}
	delete(r.handlers, topic)
	return true
}

func (r *handlerRegistry) get(topic string) (TopicHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[topic]
	return h, ok
}

func (r *handlerRegistry) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (r *handlerRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]TopicHandler)
}
