package queue

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/zerodha/logf"
)

// SubscribeTicketEvents calls fn for every ticket event until ctx is
// cancelled. The subscription is ready when it returns.
func SubscribeTicketEvents(ctx context.Context, rdb *redis.Client, log logf.Logger, fn func(*TicketEvent)) error {
	sub := rdb.Subscribe(ctx, EventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event TicketEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Error("Failed to decode ticket event", "error", err)
					continue
				}
				fn(&event)
			}
		}
	}()
	return nil
}
