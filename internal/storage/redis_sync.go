package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisChangesChannel = "ipcollector:storage:changes"
	redisOpTimeout      = 5 * time.Second
)

type changeMessage struct {
	Instance string          `json:"instance"`
	Key      string          `json:"key"`
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue"`
	Revision int64           `json:"revision,omitempty"`
}

// RedisSync fans local changes out to other instances and feeds theirs back
// into the store's listeners.
type RedisSync struct {
	client   *redis.Client
	store    *Store
	instance string
}

// EnableRedisSync attaches a publisher to store. Call Run to receive remote changes.
func EnableRedisSync(store *Store, client *redis.Client) *RedisSync {
	host, _ := os.Hostname()
	rs := &RedisSync{
		client:   client,
		store:    store,
		instance: fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano()),
	}
	store.setPublisher(rs)
	return rs
}

func (r *RedisSync) publish(change Change) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(changeMessage{
		Instance: r.instance,
		Key:      change.Key,
		OldValue: rawJSON(change.OldValue),
		NewValue: rawJSON(change.NewValue),
		Revision: change.Revision,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return r.client.Publish(ctx, redisChangesChannel, payload).Err()
}

// Run blocks until ctx is done, delivering changes published by other instances.
func (r *RedisSync) Run(ctx context.Context) error {
	if r.client == nil {
		return errors.New("storage: redis sync without client")
	}

	pubsub := r.client.Subscribe(ctx, redisChangesChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Error("Storage sync: subscription error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		r.handleMessage([]byte(msg.Payload))
	}
}

func (r *RedisSync) handleMessage(payload []byte) {
	var msg changeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Error("Storage sync: invalid payload", "error", err)
		return
	}
	if msg.Instance == r.instance {
		return
	}

	log.Debug("Storage sync: remote change", "key", msg.Key, "instance", msg.Instance)
	r.store.DeliverRemote(Change{
		Key:      msg.Key,
		OldValue: []byte(msg.OldValue),
		NewValue: []byte(msg.NewValue),
		Revision: msg.Revision,
	})
}

func rawJSON(value []byte) json.RawMessage {
	if len(value) == 0 {
		return nil
	}
	return json.RawMessage(value)
}
