package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"mukando/internal/models"
	"mukando/internal/paynow"
)

// CallbackDeduper tracks successfully processed webhook deliveries. The
// gateway redelivers callbacks until acknowledged, so identical deliveries
// are common; the reconciler is idempotent regardless, this just saves the
// work. Seen is a pure check; Mark happens only after the handler applied
// the delivery, so a rejected delivery (bad hash, store outage) stays
// eligible for retry. Check and mark are deliberately not atomic: two
// concurrent first deliveries both reach the reconciler, which tolerates it.
type CallbackDeduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type redisCallbackDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisCallbackDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+":"+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *redisCallbackDeduper) Mark(ctx context.Context, key string) error {
	return d.client.Set(ctx, d.prefix+":"+key, "1", d.ttl).Err()
}

type memoryCallbackDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryCallbackDeduper(ttl time.Duration) *memoryCallbackDeduper {
	now := time.Now()
	return &memoryCallbackDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
	}
}

func (d *memoryCallbackDeduper) Seen(_ context.Context, key string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.seen[key]
	return ok && exp.After(now), nil
}

func (d *memoryCallbackDeduper) Mark(_ context.Context, key string) error {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen[key] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for k, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, k)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}
	return nil
}

// NewCallbackDeduper builds a Redis deduper and falls back to in-memory on
// failure.
func NewCallbackDeduper(addr, pass string, db int, ttl time.Duration) (CallbackDeduper, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if addr == "" {
		return newMemoryCallbackDeduper(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryCallbackDeduper(ttl), err
	}

	return &redisCallbackDeduper{
		client: client,
		prefix: "paynow:callback",
		ttl:    ttl,
	}, nil
}

// CallbackApplied is the echo context key the callback handler sets to true
// once a delivery has been verified and reconciled. The dedup middleware
// marks a delivery as seen only when this flag is present.
const CallbackApplied = "callback_applied"

// CallbackDedup short-circuits repeated gateway deliveries of the same
// callback, keyed on reference plus carried hash. Deliveries without either
// field pass through and fail verification downstream. Only deliveries the
// handler actually applied are remembered; a redelivery of one that was
// rejected runs the full path again.
func CallbackDedup(deduper CallbackDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}

			req := c.Request()
			if req.Body == nil {
				return next(c)
			}

			rawBody, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(rawBody))
			if len(rawBody) == 0 {
				return next(c)
			}

			fields := paynow.Decode(string(rawBody))
			reference := fields["reference"]
			hash := fields["hash"]
			if reference == "" || hash == "" {
				return next(c)
			}

			key := reference + ":" + hash
			isDuplicate, err := deduper.Seen(req.Context(), key)
			if err != nil {
				return next(c)
			}
			if isDuplicate {
				// Already processed; the gateway only needs an ack.
				return c.JSON(http.StatusOK, models.CallbackResponse{Success: true})
			}

			if err := next(c); err != nil {
				return err
			}
			if applied, _ := c.Get(CallbackApplied).(bool); applied {
				// Best effort; an unmarked delivery just reruns the
				// idempotent path.
				_ = deduper.Mark(req.Context(), key)
			}
			return nil
		}
	}
}
