// Package redis connects to Redis and provides a small namespaced key-value
// Storage on top of github.com/redis/go-redis/v9.
//
// Connect retries according to Config, which is populated from environment
// variables via github.com/caarlos0/env:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	store := redis.NewStorage(client, cfg)
//	_ = store.Set(ctx, "tenant:acme", payload, time.Minute)
//
// Storage.SetNX and Storage.Update give write-if-absent and WATCH-guarded
// read-modify-write on a single key.
//
// Channel wraps one pub/sub channel for fire-and-forget notifications between
// instances:
//
//	ch := redis.NewChannel(client, cfg, "route-evictions")
//	go ch.Listen(ctx, func(ctx context.Context, code string) { ... })
//	_ = ch.Publish(ctx, "acme")
//
// Healthcheck returns a readiness check.
//
// Errors are sentinels joined with the underlying go-redis error via errors.Join.
package redis
