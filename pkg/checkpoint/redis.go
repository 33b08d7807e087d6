package checkpoint

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
)

const defaultRedisPort = 6379

// redisBackend stores every key as a field of one hash named after the store.
type redisBackend struct {
	pool *redis.Pool
	hash string
}

func dialRedis(ctx context.Context, cfg Settings) (Backend, error) {
	port := cfg.Port
	if port == 0 {
		port = defaultRedisPort
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	opts := []redis.DialOption{redis.DialConnectTimeout(5 * time.Second)}
	if cfg.Password != "" {
		opts = append(opts, redis.DialPassword(cfg.Password))
	}

	pool := &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr, opts...)
		},
	}

	b := &redisBackend{pool: pool, hash: cfg.Name}
	if err := b.ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (r *redisBackend) ping(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	return err
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("HGET", r.hash, key))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("HSET", r.hash, key, value)
	return err
}

func (r *redisBackend) Close() error {
	return r.pool.Close()
}
