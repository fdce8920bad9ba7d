package cache

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
// An absent generation key counts as zero.
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if gen == false then gen = "0" end
if gen ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`)

func generationKey(key string) string {
	return key + ":gen"
}

// Redis is a Store shared by every process connected to the same Redis.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return v, err
}

// Set stores value without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// Delete removes key and bumps its generation in one MULTI block.
func (r *Redis) Delete(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Incr(ctx, generationKey(key))
		return nil
	})
	return err
}

func (r *Redis) Generation(ctx context.Context, key string) (uint64, error) {
	gen, err := r.client.Get(ctx, generationKey(key)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *Redis) SetIfGeneration(ctx context.Context, key string, gen uint64, value []byte) (bool, error) {
	keys := []string{key, generationKey(key)}
	n, err := setIfGeneration.Run(ctx, r.client, keys, strconv.FormatUint(gen, 10), value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
