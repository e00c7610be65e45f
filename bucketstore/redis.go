package bucketstore

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis shares bucket metadata across processes and survives restarts.
//
//	<ns>:buckets        SET of bucket names
//	<ns>:bucket:<name>  SET of provider keys owned by that bucket
type Redis struct {
	rdb redis.UniversalClient
	ns  string
}

var _ Store = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	if namespace == "" {
		namespace = "offsync"
	}
	return &Redis{rdb: client, ns: namespace}
}

func (s *Redis) namesKey() string             { return s.ns + ":buckets" }
func (s *Redis) bucketKey(name string) string { return s.ns + ":bucket:" + name }

func (s *Redis) Open(ctx context.Context, name string) error {
	return s.rdb.SAdd(ctx, s.namesKey(), name).Err()
}

func (s *Redis) Names(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Track pipelines both SADDs in one round-trip.
func (s *Redis) Track(ctx context.Context, name, storageKey string) error {
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.namesKey(), name)
		p.SAdd(ctx, s.bucketKey(name), storageKey)
		return nil
	})
	return err
}

func (s *Redis) Keys(ctx context.Context, name string) ([]string, error) {
	keys, err := s.rdb.SMembers(ctx, s.bucketKey(name)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Redis) Drop(ctx context.Context, name string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.bucketKey(name))
		p.SRem(ctx, s.namesKey(), name)
		return nil
	})
	return err
}

// Close closes the underlying client.
func (s *Redis) Close(context.Context) error { return s.rdb.Close() }
