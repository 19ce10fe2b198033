// Package redissink publishes live vehicle state to Redis: a hash per
// vehicle, a geo set of last known positions, and a pub/sub channel
// carrying every observation as JSON.
package redissink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/traintracker-data/internal/observation"
)

type Options struct {
	KeyPrefix string
	Channel   string
}

type Sink struct {
	client  redis.UniversalClient
	prefix  string
	channel string
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

func New(client redis.UniversalClient, opts Options) *Sink {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "traintracker"
	}
	return &Sink{client: client, prefix: prefix, channel: opts.Channel}
}

// VehicleKey is the hash holding the latest attributes of a train.
func (s *Sink) VehicleKey(trainID string) string {
	return s.prefix + ":vehicle:" + trainID
}

// IndexKey is the set of tracked train ids.
func (s *Sink) IndexKey() string {
	return s.prefix + ":vehicles"
}

// PositionsKey is the geo set of last known train positions.
func (s *Sink) PositionsKey() string {
	return s.prefix + ":positions"
}

func (s *Sink) Append(ctx context.Context, obs observation.Observation) error {
	var payload []byte
	if s.channel != "" {
		var err error
		if payload, err = json.Marshal(obs); err != nil {
			return fmt.Errorf("encoding observation for %s: %w", obs.TrainID, err)
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.VehicleKey(obs.TrainID), obs.Attributes())
		pipe.SAdd(ctx, s.IndexKey(), obs.TrainID)
		if obs.Geometry != nil {
			pipe.GeoAdd(ctx, s.PositionsKey(), &redis.GeoLocation{
				Name:      obs.TrainID,
				Longitude: obs.Geometry.Lon,
				Latitude:  obs.Geometry.Lat,
			})
		}
		if payload != nil {
			pipe.Publish(ctx, s.channel, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing observation for %s to redis: %w", obs.TrainID, err)
	}
	return nil
}

func (s *Sink) Remove(ctx context.Context, trainIDs ...string) error {
	if len(trainIDs) == 0 {
		return nil
	}

	keys := make([]string, len(trainIDs))
	members := make([]interface{}, len(trainIDs))
	for i, id := range trainIDs {
		keys[i] = s.VehicleKey(id)
		members[i] = id
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, s.IndexKey(), members...)
		pipe.ZRem(ctx, s.PositionsKey(), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing vehicles from redis: %w", err)
	}
	return nil
}
