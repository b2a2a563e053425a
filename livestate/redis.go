// Package livestate keeps a fast-path snapshot of each sensor's
// liveness and latest readings in Redis, write-through from SQL.
package livestate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reading is the latest stored value for one field.
type Reading struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// SensorState is the cached snapshot served by the state endpoints.
type SensorState struct {
	SensorID        int64              `json:"sensor_id"`
	Name            string             `json:"name"`
	Status          string             `json:"status"`
	LastSeen        *time.Time         `json:"last_seen"`
	IPAddress       string             `json:"ip_address"`
	FirmwareVersion string             `json:"firmware_version"`
	Readings        map[string]Reading `json:"readings"`
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(sensorID int64) string {
	return fmt.Sprintf("sensorhub:sensor:%d:state", sensorID)
}

const allSensorsKey = "sensorhub:sensors"

func (r *RedisStore) SetState(ctx context.Context, state *SensorState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, stateKey(state.SensorID), data, 0)
	pipe.SAdd(ctx, allSensorsKey, state.SensorID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetState(ctx context.Context, sensorID int64) (*SensorState, error) {
	data, err := r.client.Get(ctx, stateKey(sensorID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state SensorState
	return &state, json.Unmarshal(data, &state)
}

func (r *RedisStore) GetAllSensorIDs(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, allSensorsKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *RedisStore) RemoveSensor(ctx context.Context, sensorID int64) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, stateKey(sensorID))
	pipe.SRem(ctx, allSensorsKey, sensorID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) FlushAll(ctx context.Context) error {
	ids, err := r.GetAllSensorIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		r.RemoveSensor(ctx, id)
	}
	return r.client.Del(ctx, allSensorsKey).Err()
}
