package redisstore

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/redis/go-redis/v9"

	"github.com/luno/snaprestore"
)

const (
	// Key prefixes
	stateKeyPrefix   = "snaprestore:op:"
	versionKeyPrefix = "snaprestore:ver:"
	auditKeyPrefix   = "snaprestore:audit:"
)

// Store persists operation state in Redis. The compare-and-swap happens
// atomically in a Lua script over the version key.
type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{
		client: client,
	}
}

var _ snaprestore.StateStore = (*Store)(nil)

var putScript = redis.NewScript(`
	local state_key = KEYS[1]
	local version_key = KEYS[2]

	local state_data = ARGV[1]
	local expected_version = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', version_key) or '0')
	if current ~= expected_version then
		return -1
	end

	redis.call('SET', version_key, expected_version + 1)
	redis.call('SET', state_key, state_data)

	return expected_version + 1
`)

func (s *Store) Get(ctx context.Context, operationID string) (*snaprestore.OperationState, error) {
	data, err := s.client.Get(ctx, stateKeyPrefix+operationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(snaprestore.ErrOperationNotFound, "", j.KV("operation_id", operationID))
	} else if err != nil {
		return nil, err
	}

	var state snaprestore.OperationState
	err = snaprestore.Unmarshal(data, &state)
	if err != nil {
		return nil, err
	}

	if state.Context == nil {
		state.Context = make(map[string]string)
	}

	return &state, nil
}

func (s *Store) Put(ctx context.Context, state *snaprestore.OperationState, expectedVersion int64) error {
	clone := state.Clone()
	clone.Version = expectedVersion + 1
	clone.UpdatedAt = time.Now()

	data, err := snaprestore.Marshal(clone)
	if err != nil {
		return err
	}

	keys := []string{
		stateKeyPrefix + state.OperationID,
		versionKeyPrefix + state.OperationID,
	}

	version, err := putScript.Run(ctx, s.client, keys, data, expectedVersion).Int64()
	if err != nil {
		return err
	}

	if version == -1 {
		return errors.Wrap(snaprestore.ErrVersionConflict, "stale version", j.MKV{
			"operation_id": state.OperationID,
		})
	}

	return nil
}

// Audit is an append-only event log on a per-operation sorted set scored by
// timestamp.
type Audit struct {
	client redis.UniversalClient
}

func NewAudit(client redis.UniversalClient) *Audit {
	return &Audit{
		client: client,
	}
}

var _ snaprestore.AuditLog = (*Audit)(nil)

func (a *Audit) Append(ctx context.Context, event snaprestore.AuditEvent) error {
	data, err := snaprestore.Marshal(&event)
	if err != nil {
		return err
	}

	return a.client.ZAdd(ctx, auditKeyPrefix+event.OperationID, redis.Z{
		Score:  float64(event.Timestamp.UnixNano()),
		Member: string(data),
	}).Err()
}

func (a *Audit) List(ctx context.Context, operationID string) ([]snaprestore.AuditEvent, error) {
	members, err := a.client.ZRange(ctx, auditKeyPrefix+operationID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var events []snaprestore.AuditEvent
	for _, member := range members {
		var event snaprestore.AuditEvent
		err := snaprestore.Unmarshal([]byte(member), &event)
		if err != nil {
			return nil, errors.Wrap(err, "corrupt audit event", j.KV("operation_id", operationID))
		}

		events = append(events, event)
	}

	return events, nil
}
