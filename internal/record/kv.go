package record

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	kvTag     = "kv"
	kvVersion = "v0"
)

// KVPair is the payload of one entry in the "kv" log. Setting a key appends
// a new pair; reading walks the chain from the tip so the most recent value
// wins. There is no delete — the log only grows.
type KVPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetKV appends a key/value pair to this host's "kv" chain.
func (s *Service) SetKV(ctx context.Context, key, value string) (*Record, error) {
	payload, err := json.Marshal(KVPair{Key: key, Value: value})
	if err != nil {
		return nil, fmt.Errorf("encoding kv pair: %w", err)
	}
	return s.AppendTagged(ctx, kvTag, kvVersion, payload)
}

// GetKV returns the most recent value for key on this host's "kv" chain, or
// (nil, nil) if the key has never been set. The walk starts at the tip and
// follows parent links backwards, so the first match is the newest.
func (s *Service) GetKV(ctx context.Context, dc DecryptionContext, key string) (*KVPair, error) {
	rec, err := s.store.GetTip(ctx, s.host, kvTag)
	if err != nil {
		return nil, fmt.Errorf("getting kv tip: %w", err)
	}

	for rec != nil {
		payload, err := s.DecryptPayload(dc, rec)
		if err != nil {
			return nil, err
		}

		var pair KVPair
		if err := json.Unmarshal(payload, &pair); err != nil {
			return nil, fmt.Errorf("decoding kv record %s: %w", rec.ID, err)
		}
		if pair.Key == key {
			return &pair, nil
		}

		if rec.Parent == uuid.Nil {
			break
		}
		rec, err = s.store.Get(ctx, rec.Parent)
		if err != nil {
			return nil, fmt.Errorf("walking kv chain: %w", err)
		}
	}

	return nil, nil
}
