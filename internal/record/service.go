package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// maxForkRetries bounds how many times an append is retried after losing a
// tip race to a concurrent writer.
const maxForkRetries = 3

// Service is the orchestration layer between the CLI and the Store. It owns
// the write path for this host: encrypting payloads, assigning ids and
// timestamps, discovering the chain tip, and retrying appends that lose a
// tip race.
type Service struct {
	store     Store
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	host      uuid.UUID
	userID    int64
}

// NewService creates a Service writing as the given host and user.
func NewService(store Store, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, host uuid.UUID, userID int64) *Service {
	return &Service{
		store:     store,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		host:      host,
		userID:    userID,
	}
}

// Host returns the host id this service writes as.
func (s *Service) Host() uuid.UUID { return s.host }

// AppendTagged encrypts payload and appends it to this host's chain for the
// given tag. The record's parent is the current chain tip (uuid.Nil for a
// new chain). If a concurrent writer advances the tip between the read and
// the append, the append fails with ErrFork and is retried with a refreshed
// tip up to maxForkRetries times.
func (s *Service) AppendTagged(ctx context.Context, tag, version string, payload []byte) (*Record, error) {
	var buf bytes.Buffer
	if err := s.encryptor.Encrypt(bytes.NewReader(payload), &buf); err != nil {
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}
	data := buf.Bytes()

	for attempt := 0; ; attempt++ {
		tip, err := s.store.GetTip(ctx, s.host, tag)
		if err != nil {
			return nil, fmt.Errorf("getting chain tip: %w", err)
		}

		parent := uuid.Nil
		if tip != nil {
			parent = tip.ID
		}

		id, err := s.idgen.New()
		if err != nil {
			return nil, fmt.Errorf("generating record id: %w", err)
		}

		rec := &Record{
			ID:        id,
			Host:      s.host,
			Parent:    parent,
			Timestamp: s.clock.Now().UnixNano(),
			Version:   version,
			Tag:       tag,
			Data:      data,
			UserID:    s.userID,
		}

		err = s.store.Append(ctx, rec)
		if err == nil {
			s.logger.Info("record appended", "tag", tag, "id", id)
			return rec, nil
		}

		if errors.Is(err, ErrFork) && attempt < maxForkRetries {
			s.logger.Debug("append lost tip race, retrying", "tag", tag, "attempt", attempt+1)
			continue
		}

		return nil, fmt.Errorf("appending record: %w", err)
	}
}

// Log returns the records of a (host, tag) chain in chain order, starting
// immediately after since (pass uuid.Nil for the whole chain).
func (s *Service) Log(ctx context.Context, host uuid.UUID, tag string, since uuid.UUID) ([]*Record, error) {
	cur, err := s.store.GetChain(ctx, host, tag, since)
	if err != nil {
		return nil, fmt.Errorf("opening chain: %w", err)
	}
	defer cur.Close()

	var records []*Record
	for {
		rec, err := cur.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading chain: %w", err)
		}
		if rec == nil {
			return records, nil
		}
		records = append(records, rec)
	}
}

// Tip returns the current tip of the (host, tag) chain, or (nil, nil) if no
// chain exists.
func (s *Service) Tip(ctx context.Context, host uuid.UUID, tag string) (*Record, error) {
	tip, err := s.store.GetTip(ctx, host, tag)
	if err != nil {
		return nil, fmt.Errorf("getting chain tip: %w", err)
	}
	return tip, nil
}

// Status returns a summary of every chain in the store.
func (s *Service) Status(ctx context.Context) ([]ChainInfo, error) {
	chains, err := s.store.ListChains(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chains: %w", err)
	}
	return chains, nil
}

// DecryptPayload decrypts a record's payload using an unlocked context.
func (s *Service) DecryptPayload(dc DecryptionContext, rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(rec.Data), &buf); err != nil {
		return nil, fmt.Errorf("decrypting record %s: %w", rec.ID, err)
	}
	return buf.Bytes(), nil
}
