package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ChainReport is the result of a successful chain verification.
type ChainReport struct {
	Host   uuid.UUID
	Tag    string
	Head   uuid.UUID
	Tip    uuid.UUID
	Length int64
}

// Verify walks the full (host, tag) chain from head to tip and checks its
// integrity: every parent link connects to the preceding record, no record
// appears twice, every record carries the expected host and tag, and the
// walk ends at the tip the store reports. Fails with ErrNotFound if no
// chain exists.
func (s *Service) Verify(ctx context.Context, host uuid.UUID, tag string) (*ChainReport, error) {
	cur, err := s.store.GetChain(ctx, host, tag, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("opening chain: %w", err)
	}
	defer cur.Close()

	report := &ChainReport{Host: host, Tag: tag}
	seen := make(map[uuid.UUID]bool)
	prev := uuid.Nil

	for {
		rec, err := cur.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading chain: %w", err)
		}
		if rec == nil {
			break
		}

		if seen[rec.ID] {
			return nil, fmt.Errorf("chain cycle: record %s seen twice", rec.ID)
		}
		seen[rec.ID] = true

		if rec.Parent != prev {
			return nil, fmt.Errorf("broken link at %s: parent %s, want %s", rec.ID, rec.Parent, prev)
		}
		if rec.Host != host || rec.Tag != tag {
			return nil, fmt.Errorf("record %s belongs to (%s, %s), not (%s, %s)", rec.ID, rec.Host, rec.Tag, host, tag)
		}

		if report.Length == 0 {
			report.Head = rec.ID
		}
		report.Length++
		prev = rec.ID
	}

	tip, err := s.store.GetTip(ctx, host, tag)
	if err != nil {
		return nil, fmt.Errorf("getting chain tip: %w", err)
	}
	if tip == nil {
		return nil, fmt.Errorf("chain has %d records but no tip", report.Length)
	}
	if tip.ID != prev {
		return nil, fmt.Errorf("walk ended at %s but tip is %s", prev, tip.ID)
	}
	report.Tip = tip.ID

	s.logger.Debug("chain verified", "host", host, "tag", tag, "length", report.Length)
	return report, nil
}
