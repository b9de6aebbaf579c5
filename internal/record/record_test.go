package record_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qobil7681/atuin-history-tool/internal/record"
)

func validRecord() *record.Record {
	return &record.Record{
		ID:        uuid.MustParse("00000000-0000-7000-8000-000000000001"),
		Host:      uuid.MustParse("11111111-1111-4111-8111-111111111111"),
		Parent:    uuid.Nil,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).UnixNano(),
		Version:   "v0",
		Tag:       "history",
		Data:      []byte("ciphertext"),
		UserID:    1,
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*record.Record)
		wantErr bool
	}{
		{"valid head record", func(r *record.Record) {}, false},
		{"valid linked record", func(r *record.Record) {
			r.Parent = uuid.MustParse("00000000-0000-7000-8000-000000000099")
		}, false},
		{"empty data is still data", func(r *record.Record) { r.Data = []byte{} }, false},
		{"nil id", func(r *record.Record) { r.ID = uuid.Nil }, true},
		{"nil host", func(r *record.Record) { r.Host = uuid.Nil }, true},
		{"empty tag", func(r *record.Record) { r.Tag = "" }, true},
		{"empty version", func(r *record.Record) { r.Version = "" }, true},
		{"nil data", func(r *record.Record) { r.Data = nil }, true},
		{"self parent", func(r *record.Record) { r.Parent = r.ID }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecord_IsHead(t *testing.T) {
	r := validRecord()
	if !r.IsHead() {
		t.Error("IsHead() = false for record with nil parent")
	}
	r.Parent = r.ID
	if r.IsHead() {
		t.Error("IsHead() = true for record with a parent")
	}
}
