package recorder

import "time"

// NoopRecorder is a no-op implementation used when no journal database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordFill(_ *FillEvent) error              { return nil }
func (n *NoopRecorder) RecordReset(_ *ResetEvent) error            { return nil }
func (n *NoopRecorder) RecordSnapshot(_ *SnapshotEvent) error      { return nil }
func (n *NoopRecorder) Fills(_, _ time.Time) ([]FillRecord, error) { return nil, nil }
func (n *NoopRecorder) Close() error                               { return nil }
