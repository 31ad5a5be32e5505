package audit

// NoopRecorder discards entries; used when no audit sink is configured
// and by tests that assert on engine behaviour only
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{}
}

func (r *NoopRecorder) Record(entry LogEntry) error {
	return nil
}

var _ Recorder = (*NoopRecorder)(nil)
