package types

// LoadStatus tracks a load record through its lifecycle. The only legal
// transitions are started -> completed and started -> failed; a rerun with
// the same key resets the record back to started.
type LoadStatus string

const (
	LoadStatusStarted   LoadStatus = "started"
	LoadStatusCompleted LoadStatus = "completed"
	LoadStatusFailed    LoadStatus = "failed"
)

func (s LoadStatus) String() string {
	return string(s)
}
