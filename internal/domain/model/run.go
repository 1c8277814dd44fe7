package model

// RunState is the lifecycle state of one inscription run.
type RunState string

const (
	RunStateInit      RunState = "init"
	RunStateEncoding  RunState = "encoding"
	RunStateLooping   RunState = "looping"
	RunStateCompleted RunState = "completed"
	RunStateAborted   RunState = "aborted"
)

func (s RunState) String() string {
	return string(s)
}

// Terminal reports whether the run has finished, successfully or not.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateAborted
}
