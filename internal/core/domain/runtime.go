package domain

import "time"

const (
	// LabelBatch carries the batch id on every container of a batch.
	LabelBatch = "lighthouse.batch"
	// LabelName carries the logical container name.
	LabelName = "lighthouse.name"
)

// ContainerState is the startup state of a single container in a batch.
type ContainerState string

const (
	StatePending       ContainerState = "pending"
	StateImageReady    ContainerState = "image_ready"
	StateCreated       ContainerState = "created"
	StateStarted       ContainerState = "started"
	StateLogTracking   ContainerState = "log_tracking"
	StateWaitEvaluated ContainerState = "wait_evaluated"
	StateReady         ContainerState = "ready"
	StateFailed        ContainerState = "failed"
	StateStopped       ContainerState = "stopped"
)

// RuntimeContainer is the live container created from a ContainerSpec.
type RuntimeContainer struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Engine  string         `json:"engine_name"`
	Image   string         `json:"image"`
	State   ContainerState `json:"state"`
	Ports   []PortBinding  `json:"ports,omitempty"`
	Verdict *WaitVerdict   `json:"verdict,omitempty"`
	Started time.Time      `json:"started"`
}

// WaitStatus is the outcome of a readiness wait.
type WaitStatus string

const (
	// WaitPositive means all required checkers were satisfied before the deadline.
	WaitPositive WaitStatus = "positive"
	// WaitNegative means a checker detected a failure condition.
	WaitNegative WaitStatus = "negative"
	// WaitUnknown means the deadline passed without a terminal condition.
	WaitUnknown WaitStatus = "unknown"
)

// WaitVerdict is computed once per container wait and never mutated.
type WaitVerdict struct {
	Status  WaitStatus    `json:"status"`
	Elapsed time.Duration `json:"elapsed"`
}

// OK reports a positive verdict.
func (v WaitVerdict) OK() bool {
	return v.Status == WaitPositive
}

// ElapsedMs is the waited time in milliseconds.
func (v WaitVerdict) ElapsedMs() int64 {
	return v.Elapsed.Milliseconds()
}
