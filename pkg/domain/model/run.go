package model

import "time"

// RunStatus represents the lifecycle state of a pipeline run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// StepName identifies a pipeline step. Steps always execute in the order
// listed here; a failed step prevents all later steps from running.
type StepName string

const (
	StepCheckout  StepName = "checkout"
	StepManifest  StepName = "manifest"
	StepProvision StepName = "provision"
	StepBuild     StepName = "build"
	StepPublish   StepName = "publish"
)

// StepResult records the outcome of a single pipeline step
type StepResult struct {
	Name       StepName  `json:"name"`
	Status     RunStatus `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// PipelineRun represents one execution of the publishing pipeline. Exactly
// one run exists per qualifying webhook delivery.
type PipelineRun struct {
	ID         string       `json:"id"`
	DeliveryID string       `json:"delivery_id"`
	Repository string       `json:"repository"`
	Project    string       `json:"project,omitempty"`
	TagName    string       `json:"tag_name"`
	Prerelease bool         `json:"prerelease"`
	CommitSHA  string       `json:"commit_sha"`
	Status     RunStatus    `json:"status"`
	Steps      []StepResult `json:"steps"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// BeginStep appends a running step and returns its index for EndStep.
func (r *PipelineRun) BeginStep(name StepName) int {
	r.Steps = append(r.Steps, StepResult{
		Name:      name,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	})
	return len(r.Steps) - 1
}

// EndStep finalizes the step at idx. A non-nil err marks both the step and
// the whole run as failed.
func (r *PipelineRun) EndStep(idx int, detail string, err error) {
	step := &r.Steps[idx]
	step.FinishedAt = time.Now()
	step.Detail = detail
	if err != nil {
		step.Status = RunStatusFailed
		r.Status = RunStatusFailed
		r.Error = err.Error()
		r.FinishedAt = step.FinishedAt
		return
	}
	step.Status = RunStatusSucceeded
}

// Complete marks the run as succeeded unless a step already failed it.
func (r *PipelineRun) Complete() {
	if r.Status == RunStatusRunning {
		r.Status = RunStatusSucceeded
	}
	r.FinishedAt = time.Now()
}
