package engine

import "fmt"

// JobSubmissionError means a job failed to start or came back without an id.
type JobSubmissionError struct {
	Reason string
	Err    error
}

func (e *JobSubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job submission failed: %s: %v", e.Reason, e.Err)
	}
	return "job submission failed: " + e.Reason
}

func (e *JobSubmissionError) Unwrap() error { return e.Err }

// JobPollError means a status or result request itself failed.
type JobPollError struct {
	JobID string
	Phase string
	Err   error
}

func (e *JobPollError) Error() string {
	return fmt.Sprintf("job %s: %s request failed: %v", e.JobID, e.Phase, e.Err)
}

func (e *JobPollError) Unwrap() error { return e.Err }
