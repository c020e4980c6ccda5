// Package engine submits backtests to a remote execution service and tracks
// them to completion.
package engine

import (
	"context"
	"encoding/json"
	"strings"
)

type JobStatus string

const (
	StatusIdle      JobStatus = "idle"
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusError     JobStatus = "error"
)

// ParseStatus lowercases s; unknown values map to "".
func ParseStatus(s string) JobStatus {
	switch st := JobStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusQueued, StatusRunning, StatusCompleted, StatusError:
		return st
	case "pending", "submitted":
		return StatusQueued
	case "failed", "cancelled", "canceled":
		return StatusError
	case "done", "finished", "succeeded":
		return StatusCompleted
	default:
		return ""
	}
}

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Payload is one evaluation request. Risk fields left nil are filled from
// the orchestrator's defaults.
type Payload struct {
	Asset       string   `json:"asset" yaml:"asset"`
	Timeframe   string   `json:"timeframe" yaml:"timeframe"`
	Code        string   `json:"code,omitempty" yaml:"code,omitempty"`
	StartDate   string   `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate     string   `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Cash        *float64 `json:"cash,omitempty" yaml:"cash,omitempty"`
	FeeBps      *float64 `json:"feeBps,omitempty" yaml:"feeBps,omitempty"`
	SlippageBps *float64 `json:"slippageBps,omitempty" yaml:"slippageBps,omitempty"`
}

type RiskDefaults struct {
	Cash        float64 `json:"cash"`
	FeeBps      float64 `json:"feeBps"`
	SlippageBps float64 `json:"slippageBps"`
}

// WithDefaults returns p with unset risk fields taken from d.
func (p Payload) WithDefaults(d RiskDefaults) Payload {
	out := p
	if out.Cash == nil {
		out.Cash = float64Ptr(d.Cash)
	}
	if out.FeeBps == nil {
		out.FeeBps = float64Ptr(d.FeeBps)
	}
	if out.SlippageBps == nil {
		out.SlippageBps = float64Ptr(d.SlippageBps)
	}
	return out
}

func float64Ptr(v float64) *float64 { return &v }

// ErrorMeta is the structured failure description a job may carry.
type ErrorMeta struct {
	Type      string `json:"type,omitempty"`
	Message   string `json:"message,omitempty"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// Job is the service's view of one submission or status poll.
type Job struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Logs      []string   `json:"logs,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorMeta *ErrorMeta `json:"errorMeta,omitempty"`
}

// ResultResponse carries the raw result; its shape is only loosely known.
type ResultResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Service is the remote execution engine.
type Service interface {
	SubmitJob(ctx context.Context, p Payload) (Job, error)
	GetJobStatus(ctx context.Context, id string) (Job, error)
	GetJobResult(ctx context.Context, id string) (ResultResponse, error)
}
