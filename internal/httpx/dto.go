package httpx

import (
	"time"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
)

type StaffCreatedRequest struct {
	StaffID     string `json:"staffId"`
	TriggeredBy string `json:"triggeredBy"`
}

type EventAcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	StaffID  string `json:"staffId"`
}

type StepResponse struct {
	Step        string         `json:"step"`
	Status      string         `json:"status"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	DurationMs  *int64         `json:"durationMs,omitempty"`
	Error       string         `json:"error,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CanRollback bool           `json:"canRollback"`
	RolledBack  bool           `json:"rolledBack"`
}

type RunErrorResponse struct {
	Step      string    `json:"step"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type RunResponse struct {
	ID                 string             `json:"id"`
	StaffID            string             `json:"staffId"`
	TriggeredBy        string             `json:"triggeredBy"`
	Status             string             `json:"status"`
	ExternalEmployeeID string             `json:"externalEmployeeId,omitempty"`
	ProfileAssigned    string             `json:"profileAssigned,omitempty"`
	LeaveInitialized   bool               `json:"leaveInitialized"`
	TaxConfigured      bool               `json:"taxConfigured"`
	CalculationsAdded  int                `json:"calculationsAdded"`
	Steps              []StepResponse     `json:"steps"`
	Errors             []RunErrorResponse `json:"errors,omitempty"`
	TraceID            string             `json:"traceId,omitempty"`
	StartedAt          time.Time          `json:"startedAt"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty"`
}

type RunListResponse struct {
	Runs    []RunResponse `json:"runs"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"perPage"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapRunToResponse(run *setuplog.SetupRun) RunResponse {
	steps := make([]StepResponse, len(run.Steps))
	for i, s := range run.Steps {
		steps[i] = StepResponse{
			Step:        string(s.Step),
			Status:      string(s.Status),
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
			DurationMs:  s.DurationMs,
			Error:       s.Error,
			Details:     s.Details,
			CanRollback: s.CanRollback,
			RolledBack:  s.RolledBackAt != nil,
		}
	}

	var errs []RunErrorResponse
	for _, e := range run.Errors {
		errs = append(errs, RunErrorResponse{
			Step:      string(e.Step),
			Code:      e.Code,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		})
	}

	return RunResponse{
		ID:                 run.ID,
		StaffID:            run.StaffID,
		TriggeredBy:        run.TriggeredBy,
		Status:             string(run.Status),
		ExternalEmployeeID: run.ExternalEmployeeID,
		ProfileAssigned:    run.ProfileAssigned,
		LeaveInitialized:   run.LeaveInitialized,
		TaxConfigured:      run.TaxConfigured,
		CalculationsAdded:  run.CalculationsAdded,
		Steps:              steps,
		Errors:             errs,
		TraceID:            run.TraceID,
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
	}
}

func mapRuns(runs []*setuplog.SetupRun) []RunResponse {
	out := make([]RunResponse, len(runs))
	for i, r := range runs {
		out[i] = mapRunToResponse(r)
	}
	return out
}
