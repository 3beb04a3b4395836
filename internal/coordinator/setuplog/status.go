package setuplog

// DeriveStatus computes the run status from the step list alone. It is the
// single source of truth for status classification: the orchestrator and the
// store both call it, and tests assert that a persisted run's status always
// equals DeriveStatus(run.Steps).
//
// Classification rules:
//
//   - COMPLETED: every step COMPLETED.
//   - PENDING: no step has started and none failed.
//   - IN_PROGRESS: some step started, none failed, not all completed.
//   - FAILED: a step failed and the compensation set (COMPLETED steps with
//     canRollback) is empty. Note that non-rollbackable steps may well have
//     completed before the failure; they leave nothing to compensate.
//   - ROLLED_BACK: a step failed and every step in the compensation set was
//     successfully compensated.
//   - PARTIAL: a step failed and at least one step in the compensation set
//     was not compensated (rollback errored, or was never attempted). The
//     run is in a known-inconsistent state requiring manual remediation.
func DeriveStatus(steps []StepRecord) Status {
	if len(steps) == 0 {
		return StatusPending
	}

	var (
		completed int
		failed    int
		started   bool
	)
	for _, s := range steps {
		switch s.Status {
		case StepCompletedStatus:
			completed++
			started = true
		case StepFailedStatus:
			failed++
			started = true
		case StepInProgressStatus, StepSkippedStatus:
			started = true
		}
	}

	if failed == 0 {
		if completed == len(steps) {
			return StatusCompleted
		}
		if !started {
			return StatusPending
		}
		return StatusInProgress
	}

	eligible := 0
	rolledBack := 0
	for _, s := range steps {
		if s.Status != StepCompletedStatus || !s.CanRollback {
			continue
		}
		eligible++
		if s.RolledBackAt != nil && s.RollbackError == "" {
			rolledBack++
		}
	}

	switch {
	case eligible == 0:
		return StatusFailed
	case rolledBack == eligible:
		return StatusRolledBack
	default:
		return StatusPartial
	}
}
