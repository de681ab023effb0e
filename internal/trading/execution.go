package trading

import (
	"fmt"
)

// ExecutionPolicy decides whether a signal may be executed.
type ExecutionPolicy struct {
	MinConfidence float64
	DryRun        bool
}

// ExecutionResult contains the result of an execution check.
type ExecutionResult struct {
	ShouldExecute bool
	BlockReason   string
	ChecksPassed  []string
	ChecksFailed  []string
}

// ExecutionChecker validates whether a signal should be executed.
// Signals execute only when confidence >= MinConfidence and the run is live.
type ExecutionChecker struct {
	policy ExecutionPolicy
}

// NewExecutionChecker creates a new execution checker.
func NewExecutionChecker(policy ExecutionPolicy) *ExecutionChecker {
	return &ExecutionChecker{policy: policy}
}

// CheckExecution runs every check in order and stops at the first failure.
func (e *ExecutionChecker) CheckExecution(signal Signal) ExecutionResult {
	result := ExecutionResult{
		ShouldExecute: true,
		ChecksPassed:  []string{},
		ChecksFailed:  []string{},
	}

	checks := []struct {
		name string
		fn   func(Signal) (bool, string)
	}{
		{"ticker", e.checkTicker},
		{"action_type", e.checkActionType},
		{"quantity", e.checkQuantity},
		{"confidence_threshold", e.checkConfidenceThreshold},
		{"dry_run", e.checkDryRun},
	}

	for _, c := range checks {
		ok, reason := c.fn(signal)
		if !ok {
			result.ShouldExecute = false
			result.BlockReason = reason
			result.ChecksFailed = append(result.ChecksFailed, c.name)
			return result
		}
		result.ChecksPassed = append(result.ChecksPassed, c.name)
	}
	return result
}

func (e *ExecutionChecker) checkTicker(signal Signal) (bool, string) {
	if signal.Ticker == "" {
		return false, "signal has no ticker"
	}
	return true, ""
}

// checkActionType rejects hold and unknown actions.
func (e *ExecutionChecker) checkActionType(signal Signal) (bool, string) {
	if _, _, ok := signal.Action.Sides(); !ok {
		return false, fmt.Sprintf("action %q is not executable", signal.Action)
	}
	return true, ""
}

func (e *ExecutionChecker) checkQuantity(signal Signal) (bool, string) {
	if signal.Quantity <= 0 {
		return false, fmt.Sprintf("quantity %d is not positive", signal.Quantity)
	}
	return true, ""
}

func (e *ExecutionChecker) checkConfidenceThreshold(signal Signal) (bool, string) {
	if signal.Confidence < e.policy.MinConfidence {
		return false, fmt.Sprintf("Confidence too low (%.0f%%)", signal.Confidence)
	}
	return true, ""
}

func (e *ExecutionChecker) checkDryRun(Signal) (bool, string) {
	if e.policy.DryRun {
		return false, "Dry run - no trades executed"
	}
	return true, ""
}

// ShouldExecute returns just the boolean result.
func (e *ExecutionChecker) ShouldExecute(signal Signal) bool {
	return e.CheckExecution(signal).ShouldExecute
}

// Policy returns the checker's policy.
func (e *ExecutionChecker) Policy() ExecutionPolicy {
	return e.policy
}
