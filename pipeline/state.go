// Package pipeline orchestrates document executions through generation,
// validation, decision, and the parallel commit fan-out, driving each one
// to a terminal Succeeded or Failed stage.
package pipeline

import (
	"fmt"
	"time"

	"github.com/c360studio/semgraph/storage"
)

// Stage identifies where an execution sits in its lifecycle.
type Stage string

const (
	StageGenerating         Stage = "Generating"
	StageValidating         Stage = "Validating"
	StageDeciding           Stage = "Deciding"
	StageCommittingParallel Stage = "CommittingParallel"
	StageJoining            Stage = "Joining"
	StageSucceeded          Stage = "Succeeded"
	StageFailed             Stage = "Failed"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// Event is a stage-machine input. Stages only advance through the
// transition table; there is no other way to move an execution.
type Event string

const (
	EventFactsGenerated   Event = "FactsGenerated"
	EventReportReady      Event = "ReportReady"
	EventAccepted         Event = "Accepted"
	EventRejected         Event = "Rejected"
	EventBranchesLaunched Event = "BranchesLaunched"
	EventAllSucceeded     Event = "AllSucceeded"
	EventBranchFailed     Event = "BranchFailed"
	EventStageFailed      Event = "StageFailed"
	EventDeadlineExceeded Event = "DeadlineExceeded"
)

type transitionKey struct {
	From  Stage
	Event Event
}

var transitions = map[transitionKey]Stage{
	{StageGenerating, EventFactsGenerated}:           StageValidating,
	{StageValidating, EventReportReady}:              StageDeciding,
	{StageDeciding, EventAccepted}:                   StageCommittingParallel,
	{StageDeciding, EventRejected}:                   StageFailed,
	{StageCommittingParallel, EventBranchesLaunched}: StageJoining,
	{StageJoining, EventAllSucceeded}:                StageSucceeded,
	{StageJoining, EventBranchFailed}:                StageFailed,
}

// Next resolves the transition table. EventStageFailed and
// EventDeadlineExceeded are accepted from any non-terminal stage.
func Next(from Stage, event Event) (Stage, error) {
	if from.Terminal() {
		return "", fmt.Errorf("stage %s is terminal, cannot apply %s", from, event)
	}
	if event == EventStageFailed || event == EventDeadlineExceeded {
		return StageFailed, nil
	}
	to, ok := transitions[transitionKey{From: from, Event: event}]
	if !ok {
		return "", fmt.Errorf("no transition from %s on %s", from, event)
	}
	return to, nil
}

// Trigger is the inbound request that starts an execution.
type Trigger struct {
	DocumentID     string `json:"documentId"`
	SourceLocation string `json:"sourceLocation"`
	CorrelationID  string `json:"correlationId"`
}

// Execution is the mutable state carried through a single run. It is
// owned by one goroutine; branch goroutines report back over channels
// and never touch it directly.
type Execution struct {
	CorrelationID string
	DocumentID    string
	Stage         Stage
	Deadline      time.Time
	StartedAt     time.Time

	Attempts      map[string]int
	Warnings      []string
	StageChanges  []storage.StageChange
	BranchResults []storage.BranchResult
}

func newExecution(trigger Trigger, startedAt time.Time, deadline time.Duration) *Execution {
	return &Execution{
		CorrelationID: trigger.CorrelationID,
		DocumentID:    trigger.DocumentID,
		Stage:         StageGenerating,
		Deadline:      startedAt.Add(deadline),
		StartedAt:     startedAt,
		Attempts:      make(map[string]int),
	}
}

// Apply advances the stage through the transition table and records the
// change. An invalid event indicates a bug in the engine, not bad input.
func (e *Execution) Apply(event Event, at time.Time) error {
	next, err := Next(e.Stage, event)
	if err != nil {
		return err
	}
	e.StageChanges = append(e.StageChanges, storage.StageChange{
		From:      string(e.Stage),
		To:        string(next),
		Timestamp: at,
	})
	e.Stage = next
	return nil
}

func (e *Execution) record(finishedAt time.Time) *storage.ExecutionRecord {
	return &storage.ExecutionRecord{
		CorrelationID: e.CorrelationID,
		DocumentID:    e.DocumentID,
		FinalStage:    string(e.Stage),
		Succeeded:     e.Stage == StageSucceeded,
		Attempts:      e.Attempts,
		Warnings:      e.Warnings,
		StageChanges:  e.StageChanges,
		BranchResults: e.BranchResults,
		StartedAt:     e.StartedAt,
		FinishedAt:    finishedAt,
	}
}
