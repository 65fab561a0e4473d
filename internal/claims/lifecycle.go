package claims

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/looplab/fsm"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/internal/domain"
)

const (
	evSubmit  = "submit"
	evPending = "pending"
	evConfirm = "confirm"
	evCancel  = "cancel"
)

var lifecycleEvents = fsm.Events{
	{Name: evSubmit, Src: []string{string(domain.ClaimNotCompleted)}, Dst: string(domain.ClaimProcess)},
	{Name: evPending, Src: []string{string(domain.ClaimProcess), string(domain.ClaimCancelled)}, Dst: string(domain.ClaimPending)},
	{Name: evConfirm, Src: []string{string(domain.ClaimProcess), string(domain.ClaimPending), string(domain.ClaimCancelled)}, Dst: string(domain.ClaimConfirm)},
	{Name: evCancel, Src: []string{string(domain.ClaimProcess), string(domain.ClaimPending), string(domain.ClaimConfirm)}, Dst: string(domain.ClaimCancelled)},
}

// adminEvents are the statuses an operator may set and the event reaching each.
var adminEvents = map[domain.ClaimStatus]string{
	domain.ClaimPending:   evPending,
	domain.ClaimConfirm:   evConfirm,
	domain.ClaimCancelled: evCancel,
}

func newLifecycle(current domain.ClaimStatus) *fsm.FSM {
	return fsm.NewFSM(string(current), lifecycleEvents, fsm.Callbacks{})
}

// advance fires event on a claim sitting in from and returns the state it reaches.
// An event the lifecycle does not allow from there is a conflict.
func advance(ctx context.Context, claimID string, from domain.ClaimStatus, event string) (domain.ClaimStatus, error) {
	lc := newLifecycle(from)
	if err := lc.Event(ctx, event); err != nil {
		return "", domain.Conflict(fmt.Sprintf("claim %s: %v", claimID, err))
	}
	return domain.ClaimStatus(lc.Current()), nil
}

func logTransition(ctx context.Context, claimID string, from, to domain.ClaimStatus, event string) {
	logger.LogEvent(ctx, logger.CLAIM, slog.LevelInfo, "claim.transition",
		slog.String("claim_id", claimID),
		slog.String("event", event),
		slog.String("from", string(from)),
		slog.String("state", string(to)),
	)
}

// AdminEvent returns the lifecycle event for an operator supplied status.
func AdminEvent(status string) (domain.ClaimStatus, string, error) {
	st, err := domain.ParseClaimStatus(status)
	if err != nil {
		return "", "", domain.Invalid("Invalid status")
	}
	ev, ok := adminEvents[st]
	if !ok {
		return "", "", domain.Invalid("Invalid status")
	}
	return st, ev, nil
}

// CanTransition reports whether a claim in from may be moved to to by an operator.
func CanTransition(from, to domain.ClaimStatus) bool {
	ev, ok := adminEvents[to]
	if !ok {
		return false
	}
	return newLifecycle(from).Can(ev)
}

func processFor(st domain.ClaimStatus) domain.ProcessStatus {
	if st == domain.ClaimPending {
		return domain.ProcessRunning
	}
	return domain.ProcessComplete
}
