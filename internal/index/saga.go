package index

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// DefaultCompensationTimeout bounds the detached context compensations run on.
const DefaultCompensationTimeout = 10 * time.Second

// step is one forward action of a write and the action that undoes it.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga runs steps in order. When a step fails, the steps that already
// completed are undone in reverse order on a context detached from the
// caller's, so an expired deadline still gets cleaned up.
type saga struct {
	op      string
	id      string
	steps   []step
	timeout time.Duration
}

func (s *saga) run(ctx context.Context) error {
	done := make([]step, 0, len(s.steps))
	for _, st := range s.steps {
		err := ctx.Err()
		if err == nil {
			err = st.do(ctx)
		}
		if err != nil {
			return s.compensate(ctx, done, st.name, err)
		}
		done = append(done, st)
	}
	return nil
}

func (s *saga) compensate(ctx context.Context, done []step, failedStep string, cause error) error {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = DefaultCompensationTimeout
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	succeeded := make([]string, 0, len(done))
	for _, st := range done {
		succeeded = append(succeeded, st.name)
	}
	failed := []string{failedStep}

	var undoErr error
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(cctx); err != nil {
			failed = append(failed, "undo_"+st.name)
			undoErr = stderrors.Join(undoErr, err)
		}
	}

	if undoErr != nil {
		slog.Error("internal_inconsistency",
			slog.String("op", s.op),
			slog.String("id", s.id),
			slog.Any("succeeded", succeeded),
			slog.Any("failed", failed),
			slog.String("error", undoErr.Error()))
		return errors.Inconsistency(s.id, succeeded, failed, stderrors.Join(cause, undoErr))
	}

	if len(done) > 0 {
		slog.Warn("saga_compensated",
			slog.String("op", s.op),
			slog.String("id", s.id),
			slog.String("failed_step", failedStep),
			slog.Int("undone", len(done)),
			slog.String("error", cause.Error()))
	}
	return operationError(s.id, cause)
}

// operationError attaches the id to cause and maps a context deadline to
// an upstream timeout.
func operationError(id string, cause error) error {
	if ce, ok := errors.As(cause); ok {
		if ce.Details["id"] == "" {
			ce.WithDetail("id", id)
		}
		return ce
	}
	switch {
	case stderrors.Is(cause, context.DeadlineExceeded):
		return errors.New(errors.ErrCodeUpstreamTimeout, "operation timed out", cause).WithDetail("id", id)
	case stderrors.Is(cause, context.Canceled):
		return cause
	default:
		return errors.New(errors.ErrCodeIndexFailed, cause.Error(), cause).WithDetail("id", id)
	}
}
