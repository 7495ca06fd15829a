package journal

import (
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/session"
	"github.com/jask/despacho/internal/workflow"
)

// WatchWorkflow journals the transitions of w that matter to an operator.
func (r *Recorder) WatchWorkflow(w *workflow.Workflow) {
	w.Subscribe(func(c workflow.Change) {
		kind := transitionKind(c)
		if kind == "" {
			return
		}
		r.Record(repository.Entry{
			Kind:      kind,
			OrderNo:   c.OrderNumber,
			FromState: c.From.String(),
			ToState:   c.To.String(),
			Message:   c.Notice.Text,
		})
	})
	w.OnRelease(func(order string, err error) {
		e := repository.Entry{Kind: KindReleased, OrderNo: order}
		if err != nil {
			e.Kind, e.Message = KindReleaseFailed, err.Error()
		}
		r.Record(e)
	})
}

func transitionKind(c workflow.Change) string {
	switch c.Event {
	case workflow.EvReserveDone:
		if c.Reserved {
			return KindReserved
		}
		return KindReservationFailed
	case workflow.EvExternalFetched:
		return KindExternalInfo
	case workflow.EvSubmitted:
		return KindFinalized
	case workflow.EvSubmitFailed:
		return KindSubmitFailed
	case workflow.EvCancel:
		return KindCancelled
	}
	return ""
}

// WatchSession journals logins and session ends and stamps entries with the
// current operator.
func (r *Recorder) WatchSession(m *session.Manager) {
	m.Subscribe(func(c session.Change) {
		if c.Authenticated {
			if c.User != nil {
				r.SetUser(c.User.Email)
			}
			r.Record(repository.Entry{Kind: KindLogin})
			return
		}
		e := repository.Entry{Kind: KindSessionEnded}
		if c.Reason != nil {
			e.Message = apperr.PublicMessage(c.Reason)
		}
		r.Record(e)
		r.SetUser("")
	})
}
