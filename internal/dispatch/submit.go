package dispatch

import (
	"context"
	"errors"

	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/transform"
)

type AssignBackend interface {
	SoloAssign(ctx context.Context, req backend.SoloAssignRequest) (backend.Ack, error)
	AutoAssignOptimize(ctx context.Context, req backend.OptimizeRequest) (model.OptimizeResult, error)
}

// Transformer normalizes backend payloads off the caller's goroutine.
type Transformer interface {
	Transform(ctx context.Context, src transform.Source) (transform.Result, error)
}

// Outcome is the result of a submitted request. Result is set for optimize
// requests and seeds the confirmation working set.
type Outcome struct {
	Kind   Kind              `json:"mode"`
	Ack    *backend.Ack      `json:"ack,omitempty"`
	Result *transform.Result `json:"result,omitempty"`
}

type Submitter struct {
	be AssignBackend
	tr Transformer
}

func NewSubmitter(be AssignBackend, tr Transformer) *Submitter {
	return &Submitter{be: be, tr: tr}
}

func (s *Submitter) Submit(ctx context.Context, req Request) (Outcome, error) {
	switch req.Kind {
	case KindSolo:
		if req.Solo == nil {
			return Outcome{}, ErrNoDrivers
		}
		ack, err := s.be.SoloAssign(ctx, *req.Solo)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindSolo, Ack: &ack}, nil
	case KindOptimize:
		if req.Optimize == nil {
			return Outcome{}, ErrNoDrivers
		}
		raw, err := s.be.AutoAssignOptimize(ctx, *req.Optimize)
		if err != nil {
			return Outcome{}, err
		}
		res, err := s.tr.Transform(ctx, transform.FromOptimized(&raw))
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindOptimize, Result: &res}, nil
	}
	return Outcome{}, ErrNoShipments
}

const (
	genericFailure   = "Could not create the dispatch. Please try again."
	malformedFailure = "The dispatch response could not be read. Refresh and try again."
)

// UserMessage is the text shown to the operator for a failed request: the
// backend's own message when it sent one, otherwise a generic fallback.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Msg
	}
	if msg, ok := backend.Message(err); ok {
		return msg
	}
	if errors.Is(err, transform.ErrStructural) {
		return malformedFailure
	}
	return genericFailure
}
