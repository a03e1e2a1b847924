// Package transform normalizes the backend's job payloads into the canonical
// job model used by dispatch sessions.
package transform

import (
	"errors"
	"fmt"

	"dispatchdesk/internal/model"
)

// Kind tags which backend payload a Source carries.
type Kind int

const (
	KindOptimized Kind = iota + 1
	KindRefetched
)

func (k Kind) String() string {
	switch k {
	case KindOptimized:
		return "optimized"
	case KindRefetched:
		return "refetched"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Source is one of the two payload shapes; exactly the field matching Kind is set.
type Source struct {
	Kind      Kind
	Optimized *model.OptimizeResult
	Refetched *model.Paged[model.RawJob]
}

func FromOptimized(r *model.OptimizeResult) Source {
	return Source{Kind: KindOptimized, Optimized: r}
}

func FromRefetched(p *model.Paged[model.RawJob]) Source {
	return Source{Kind: KindRefetched, Refetched: p}
}

// FromJob wraps a single GET /jobs/{id} record as a one-element list.
func FromJob(j *model.RawJob) Source {
	if j == nil {
		return FromRefetched(nil)
	}
	return FromRefetched(&model.Paged[model.RawJob]{Value: []model.RawJob{*j}, Count: 1})
}

// Result is the canonical job list.
type Result struct {
	Value               []model.Job                `json:"value"`
	UnassignedShipments []model.UnassignedShipment `json:"unassignedShipments"`
}

var (
	ErrUnknownSource = errors.New("transform: unknown source kind")
	ErrStructural    = errors.New("transform: malformed source")
	ErrRunnerClosed  = errors.New("transform: runner closed")
)

// StructuralError reports a payload missing an expected nested collection,
// or one whose jobs break the working set rules (Reason says which).
type StructuralError struct {
	Kind   Kind
	Path   string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("transform: %s source has %s at %s", e.Kind, e.Reason, e.Path)
	}
	return fmt.Sprintf("transform: %s source is missing %s", e.Kind, e.Path)
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }
