package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/seenimoa/finmarket/pkg/models"
)

// Phase is the lifecycle position of a retrieval session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseDegraded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = PhaseIdle
	case "loading":
		*p = PhaseLoading
	case "ready":
		*p = PhaseReady
	case "degraded":
		*p = PhaseDegraded
	default:
		return fmt.Errorf("feed: unknown phase %q", text)
	}
	return nil
}

// Terminal reports whether the phase ends a retrieval.
func (p Phase) Terminal() bool { return p == PhaseReady || p == PhaseDegraded }

// Source records where the working set and insight of a State came from.
type Source string

const (
	SourceNone     Source = ""
	SourceRemote   Source = "remote"   // both halves from the service
	SourceFallback Source = "fallback" // both halves from the local corpus
	SourceMixed    Source = "mixed"    // one half remote, one half fallback
)

// State is an immutable snapshot of the feed. Items and Insight always come
// from the same retrieval session.
type State struct {
	Phase     Phase
	Category  models.Category
	Items     []models.NewsItem
	Insight   *models.InsightSummary // nil while Idle or Loading
	Err       error                  // diagnostic only; nil when Ready
	Session   string
	Source    Source
	UpdatedAt time.Time
}

// MarshalJSON renders the state for the API and WebSocket consumers.
func (s State) MarshalJSON() ([]byte, error) {
	type wire struct {
		Phase     Phase                  `json:"phase"`
		Category  models.Category        `json:"category"`
		Items     []models.NewsItem      `json:"items"`
		Insight   *models.InsightSummary `json:"insight,omitempty"`
		Error     string                 `json:"error,omitempty"`
		Session   string                 `json:"session,omitempty"`
		Source    Source                 `json:"source,omitempty"`
		UpdatedAt time.Time              `json:"updated_at"`
	}
	w := wire{
		Phase:     s.Phase,
		Category:  s.Category,
		Items:     s.Items,
		Insight:   s.Insight,
		Session:   s.Session,
		Source:    s.Source,
		UpdatedAt: s.UpdatedAt,
	}
	if w.Items == nil {
		w.Items = []models.NewsItem{}
	}
	if s.Err != nil {
		w.Error = s.Err.Error()
	}
	return json.Marshal(w)
}
