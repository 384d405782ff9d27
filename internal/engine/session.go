package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"clearcheck.app/engine/internal/model"
)

// completion is the per-session message a finished job delivers to the
// coordinator. Stage completions are explicit continuations: the coordinator
// reads them from one channel instead of wiring ad hoc callbacks.
type completion struct {
	Task   string
	Stage  Stage
	Result JobResult
}

// Session is the isolated execution context for one end-to-end request.
// Each session owns its artifacts and its completion channel; jobs carry the
// session ID so results route back here and never into another request's
// state.
type Session struct {
	ID        string
	CreatedAt time.Time

	events    chan completion
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	terminal  bool
	handles   map[string]*Handle
	unitOrder []string
	units     map[string]model.ContentUnit
	claims    []model.Claim
	enriched  map[string]*model.EnrichedClaim
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		events:    make(chan completion, 64),
		done:      make(chan struct{}),
		handles:   make(map[string]*Handle),
		units:     make(map[string]model.ContentUnit),
		enriched:  make(map[string]*model.EnrichedClaim),
	}
}

// Events is the session's completion stream, consumed by the coordinator.
func (s *Session) Events() <-chan completion { return s.events }

// Track registers a submitted job under its logical task name and forwards
// its resolution to the session's event channel. Results landing after
// teardown are dropped.
func (s *Session) Track(task string, h *Handle) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	s.handles[task] = h
	s.mu.Unlock()

	go func() {
		select {
		case <-h.Done():
		case <-s.done:
			return
		}
		res, _ := h.Result()
		select {
		case s.events <- completion{Task: task, Stage: res.Stage, Result: res}:
		case <-s.done:
		}
	}()
}

// AddUnit records a content unit, preserving registration order for
// deterministic aggregation.
func (s *Session) AddUnit(u model.ContentUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	if _, ok := s.units[u.ID]; !ok {
		s.unitOrder = append(s.unitOrder, u.ID)
	}
	s.units[u.ID] = u
}

// Units returns the session's units in registration order.
func (s *Session) Units() []model.ContentUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ContentUnit, 0, len(s.unitOrder))
	for _, id := range s.unitOrder {
		out = append(out, s.units[id])
	}
	return out
}

// AddClaims records extracted claims and initializes their evidence slots.
func (s *Session) AddClaims(claims []model.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	for _, c := range claims {
		s.claims = append(s.claims, c)
		s.enriched[c.ID] = &model.EnrichedClaim{Claim: c}
	}
}

// Claims returns a snapshot of the session's claims in extraction order.
func (s *Session) Claims() []model.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Claim, len(s.claims))
	copy(out, s.claims)
	return out
}

// AddCitations appends evidence to a claim. Citations for unknown claims are
// dropped; they can only come from a stale or foreign job.
func (s *Session) AddCitations(claimID string, citations []model.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	ec, ok := s.enriched[claimID]
	if !ok {
		return
	}
	ec.Citations = append(ec.Citations, citations...)
}

// EnrichedClaims returns the claims with whatever evidence has landed so
// far, in extraction order.
func (s *Session) EnrichedClaims() []model.EnrichedClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EnrichedClaim, 0, len(s.claims))
	for _, c := range s.claims {
		out = append(out, *s.enriched[c.ID])
	}
	return out
}

// Terminal reports whether the session has been torn down.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Close tears the session down: late results are dropped, unresolved handles
// resolve as cancelled and the artifact maps are released. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.terminal = true
		handles := s.handles
		s.handles = nil
		s.mu.Unlock()
		close(s.done)

		for task, h := range handles {
			h.resolve(JobResult{
				JobID: h.job.ID, Stage: h.job.Stage, Task: task,
				Status: StatusCancelled, Err: ErrJobCancelled,
			})
		}
	})
}
