package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clearcheck.app/engine/common/logger"
	"clearcheck.app/engine/internal/capability"
	"clearcheck.app/engine/internal/model"
)

// StageTimeouts holds the advisory per-job timeouts, one per stage.
type StageTimeouts struct {
	Expand     time.Duration
	Extract    time.Duration
	Evidence   time.Duration
	Adjudicate time.Duration
	Hedge      time.Duration
	Fallback   time.Duration
}

// evidenceOutcome is the value an evidence job resolves with.
type evidenceOutcome struct {
	ClaimID   string
	Citations []model.Citation
}

// coordinator drives one session through the stage graph without stage-wide
// barriers: every completion immediately submits whatever it unblocks, and
// the only gates are "claim set known" and "all evidence settled".
type coordinator struct {
	queue    *WorkQueue
	caps     *capability.Registry
	sess     *Session
	timeouts StageTimeouts
	grace    time.Duration

	pendingExpansion  int
	pendingExtraction int
	pendingEvidence   int

	evidenceSubmitted int
	evidenceCompleted int
	expandedUnits     int

	claimSetKnown     bool
	hedgeSubmitted    bool
	primarySubmitted  bool
	fallbackSubmitted bool
	deadlineHit       bool

	primaryDone  bool
	hedgeDone    bool
	fallbackDone bool

	primary     *model.VerdictSet
	hedge       *model.VerdictSet
	explanation string

	originals []model.ContentUnit
	start     time.Time
}

func newCoordinator(queue *WorkQueue, caps *capability.Registry, sess *Session, timeouts StageTimeouts, grace time.Duration) *coordinator {
	return &coordinator{
		queue:    queue,
		caps:     caps,
		sess:     sess,
		timeouts: timeouts,
		grace:    grace,
	}
}

func (c *coordinator) run(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(c.sess.ID),
		Component: "engine.coordinator",
	})

	c.start = time.Now()
	c.originals = units

	for _, u := range units {
		c.sess.AddUnit(u)
		c.submitExpansion(ctx, u)
	}

	deadlineTimer := time.NewTimer(deadline)
	defer deadlineTimer.Stop()

	var graceCh <-chan time.Time

	for {
		if c.finished() {
			// A non-empty primary can finish the session while the losing
			// hedge is still queued; harvest it instead of letting a worker
			// burn a slot on a dead session.
			c.queue.CancelSession(c.sess.ID)
			return c.aggregate(), nil
		}

		select {
		case <-ctx.Done():
			c.queue.CancelSession(c.sess.ID)
			return nil, ctx.Err()

		case ev := <-c.sess.Events():
			c.handle(ctx, ev)

		case <-deadlineTimer.C:
			ch, done := c.onDeadline(ctx)
			if done {
				return c.aggregate(), nil
			}
			graceCh = ch

		case <-graceCh:
			slog.WarnContext(ctx, "grace period elapsed, aggregating partial results")
			c.queue.CancelSession(c.sess.ID)
			return c.aggregate(), nil
		}
	}
}

func (c *coordinator) handle(ctx context.Context, ev completion) {
	switch ev.Stage {
	case StageExpansion:
		c.onExpansion(ctx, ev)
	case StageExtraction:
		c.onExtraction(ctx, ev)
	case StageEvidence:
		c.onEvidence(ctx, ev)
	case StageHedge:
		c.hedgeDone = true
		if ev.Result.Status == StatusSuccess {
			c.hedge, _ = ev.Result.Value.(*model.VerdictSet)
		} else {
			slog.WarnContext(ctx, "hedge adjudication failed", "error", ev.Result.Err)
		}
	case StageAdjudication:
		c.primaryDone = true
		if ev.Result.Status == StatusSuccess {
			c.primary, _ = ev.Result.Value.(*model.VerdictSet)
		} else {
			slog.WarnContext(ctx, "primary adjudication failed", "error", ev.Result.Err)
		}
	case StageFallback:
		c.fallbackDone = true
		if ev.Result.Status == StatusSuccess {
			c.explanation, _ = ev.Result.Value.(string)
		}
		if c.explanation == "" {
			c.explanation = defaultNoClaimsExplanation
		}
	}
}

func (c *coordinator) onExpansion(ctx context.Context, ev completion) {
	c.pendingExpansion--

	unitID := strings.TrimPrefix(ev.Task, "expand:")
	targets := []string{unitID}

	if ev.Result.Status == StatusSuccess {
		expanded, _ := ev.Result.Value.([]model.ContentUnit)
		for _, u := range expanded {
			c.expandedUnits++
			c.sess.AddUnit(u)
			targets = append(targets, u.ID)
		}
	} else if ev.Result.Status != StatusCancelled {
		// Expansion failures still leave the original unit extractable.
		slog.WarnContext(ctx, "expansion failed, extracting original only",
			"task", ev.Task, "error", ev.Result.Err)
	}

	if c.deadlineHit || ev.Result.Status == StatusCancelled {
		c.checkClaimSetKnown(ctx)
		return
	}

	for _, id := range targets {
		c.submitExtraction(ctx, id)
	}
	c.checkClaimSetKnown(ctx)
}

func (c *coordinator) onExtraction(ctx context.Context, ev completion) {
	c.pendingExtraction--

	if ev.Result.Status == StatusSuccess && !c.deadlineHit {
		claims, _ := ev.Result.Value.([]model.Claim)
		c.sess.AddClaims(claims)
		for _, claim := range claims {
			for _, g := range c.caps.Evidence {
				c.submitEvidence(ctx, claim, g)
			}
		}
	} else if ev.Result.Status != StatusSuccess && ev.Result.Status != StatusCancelled {
		// A failed extraction is a gap, not a session failure.
		slog.WarnContext(ctx, "extraction failed",
			"task", ev.Task, "status", string(ev.Result.Status), "error", ev.Result.Err)
	}

	c.checkClaimSetKnown(ctx)
}

func (c *coordinator) onEvidence(ctx context.Context, ev completion) {
	c.pendingEvidence--

	switch ev.Result.Status {
	case StatusSuccess:
		c.evidenceCompleted++
		if out, ok := ev.Result.Value.(evidenceOutcome); ok {
			c.sess.AddCitations(out.ClaimID, out.Citations)
		}
	case StatusCancelled:
		// Discarded by the session deadline.
	default:
		slog.DebugContext(ctx, "evidence job failed, claim keeps its gap",
			"task", ev.Task, "error", ev.Result.Err)
	}

	c.maybeSubmitPrimary(ctx)
}

// checkClaimSetKnown fires once expansion and extraction have both drained.
// Zero claims short-circuits straight to the fallback path; otherwise the
// hedge is submitted immediately and the primary as soon as evidence is
// exhausted.
func (c *coordinator) checkClaimSetKnown(ctx context.Context) {
	if c.claimSetKnown || c.pendingExpansion > 0 || c.pendingExtraction > 0 {
		return
	}
	c.claimSetKnown = true

	claims := c.sess.Claims()
	slog.InfoContext(ctx, "claim set known",
		"claims", len(claims),
		"evidence_submitted", c.evidenceSubmitted)

	if len(claims) == 0 {
		c.submitFallback(ctx)
		return
	}

	c.submitHedge(ctx, claims)
	c.maybeSubmitPrimary(ctx)
}

func (c *coordinator) maybeSubmitPrimary(ctx context.Context) {
	if !c.claimSetKnown || c.primarySubmitted || c.fallbackSubmitted || c.pendingEvidence > 0 {
		return
	}
	c.submitPrimary(ctx)
}

// onDeadline is terminal for the session: queued jobs are cancelled and
// adjudication proceeds on whatever evidence completed. Returns the grace
// channel bounding the remaining wait, or done=true when nothing remains
// worth waiting for.
func (c *coordinator) onDeadline(ctx context.Context) (<-chan time.Time, bool) {
	c.deadlineHit = true
	cancelled := c.queue.CancelSession(c.sess.ID)
	slog.WarnContext(ctx, "session deadline exceeded",
		"cancelled_jobs", cancelled,
		"evidence_completed", c.evidenceCompleted,
		"evidence_submitted", c.evidenceSubmitted)

	if !c.claimSetKnown {
		// Whatever claims have landed are the claim set now.
		c.claimSetKnown = true
	}

	claims := c.sess.Claims()
	if len(claims) == 0 && !c.primarySubmitted && !c.fallbackSubmitted {
		// No claims and no adjudication in flight: nothing can produce
		// verdicts anymore, so the grace period has nothing to wait for.
		if c.explanation == "" {
			c.explanation = defaultNoClaimsExplanation
		}
		return nil, true
	}
	if len(claims) > 0 && !c.primarySubmitted && !c.fallbackSubmitted {
		c.submitPrimary(ctx)
	}

	timer := time.NewTimer(c.grace)
	return timer.C, false
}

func (c *coordinator) finished() bool {
	if c.fallbackSubmitted {
		return c.fallbackDone
	}
	if !c.primarySubmitted {
		return false
	}
	if !c.primaryDone {
		return false
	}
	if !c.primary.Empty() {
		return true
	}
	// Empty primary: the hedge decides, if one is coming.
	return !c.hedgeSubmitted || c.hedgeDone
}

func (c *coordinator) aggregate() *model.FinalResult {
	stats := model.SessionStats{
		Units:             len(c.originals),
		ExpandedUnits:     c.expandedUnits,
		Claims:            len(c.sess.Claims()),
		EvidenceSubmitted: c.evidenceSubmitted,
		EvidenceCompleted: c.evidenceCompleted,
		DeadlineHit:       c.deadlineHit,
		Elapsed:           time.Since(c.start),
	}
	return buildFinalResult(c.sess, c.primary, c.hedge, c.explanation, stats)
}

// --- job submission ---

func (c *coordinator) submit(ctx context.Context, stage Stage, task string, priority int, timeout time.Duration, payload Payload) bool {
	job := NewJob(c.sess.ID, stage, task, priority, timeout, payload)
	h, err := c.queue.Submit(job)
	if err != nil {
		slog.ErrorContext(ctx, "job submission rejected", "task", task, "error", err)
		return false
	}
	c.sess.Track(task, h)
	return true
}

func (c *coordinator) submitExpansion(ctx context.Context, unit model.ContentUnit) {
	expander := c.caps.Expander
	task := fmt.Sprintf("expand:%s", unit.ID)
	if c.submit(ctx, StageExpansion, task, PriorityExpansion, c.timeouts.Expand, func(jctx context.Context) (any, error) {
		return expander.Expand(jctx, unit)
	}) {
		c.pendingExpansion++
	}
}

func (c *coordinator) submitExtraction(ctx context.Context, unitID string) {
	var unit model.ContentUnit
	for _, u := range c.sess.Units() {
		if u.ID == unitID {
			unit = u
			break
		}
	}
	extractor := c.caps.Extractor
	task := fmt.Sprintf("extract:%s", unitID)
	if c.submit(ctx, StageExtraction, task, PriorityExtraction, c.timeouts.Extract, func(jctx context.Context) (any, error) {
		return extractor.Extract(jctx, unit)
	}) {
		c.pendingExtraction++
	}
}

func (c *coordinator) submitEvidence(ctx context.Context, claim model.Claim, g capability.EvidenceGatherer) {
	task := fmt.Sprintf("evidence:%s:%s", claim.ID, g.Name())
	source := g.Name()
	if c.submit(ctx, StageEvidence, task, PriorityEvidence, c.timeouts.Evidence, func(jctx context.Context) (any, error) {
		citations, err := g.Gather(jctx, claim)
		if err != nil {
			return nil, err
		}
		for i := range citations {
			if citations[i].Source == "" {
				citations[i].Source = source
			}
		}
		return evidenceOutcome{ClaimID: claim.ID, Citations: citations}, nil
	}) {
		c.pendingEvidence++
		c.evidenceSubmitted++
	}
}

func (c *coordinator) submitHedge(ctx context.Context, claims []model.Claim) {
	if c.hedgeSubmitted {
		return
	}
	hedge := c.caps.Hedge
	extra := c.extraContext()
	if c.submit(ctx, StageHedge, "adjudicate:hedge", PriorityHedge, c.timeouts.Hedge, func(jctx context.Context) (any, error) {
		return hedge.AdjudicateDirect(jctx, claims, extra)
	}) {
		c.hedgeSubmitted = true
	}
}

func (c *coordinator) submitPrimary(ctx context.Context) {
	if c.primarySubmitted {
		return
	}
	primary := c.caps.Primary
	enriched := c.prepareEnrichedClaims()
	extra := c.extraContext()
	if c.submit(ctx, StageAdjudication, "adjudicate:primary", PriorityAdjudication, c.timeouts.Adjudicate, func(jctx context.Context) (any, error) {
		return primary.Adjudicate(jctx, enriched, extra)
	}) {
		c.primarySubmitted = true
	}
}

func (c *coordinator) submitFallback(ctx context.Context) {
	if c.fallbackSubmitted {
		return
	}
	fallback := c.caps.Fallback
	text := c.extraContext()
	if c.submit(ctx, StageFallback, "fallback:no-claims", PriorityFallback, c.timeouts.Fallback, func(jctx context.Context) (any, error) {
		return fallback.Explain(jctx, text)
	}) {
		c.fallbackSubmitted = true
	}
}

// prepareEnrichedClaims snapshots the claims with deduplicated, quality
// filtered citations for the primary adjudicator.
func (c *coordinator) prepareEnrichedClaims() []model.EnrichedClaim {
	enriched := c.sess.EnrichedClaims()
	for i := range enriched {
		enriched[i].Citations = filterCitations(dedupeCitations(enriched[i].Citations))
	}
	return enriched
}

func (c *coordinator) extraContext() string {
	var parts []string
	for _, u := range c.originals {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, "\n\n")
}

const defaultNoClaimsExplanation = "No independently verifiable claims were found in the submitted content, so there is nothing to check against external sources."
