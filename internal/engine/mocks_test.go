package engine_test

import (
	"context"

	"clearcheck.app/engine/internal/model"
)

type mockExpander struct {
	expandFn func(ctx context.Context, unit model.ContentUnit) ([]model.ContentUnit, error)
}

func (m *mockExpander) Expand(ctx context.Context, unit model.ContentUnit) ([]model.ContentUnit, error) {
	if m.expandFn != nil {
		return m.expandFn(ctx, unit)
	}
	return nil, nil
}

type mockExtractor struct {
	extractFn func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error)
}

func (m *mockExtractor) Extract(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
	if m.extractFn != nil {
		return m.extractFn(ctx, unit)
	}
	return nil, nil
}

type mockGatherer struct {
	name     string
	gatherFn func(ctx context.Context, claim model.Claim) ([]model.Citation, error)
}

func (m *mockGatherer) Name() string {
	if m.name != "" {
		return m.name
	}
	return "mock"
}

func (m *mockGatherer) Gather(ctx context.Context, claim model.Claim) ([]model.Citation, error) {
	if m.gatherFn != nil {
		return m.gatherFn(ctx, claim)
	}
	return nil, nil
}

type mockAdjudicator struct {
	adjudicateFn func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error)
}

func (m *mockAdjudicator) Adjudicate(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
	if m.adjudicateFn != nil {
		return m.adjudicateFn(ctx, claims, extra)
	}
	verdicts := make([]model.Verdict, len(claims))
	for i, c := range claims {
		verdicts[i] = model.Verdict{ClaimID: c.ID, ClaimText: c.Text, Verdict: model.VerdictUnverifiable}
	}
	return &model.VerdictSet{Verdicts: verdicts}, nil
}

type mockHedge struct {
	adjudicateFn func(ctx context.Context, claims []model.Claim, extra string) (*model.VerdictSet, error)
}

func (m *mockHedge) AdjudicateDirect(ctx context.Context, claims []model.Claim, extra string) (*model.VerdictSet, error) {
	if m.adjudicateFn != nil {
		return m.adjudicateFn(ctx, claims, extra)
	}
	verdicts := make([]model.Verdict, len(claims))
	for i, c := range claims {
		verdicts[i] = model.Verdict{ClaimID: c.ID, ClaimText: c.Text, Verdict: model.VerdictUnverifiable}
	}
	return &model.VerdictSet{Verdicts: verdicts}, nil
}

type mockFallback struct {
	explainFn func(ctx context.Context, originalText string) (string, error)
	calls     int
}

func (m *mockFallback) Explain(ctx context.Context, originalText string) (string, error) {
	m.calls++
	if m.explainFn != nil {
		return m.explainFn(ctx, originalText)
	}
	return "no verifiable claims found", nil
}
