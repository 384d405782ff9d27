package llm

import (
	"context"
	"strings"
	"testing"

	"clearcheck.app/engine/internal/model"
)

func TestAdjudicatorEmptyClaims(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{}`}
	a := NewAdjudicator(client)

	set, err := a.Adjudicate(context.Background(), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if !set.Empty() {
		t.Errorf("verdicts = %d, want 0", len(set.Verdicts))
	}
	// No model call for nothing to judge.
	if client.lastRequest.SchemaName != "" {
		t.Error("Chat was called for an empty claim set")
	}
}

func TestAdjudicatorNormalizesVerdicts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{
		"claim_verdicts": [
			{"claim_id": "c1", "claim_text": "first", "verdict": "True", "justification": "confirmed by two checkers"},
			{"claim_id": "c2", "claim_text": "second", "verdict": "misleading", "justification": "real quote, wrong year"},
			{"claim_id": "c3", "claim_text": "third", "verdict": "no idea", "justification": "no evidence either way"}
		],
		"overall_summary": "mixed accuracy"
	}`}

	a := NewAdjudicator(client)
	set, err := a.Adjudicate(context.Background(), []model.EnrichedClaim{
		{Claim: model.Claim{ID: "c1", Text: "first"}},
		{Claim: model.Claim{ID: "c2", Text: "second"}},
		{Claim: model.Claim{ID: "c3", Text: "third"}},
	}, "")
	if err != nil {
		t.Fatal(err)
	}

	if set.Summary != "mixed accuracy" {
		t.Errorf("summary = %q", set.Summary)
	}
	want := []model.VerdictType{model.VerdictTrue, model.VerdictOutOfContext, model.VerdictUnverifiable}
	if len(set.Verdicts) != len(want) {
		t.Fatalf("verdicts = %d, want %d", len(set.Verdicts), len(want))
	}
	for i, w := range want {
		if set.Verdicts[i].Verdict != w {
			t.Errorf("verdict %d = %s, want %s", i, set.Verdicts[i].Verdict, w)
		}
	}
}

func TestBuildAdjudicationInput(t *testing.T) {
	t.Parallel()

	claims := []model.EnrichedClaim{
		{
			Claim: model.Claim{ID: "c1", Text: "claim with evidence", Entities: []string{"Acme", "2024"}},
			Citations: []model.Citation{{
				URL:       "https://checker.example/a",
				Title:     "Checked: mostly right",
				Publisher: "Example Checker",
				Rating:    "Mostly true",
				Snippet:   "the numbers hold up",
				Source:    "google_fact_checking_api",
			}},
		},
		{
			Claim: model.Claim{ID: "c2", Text: "claim without evidence"},
		},
	}

	input := buildAdjudicationInput(claims, "the original post text")

	for _, want := range []string{
		"====Original Content====",
		"the original post text",
		"id: c1",
		"entities: Acme, 2024",
		"rating: Mostly true",
		"url: https://checker.example/a",
		"id: c2",
		"evidence: none found",
	} {
		if !strings.Contains(input, want) {
			t.Errorf("input missing %q", want)
		}
	}
}

func TestHedgeAdjudicatorOmitsEvidence(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{
		"claim_verdicts": [
			{"claim_id": "c1", "claim_text": "claim", "verdict": "false", "justification": "widely debunked"}
		],
		"overall_summary": "one false claim"
	}`}

	h := NewHedgeAdjudicator(client)
	set, err := h.AdjudicateDirect(context.Background(), []model.Claim{
		{ID: "c1", Text: "claim"},
	}, "original post")
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Verdicts) != 1 || set.Verdicts[0].Verdict != model.VerdictFalse {
		t.Fatalf("verdicts = %+v", set.Verdicts)
	}

	if strings.Contains(client.lastRequest.UserPrompt, "evidence") {
		t.Errorf("hedge prompt mentions evidence: %q", client.lastRequest.UserPrompt)
	}
	if !strings.Contains(client.lastRequest.UserPrompt, "original post") {
		t.Error("hedge prompt missing original content")
	}
}

func TestFallbackExplain(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{"explanation": "the post is a personal opinion with no checkable facts"}`}
	f := NewFallback(client)

	got, err := f.Explain(context.Background(), "I think pineapple belongs on pizza")
	if err != nil {
		t.Fatal(err)
	}
	if got != "the post is a personal opinion with no checkable facts" {
		t.Errorf("explanation = %q", got)
	}
	if !strings.Contains(client.lastRequest.UserPrompt, "pineapple") {
		t.Error("fallback prompt missing original text")
	}
}
