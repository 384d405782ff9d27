package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clearcheck.app/engine/internal/capability"
	"clearcheck.app/engine/internal/engine"
	"clearcheck.app/engine/internal/model"
)

func newTestEngine(registry *capability.Registry) *engine.Engine {
	eng, err := engine.New(registry, engine.Options{
		Queue: engine.QueueConfig{
			Ceilings: map[engine.Stage]int{
				engine.StageExpansion:  4,
				engine.StageExtraction: 4,
				engine.StageEvidence:   6,
			},
			SoftCap:   64,
			AgingRate: 1,
		},
		Pool: engine.PoolConfig{Workers: 8},
		Timeouts: engine.StageTimeouts{
			Expand:     time.Second,
			Extract:    time.Second,
			Evidence:   time.Second,
			Adjudicate: time.Second,
			Hedge:      time.Second,
			Fallback:   time.Second,
		},
		DefaultDeadline: 10 * time.Second,
		Grace:           time.Second,
	})
	Expect(err).NotTo(HaveOccurred())
	eng.Start(context.Background())
	DeferCleanup(eng.Shutdown)
	return eng
}

func originalUnit(text string) model.ContentUnit {
	return model.ContentUnit{Kind: model.UnitOriginalText, Text: text}
}

var _ = Describe("Engine", func() {
	var (
		expander  *mockExpander
		extractor *mockExtractor
		primary   *mockAdjudicator
		hedge     *mockHedge
		fallback  *mockFallback
	)

	BeforeEach(func() {
		expander = &mockExpander{}
		extractor = &mockExtractor{}
		primary = &mockAdjudicator{}
		hedge = &mockHedge{}
		fallback = &mockFallback{}
	})

	registry := func(gatherers ...capability.EvidenceGatherer) *capability.Registry {
		return &capability.Registry{
			Expander:  expander,
			Extractor: extractor,
			Evidence:  gatherers,
			Primary:   primary,
			Hedge:     hedge,
			Fallback:  fallback,
		}
	}

	Describe("input validation", func() {
		It("rejects an empty unit set", func() {
			eng := newTestEngine(registry())
			_, err := eng.Verify(context.Background(), nil, 0)
			Expect(errors.Is(err, engine.ErrMalformedInput)).To(BeTrue())
		})

		It("rejects a unit with neither text nor url", func() {
			eng := newTestEngine(registry())
			_, err := eng.Verify(context.Background(), []model.ContentUnit{
				{Kind: model.UnitOriginalText, Text: "   "},
			}, 0)
			Expect(errors.Is(err, engine.ErrMalformedInput)).To(BeTrue())
		})

		It("rejects a unit without a kind", func() {
			eng := newTestEngine(registry())
			_, err := eng.Verify(context.Background(), []model.ContentUnit{
				{Text: "some text"},
			}, 0)
			Expect(errors.Is(err, engine.ErrMalformedInput)).To(BeTrue())
		})
	})

	Describe("full pipeline", func() {
		It("expands, extracts, gathers and adjudicates with full lineage", func() {
			expander.expandFn = func(ctx context.Context, unit model.ContentUnit) ([]model.ContentUnit, error) {
				if !unit.IsExpandable() {
					return nil, nil
				}
				return []model.ContentUnit{
					{ID: model.NewUnitID(), Kind: model.UnitLinkContext, Text: "linked page one", ParentID: unit.ID},
					{ID: model.NewUnitID(), Kind: model.UnitLinkContext, Text: "linked page two", ParentID: unit.ID},
				}, nil
			}
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				// Two claims from the original, one from each expanded unit.
				n := 1
				if unit.Kind == model.UnitOriginalText {
					n = 2
				}
				claims := make([]model.Claim, n)
				for i := range claims {
					claims[i] = model.Claim{
						ID:     model.NewUnitID(),
						Text:   fmt.Sprintf("claim %d from %s", i, unit.Kind),
						UnitID: unit.ID,
					}
				}
				return claims, nil
			}

			var mu sync.Mutex
			gathered := map[string]int{}
			gatherer := func(name string) *mockGatherer {
				return &mockGatherer{name: name, gatherFn: func(ctx context.Context, claim model.Claim) ([]model.Citation, error) {
					mu.Lock()
					gathered[name]++
					mu.Unlock()
					return []model.Citation{{
						URL:     "https://evidence.example/" + claim.ID,
						Title:   "evidence for " + claim.Text,
						Snippet: "supporting snippet",
					}}, nil
				}}
			}

			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				verdicts := make([]model.Verdict, len(claims))
				for i, c := range claims {
					// Every claim arrives with its gathered evidence attached.
					Expect(c.Citations).NotTo(BeEmpty())
					verdicts[i] = model.Verdict{ClaimID: c.ID, Verdict: model.VerdictTrue}
				}
				return &model.VerdictSet{Verdicts: verdicts, Summary: "all verified"}, nil
			}

			eng := newTestEngine(registry(gatherer("source_a"), gatherer("source_b")))
			result, err := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("post with links")}, 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Source).To(Equal(model.SourcePrimary))
			Expect(result.Summary).To(Equal("all verified"))

			// 1 original + 2 expanded units, 2+1+1 claims.
			Expect(result.Stats.Units).To(Equal(1))
			Expect(result.Stats.ExpandedUnits).To(Equal(2))
			Expect(result.Stats.Claims).To(Equal(4))

			// One evidence job per (claim, gatherer) pair.
			Expect(result.Stats.EvidenceSubmitted).To(Equal(8))
			Expect(result.Stats.EvidenceCompleted).To(Equal(8))
			mu.Lock()
			Expect(gathered["source_a"]).To(Equal(4))
			Expect(gathered["source_b"]).To(Equal(4))
			mu.Unlock()

			// Three units produced claims; each verdict traces to its unit.
			Expect(result.Results).To(HaveLen(3))
			Expect(result.VerdictCount()).To(Equal(4))
			for _, ur := range result.Results {
				for _, v := range ur.Verdicts {
					Expect(v.ClaimID).NotTo(BeEmpty())
					Expect(v.Citations).NotTo(BeEmpty())
				}
			}
		})

		It("verifies the original unit even when expansion fails", func() {
			expander.expandFn = func(ctx context.Context, unit model.ContentUnit) ([]model.ContentUnit, error) {
				return nil, errors.New("network down")
			}
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				return []model.Claim{{ID: "c1", Text: "claim", UnitID: unit.ID}}, nil
			}
			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				return &model.VerdictSet{Verdicts: []model.Verdict{{ClaimID: "c1", Verdict: model.VerdictTrue}}}, nil
			}

			eng := newTestEngine(registry())
			result, err := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("text")}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Source).To(Equal(model.SourcePrimary))
			Expect(result.VerdictCount()).To(Equal(1))
		})

		It("treats evidence failures as gaps, not session failures", func() {
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				return []model.Claim{{ID: "c1", Text: "claim", UnitID: unit.ID}}, nil
			}
			broken := &mockGatherer{name: "broken", gatherFn: func(ctx context.Context, claim model.Claim) ([]model.Citation, error) {
				return nil, errors.New("api quota exceeded")
			}}
			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				Expect(claims).To(HaveLen(1))
				Expect(claims[0].Citations).To(BeEmpty())
				return &model.VerdictSet{Verdicts: []model.Verdict{{ClaimID: "c1", Verdict: model.VerdictUnverifiable}}}, nil
			}

			eng := newTestEngine(registry(broken))
			result, err := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("text")}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Source).To(Equal(model.SourcePrimary))
			Expect(result.Stats.EvidenceSubmitted).To(Equal(1))
			Expect(result.Stats.EvidenceCompleted).To(Equal(0))
		})
	})

	Describe("no-claims fallback", func() {
		It("returns an explanation when extraction finds nothing", func() {
			fallback.explainFn = func(ctx context.Context, originalText string) (string, error) {
				Expect(originalText).To(ContainSubstring("just an opinion"))
				return "this post is opinion, not checkable fact", nil
			}

			eng := newTestEngine(registry())
			result, err := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("just an opinion")}, 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Source).To(Equal(model.SourceFallback))
			Expect(result.Explanation).To(Equal("this post is opinion, not checkable fact"))
			Expect(result.Results).To(BeEmpty())
			Expect(fallback.calls).To(Equal(1))
		})

		It("runs the fallback once even with multiple empty units", func() {
			eng := newTestEngine(registry())
			result, err := eng.Verify(context.Background(), []model.ContentUnit{
				originalUnit("first"),
				originalUnit("second"),
				originalUnit("third"),
			}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Source).To(Equal(model.SourceFallback))
			Expect(fallback.calls).To(Equal(1))
		})

		It("still answers when the fallback capability itself fails", func() {
			fallback.explainFn = func(ctx context.Context, originalText string) (string, error) {
				return "", errors.New("llm down")
			}

			eng := newTestEngine(registry())
			result, err := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("opinion")}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Source).To(Equal(model.SourceFallback))
			Expect(result.Explanation).NotTo(BeEmpty())
		})
	})

	Describe("hedge substitution", func() {
		It("serves the hedge verdicts when the primary returns nothing", func() {
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				return []model.Claim{{ID: "c1", Text: "claim", UnitID: unit.ID}}, nil
			}
			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				return &model.VerdictSet{}, nil
			}
			hedge.adjudicateFn = func(ctx context.Context, claims []model.Claim, extra string) (*model.VerdictSet, error) {
				return &model.VerdictSet{Verdicts: []model.Verdict{
					{ClaimID: "c1", Verdict: model.VerdictFalse, Justification: "known hoax"},
				}}, nil
			}

			eng := newTestEngine(registry())
			result, err := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("text")}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Source).To(Equal(model.SourceHedge))
			Expect(result.VerdictCount()).To(Equal(1))
			Expect(result.Results[0].Verdicts[0].Verdict).To(Equal(model.VerdictFalse))
		})

		It("serves the hedge when the primary adjudicator errors", func() {
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				return []model.Claim{{ID: "c1", Text: "claim", UnitID: unit.ID}}, nil
			}
			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				return nil, errors.New("model overloaded")
			}

			eng := newTestEngine(registry())
			result, err := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("text")}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Source).To(Equal(model.SourceHedge))
		})
	})

	Describe("session deadline", func() {
		It("adjudicates on partial evidence when the deadline hits", func() {
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				return []model.Claim{{ID: "c1", Text: "claim", UnitID: unit.ID}}, nil
			}
			slow := &mockGatherer{name: "slow", gatherFn: func(ctx context.Context, claim model.Claim) ([]model.Citation, error) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(10 * time.Second):
					return nil, nil
				}
			}}
			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				return &model.VerdictSet{Verdicts: []model.Verdict{{ClaimID: "c1", Verdict: model.VerdictUnverifiable}}}, nil
			}

			eng, err := engine.New(registry(slow), engine.Options{
				Pool: engine.PoolConfig{Workers: 4},
				Timeouts: engine.StageTimeouts{
					Expand: time.Second, Extract: time.Second,
					Evidence: 30 * time.Second, Adjudicate: time.Second,
					Hedge: time.Second, Fallback: time.Second,
				},
				DefaultDeadline: 10 * time.Second,
				Grace:           2 * time.Second,
			})
			Expect(err).NotTo(HaveOccurred())
			eng.Start(context.Background())
			DeferCleanup(eng.Shutdown)

			start := time.Now()
			result, verr := eng.Verify(context.Background(), []model.ContentUnit{originalUnit("text")}, 300*time.Millisecond)
			Expect(verr).NotTo(HaveOccurred())

			Expect(result.Stats.DeadlineHit).To(BeTrue())
			Expect(result.VerdictCount()).To(Equal(1))
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		})

		It("aborts when the caller context is cancelled", func() {
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(10 * time.Second):
					return nil, nil
				}
			}

			eng := newTestEngine(registry())
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			_, err := eng.Verify(ctx, []model.ContentUnit{originalUnit("text")}, 0)
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	Describe("session isolation", func() {
		It("keeps concurrent sessions' claims apart", func() {
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				return []model.Claim{{
					ID:     model.NewUnitID(),
					Text:   "claim from " + unit.Text,
					UnitID: unit.ID,
				}}, nil
			}
			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				verdicts := make([]model.Verdict, len(claims))
				for i, c := range claims {
					verdicts[i] = model.Verdict{ClaimID: c.ID, ClaimText: c.Text, Verdict: model.VerdictTrue}
				}
				return &model.VerdictSet{Verdicts: verdicts}, nil
			}

			eng := newTestEngine(registry())

			var wg sync.WaitGroup
			results := make([]*model.FinalResult, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					res, err := eng.Verify(context.Background(),
						[]model.ContentUnit{originalUnit(fmt.Sprintf("session-%d", i))}, 0)
					Expect(err).NotTo(HaveOccurred())
					results[i] = res
				}(i)
			}
			wg.Wait()

			seen := map[string]bool{}
			for i, res := range results {
				Expect(res.VerdictCount()).To(Equal(1))
				text := res.Results[0].Verdicts[0].ClaimText
				Expect(text).To(Equal(fmt.Sprintf("claim from session-%d", i)))
				Expect(seen[res.SessionID]).To(BeFalse())
				seen[res.SessionID] = true
			}
		})
	})

	Describe("extra context", func() {
		It("hands the adjudicator the original submitted text", func() {
			extractor.extractFn = func(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
				return []model.Claim{{ID: "c1", Text: "claim", UnitID: unit.ID}}, nil
			}
			var gotExtra string
			primary.adjudicateFn = func(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
				gotExtra = extra
				return &model.VerdictSet{Verdicts: []model.Verdict{{ClaimID: "c1", Verdict: model.VerdictTrue}}}, nil
			}

			eng := newTestEngine(registry())
			_, err := eng.Verify(context.Background(), []model.ContentUnit{
				originalUnit("first part"),
				originalUnit("second part"),
			}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Contains(gotExtra, "first part")).To(BeTrue())
			Expect(strings.Contains(gotExtra, "second part")).To(BeTrue())
		})
	})
})
