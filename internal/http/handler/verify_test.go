package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clearcheck.app/engine/internal/engine"
	"clearcheck.app/engine/internal/http/handler"
	"clearcheck.app/engine/internal/model"
	"clearcheck.app/engine/internal/queue"
	"clearcheck.app/engine/internal/store"
)

var _ = Describe("VerifyHandler", func() {
	var (
		verifier *mockVerifier
		producer *mockProducer
		requests *mockRequestStore
		router   *gin.Engine
	)

	BeforeEach(func() {
		verifier = &mockVerifier{}
		producer = &mockProducer{}
		requests = &mockRequestStore{}

		h := handler.NewVerifyHandler(verifier, producer, requests, "X-Trace-Id")
		router = gin.New()
		router.POST("/api/v1/verify", h.Verify)
		router.POST("/api/v1/verify/async", h.VerifyAsync)
		router.GET("/api/v1/verify/:id", h.GetResult)
	})

	post := func(path, body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	validBody := `{"units": [{"kind": "original_text", "text": "check this claim"}], "deadline_ms": 60000}`

	Describe("POST /api/v1/verify", func() {
		It("runs the session inline and returns the result", func() {
			verifier.verifyFn = func(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error) {
				Expect(units).To(HaveLen(1))
				Expect(units[0].Kind).To(Equal(model.UnitOriginalText))
				Expect(units[0].Text).To(Equal("check this claim"))
				Expect(deadline).To(Equal(60 * time.Second))
				return &model.FinalResult{SessionID: "sess-1", Source: model.SourcePrimary}, nil
			}

			rec := post("/api/v1/verify", validBody, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var result model.FinalResult
			Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
			Expect(result.SessionID).To(Equal("sess-1"))
			Expect(result.Source).To(Equal(model.SourcePrimary))
		})

		It("rejects a body without units", func() {
			rec := post("/api/v1/verify", `{"units": []}`, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed json", func() {
			rec := post("/api/v1/verify", `{broken`, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps malformed input errors to 400", func() {
			verifier.verifyFn = func(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error) {
				return nil, fmt.Errorf("%w: unit 0 has neither text nor url", engine.ErrMalformedInput)
			}
			rec := post("/api/v1/verify", validBody, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps engine failures to 500", func() {
			verifier.verifyFn = func(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error) {
				return nil, errors.New("engine shut down")
			}
			rec := post("/api/v1/verify", validBody, nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("POST /api/v1/verify/async", func() {
		It("persists, enqueues and returns 202", func() {
			rec := post("/api/v1/verify/async", validBody, map[string]string{"X-Trace-Id": "trace-42"})
			Expect(rec.Code).To(Equal(http.StatusAccepted))

			Expect(requests.capturedRequest).NotTo(BeNil())
			Expect(requests.capturedRequest.Status).To(Equal(model.RequestPending))
			Expect(requests.capturedRequest.ID).NotTo(BeZero())

			Expect(producer.capturedTask).NotTo(BeNil())
			Expect(producer.capturedTask.RequestID).To(Equal(requests.capturedRequest.ID))
			Expect(producer.capturedTask.Units).To(HaveLen(1))
			Expect(producer.capturedTask.DeadlineMs).To(Equal(int64(60000)))
			Expect(producer.capturedTask.TraceID).NotTo(BeNil())
			Expect(*producer.capturedTask.TraceID).To(Equal("trace-42"))

			var resp struct {
				RequestID int64  `json:"request_id"`
				Status    string `json:"status"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.RequestID).To(Equal(requests.capturedRequest.ID))
			Expect(resp.Status).To(Equal("pending"))
		})

		It("returns 500 when persistence fails", func() {
			requests.createFn = func(ctx context.Context, req *model.VerificationRequest) error {
				return errors.New("db down")
			}
			rec := post("/api/v1/verify/async", validBody, nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(producer.capturedTask).To(BeNil())
		})

		It("marks the request failed when enqueue fails", func() {
			producer.enqueueFn = func(ctx context.Context, task queue.VerifyTask) error {
				return errors.New("redis down")
			}
			rec := post("/api/v1/verify/async", validBody, nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(requests.failedID).To(Equal(requests.capturedRequest.ID))
		})
	})

	Describe("GET /api/v1/verify/:id", func() {
		It("returns the stored request", func() {
			completed := time.Now()
			requests.getByIDFn = func(ctx context.Context, id int64) (*model.VerificationRequest, error) {
				Expect(id).To(Equal(int64(99)))
				return &model.VerificationRequest{
					ID:          99,
					Status:      model.RequestCompleted,
					CompletedAt: &completed,
					Result:      &model.FinalResult{SessionID: "sess-9", Source: model.SourceHedge},
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/verify/99", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var stored model.VerificationRequest
			Expect(json.Unmarshal(rec.Body.Bytes(), &stored)).To(Succeed())
			Expect(stored.ID).To(Equal(int64(99)))
			Expect(stored.Status).To(Equal(model.RequestCompleted))
			Expect(stored.Result.SessionID).To(Equal("sess-9"))
		})

		It("returns 404 for an unknown request", func() {
			requests.getByIDFn = func(ctx context.Context, id int64) (*model.VerificationRequest, error) {
				return nil, store.ErrNotFound
			}
			req := httptest.NewRequest(http.MethodGet, "/api/v1/verify/12345", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a non-numeric id", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/verify/not-a-number", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
