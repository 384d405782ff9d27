package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	commonllm "clearcheck.app/engine/common/llm"
	"clearcheck.app/engine/internal/model"
)

// fakeClient replays a canned structured response into the result value.
type fakeClient struct {
	response    string
	err         error
	lastRequest commonllm.Request
}

func (f *fakeClient) Chat(ctx context.Context, req commonllm.Request, result any) (*commonllm.Response, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	if err := json.Unmarshal([]byte(f.response), result); err != nil {
		return nil, err
	}
	return &commonllm.Response{}, nil
}

func (f *fakeClient) Model() string { return "fake-model" }

func TestExtractorAssignsIdentity(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{
		"claims": [
			{"text": "The bridge opened in 1937.", "entities": ["bridge"], "note": "checkable date"},
			{"text": "", "entities": [], "note": "empty text is dropped"},
			{"text": "It cost 35 million dollars.", "entities": [], "note": ""}
		]
	}`}

	e := NewExtractor(client)
	claims, err := e.Extract(context.Background(), model.ContentUnit{
		ID: "u1", Kind: model.UnitOriginalText, Text: "post about the bridge",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(claims) != 2 {
		t.Fatalf("claims = %d, want 2 (empty text dropped)", len(claims))
	}
	seen := map[string]bool{}
	for _, c := range claims {
		if c.ID == "" {
			t.Error("claim has no id")
		}
		if seen[c.ID] {
			t.Error("duplicate claim id")
		}
		seen[c.ID] = true
		if c.UnitID != "u1" {
			t.Errorf("claim unit = %s, want u1", c.UnitID)
		}
	}
	if claims[0].Text != "The bridge opened in 1937." {
		t.Errorf("claim text = %q", claims[0].Text)
	}
	if claims[0].Entities[0] != "bridge" {
		t.Errorf("entities = %v", claims[0].Entities)
	}
}

func TestExtractorSendsUnitText(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: `{"claims": []}`}
	e := NewExtractor(client)

	claims, err := e.Extract(context.Background(), model.ContentUnit{
		ID: "u1", Kind: model.UnitOriginalText, Text: "nothing checkable here",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(claims) != 0 {
		t.Errorf("claims = %d, want 0", len(claims))
	}

	req := client.lastRequest
	if req.SchemaName != "extraction_response" {
		t.Errorf("schema name = %s", req.SchemaName)
	}
	if req.Temperature == nil || *req.Temperature != 0.1 {
		t.Errorf("temperature = %v", req.Temperature)
	}
	if want := "nothing checkable here"; !strings.Contains(req.UserPrompt, want) {
		t.Errorf("user prompt missing unit text: %q", req.UserPrompt)
	}
}

func TestExtractorPropagatesErrors(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: errors.New("rate limited")}
	e := NewExtractor(client)

	if _, err := e.Extract(context.Background(), model.ContentUnit{ID: "u1", Text: "text"}); err == nil {
		t.Fatal("expected error")
	}
}
