package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/permaevidence/HopPT/internal/webctx"
)

type stubSearcher struct {
	responses map[string]*Response
	err       error
	errQuery  string
}

func (s *stubSearcher) Search(_ context.Context, query string, _ int) (*Response, error) {
	if s.err != nil && (s.errQuery == "" || s.errQuery == query) {
		return nil, s.err
	}
	if resp, ok := s.responses[query]; ok {
		return resp, nil
	}
	return &Response{}, nil
}

func TestFanOutMergesAndDedups(t *testing.T) {
	stub := &stubSearcher{responses: map[string]*Response{
		"q1": {
			Organic: []webctx.WebResult{
				{Title: "a", Link: "https://a.com/x?utm_source=y"},
				{Title: "b", Link: "https://b.com/"},
			},
			AnswerBox: map[string]interface{}{"answer": "first"},
		},
		"q2": {
			Organic: []webctx.WebResult{
				{Title: "a again", Link: "https://a.com/x"},
				{Title: "c", Link: "https://c.com/"},
			},
			AnswerBox: map[string]interface{}{"answer": "second"},
		},
	}}

	out, err := FanOut(context.Background(), stub, []string{"q1", "q2"}, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("results = %d, want 3 (tracking-param variant must dedup)", len(out.Results))
	}
	if out.AnswerBox["answer"] != "first" {
		t.Fatal("first answer box should win")
	}
	if len(out.QueriesUsed) != 2 {
		t.Fatalf("queries used = %v", out.QueriesUsed)
	}
}

func TestFanOutAllSucceedSemantics(t *testing.T) {
	boom := errors.New("boom")
	stub := &stubSearcher{
		responses: map[string]*Response{
			"good": {Organic: []webctx.WebResult{{Title: "a", Link: "https://a.com/"}}},
		},
		err:      boom,
		errQuery: "bad",
	}
	_, err := FanOut(context.Background(), stub, []string{"good", "bad"}, Limits{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the fan-out to fail as a whole, got %v", err)
	}
}

func TestFanOutPerQueryCap(t *testing.T) {
	resp := &Response{}
	for i := 0; i < 20; i++ {
		resp.Organic = append(resp.Organic, webctx.WebResult{
			Title: "t", Link: fmt.Sprintf("https://s%d.com/", i),
		})
	}
	stub := &stubSearcher{responses: map[string]*Response{"q": resp}}
	out, err := FanOut(context.Background(), stub, []string{"q"}, Limits{MaxOrganicPerQuery: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 5 {
		t.Fatalf("results = %d, want 5", len(out.Results))
	}
}

func TestFanOutSectionCaps(t *testing.T) {
	resp := &Response{}
	for i := 0; i < webctx.SectionCap; i++ {
		resp.PeopleAlsoAsk = append(resp.PeopleAlsoAsk, webctx.PeopleAlsoAskItem{Question: fmt.Sprintf("q%d", i)})
		resp.TopStories = append(resp.TopStories, webctx.TopStory{Title: fmt.Sprintf("s%d", i), Link: fmt.Sprintf("https://n.com/%d", i)})
	}
	stub := &stubSearcher{responses: map[string]*Response{"a": resp, "b": resp}}
	out, err := FanOut(context.Background(), stub, []string{"a", "b"}, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.PeopleAlsoAsk) != webctx.SectionCap || len(out.TopStories) != webctx.SectionCap {
		t.Fatalf("sections = %d/%d, want %d each", len(out.PeopleAlsoAsk), len(out.TopStories), webctx.SectionCap)
	}
}

func TestFanOutNoQueries(t *testing.T) {
	out, err := FanOut(context.Background(), &stubSearcher{}, nil, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 0 || len(out.QueriesUsed) != 0 {
		t.Fatal("empty query list should produce an empty context")
	}
}
