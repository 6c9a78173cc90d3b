package webctx

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAddResultDedupsByNormalizedLink(t *testing.T) {
	c := &WebContext{}
	if !c.AddResult(WebResult{Title: "a", Link: "https://a.com/x?utm_source=y"}) {
		t.Fatal("first insert should succeed")
	}
	if c.AddResult(WebResult{Title: "b", Link: "https://a.com/x"}) {
		t.Fatal("tracking-param variant should dedup against the original")
	}
	if len(c.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(c.Results))
	}
}

func TestAddResultCapsAndTruncates(t *testing.T) {
	c := &WebContext{}
	for i := 0; i < MaxResults+10; i++ {
		c.AddResult(WebResult{Title: "t", Link: fmt.Sprintf("https://s%d.com/", i)})
	}
	if len(c.Results) != MaxResults {
		t.Fatalf("results = %d, want %d", len(c.Results), MaxResults)
	}

	c2 := &WebContext{}
	c2.AddResult(WebResult{Link: "https://a.com/", Snippet: strings.Repeat("s", SnippetMaxChars+50)})
	if len(c2.Results[0].Snippet) != SnippetMaxChars {
		t.Fatalf("snippet = %d chars, want %d", len(c2.Results[0].Snippet), SnippetMaxChars)
	}

	// Truncation must not split a multi-byte rune.
	c3 := &WebContext{}
	c3.AddResult(WebResult{Link: "https://b.com/", Snippet: strings.Repeat("ü", SnippetMaxChars)})
	got := c3.Results[0].Snippet
	if len(got) > SnippetMaxChars || !utf8.ValidString(got) {
		t.Fatalf("snippet truncation broke UTF-8: %d bytes valid=%v", len(got), utf8.ValidString(got))
	}
}

func TestMergeQueriesCaseInsensitive(t *testing.T) {
	c := &WebContext{QueriesUsed: []string{"Capital of France"}}
	c.MergeQueries([]string{"capital of france", "paris population", "", "Paris Population"})
	want := []string{"Capital of France", "paris population"}
	if len(c.QueriesUsed) != len(want) {
		t.Fatalf("queries = %v, want %v", c.QueriesUsed, want)
	}
	for i := range want {
		if c.QueriesUsed[i] != want[i] {
			t.Fatalf("queries = %v, want %v", c.QueriesUsed, want)
		}
	}
}

func TestMergeScrapedKeepsFirst(t *testing.T) {
	c := &WebContext{}
	first := &ScrapedDoc{URL: "https://a.com/x", Text: "first"}
	c.MergeScraped([]*ScrapedDoc{first})
	c.MergeScraped([]*ScrapedDoc{{URL: "https://A.com/x", Text: "second"}})
	if len(c.Scraped) != 1 {
		t.Fatalf("scraped = %d, want 1", len(c.Scraped))
	}
	if c.Scraped[0].Text != "first" {
		t.Fatal("first scraped doc must win")
	}
}

func TestMergeFirstAnswerBoxWins(t *testing.T) {
	c := &WebContext{AnswerBox: map[string]interface{}{"answer": "first"}}
	c.Merge(&WebContext{AnswerBox: map[string]interface{}{"answer": "second"}})
	if c.AnswerBox["answer"] != "first" {
		t.Fatal("first answer box should win")
	}

	c2 := &WebContext{}
	c2.Merge(&WebContext{KnowledgeGraph: map[string]interface{}{"title": "kg"}})
	if c2.KnowledgeGraph == nil {
		t.Fatal("knowledge graph should be adopted when absent")
	}
}

func TestMergeCapsSections(t *testing.T) {
	c := &WebContext{}
	var paa []PeopleAlsoAskItem
	var stories []TopStory
	for i := 0; i < SectionCap; i++ {
		paa = append(paa, PeopleAlsoAskItem{Question: fmt.Sprintf("q%d", i)})
		stories = append(stories, TopStory{Title: fmt.Sprintf("s%d", i), Link: fmt.Sprintf("https://n.com/%d", i)})
	}
	c.Merge(&WebContext{PeopleAlsoAsk: paa, TopStories: stories})
	c.Merge(&WebContext{PeopleAlsoAsk: paa, TopStories: stories})
	if len(c.PeopleAlsoAsk) != SectionCap || len(c.TopStories) != SectionCap {
		t.Fatalf("sections = %d/%d, want %d each", len(c.PeopleAlsoAsk), len(c.TopStories), SectionCap)
	}
}
