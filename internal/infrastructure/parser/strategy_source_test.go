package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
	"KnowledgeScanner/internal/scanner"
)

type fakeConnector struct {
	kind    string
	refs    map[string][]domain.ItemRef
	items   map[string]domain.Item
	listErr error
	queries []ports.Query
}

func (f *fakeConnector) Kind() string { return f.kind }

func (f *fakeConnector) List(_ context.Context, q ports.Query) ([]domain.ItemRef, error) {
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.ItemRef(nil), f.refs[q.Filter]...), nil
}

func (f *fakeConnector) Fetch(_ context.Context, id string) (domain.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return domain.Item{}, errors.New("not found")
	}
	return item, nil
}

func TestListCandidatesTagsSources(t *testing.T) {
	t.Parallel()

	mail := &fakeConnector{
		kind: "gmail",
		refs: map[string][]domain.ItemRef{
			"Internal": {{ID: "m1"}},
			"Outage":   {{ID: "m2"}},
		},
	}
	reg := scanner.NewRegistry()
	reg.Register(mail)

	src := NewStrategySource(reg, []config.SourceConfig{
		{Name: "inbox", Kind: "gmail", Filter: "Internal", Limit: 20},
		{Name: "outages", Kind: "gmail", Filter: "Outage", Limit: 5},
	}, nil)

	since := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	refs, err := src.ListCandidates(context.Background(), &since)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}

	want := []domain.ItemRef{{ID: "m1", Source: "inbox"}, {ID: "m2", Source: "outages"}}
	if len(refs) != len(want) || refs[0] != want[0] || refs[1] != want[1] {
		t.Fatalf("refs = %+v, want %+v", refs, want)
	}
	if mail.queries[1].Limit != 5 || !mail.queries[1].Since.Equal(since) {
		t.Fatalf("unexpected query %+v", mail.queries[1])
	}
}

func TestListCandidatesKeepsGoingPastFailingSource(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(&fakeConnector{kind: "jira", listErr: domain.ErrTransient})
	reg.Register(&fakeConnector{kind: "gmail", refs: map[string][]domain.ItemRef{"": {{ID: "m1"}}}})

	src := NewStrategySource(reg, []config.SourceConfig{
		{Name: "tracker", Kind: "jira"},
		{Name: "inbox", Kind: "gmail"},
		{Name: "chat", Kind: "slack"},
	}, nil)

	refs, err := src.ListCandidates(context.Background(), nil)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("error = %v, want transient", err)
	}
	if len(refs) != 1 || refs[0].ID != "m1" {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestFetchDetailRoutesBySource(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(&fakeConnector{kind: "jira", items: map[string]domain.Item{"ABC-1": {ID: "ABC-1", Subject: "[ABC-1] x"}}})

	src := NewStrategySource(reg, []config.SourceConfig{{Name: "tracker", Kind: "jira"}}, nil)

	item, err := src.FetchDetail(context.Background(), domain.ItemRef{ID: "ABC-1", Source: "tracker"})
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if item.Source != "tracker" || item.Subject != "[ABC-1] x" {
		t.Fatalf("item = %+v", item)
	}

	if _, err := src.FetchDetail(context.Background(), domain.ItemRef{ID: "ABC-1", Source: "other"}); err == nil {
		t.Fatalf("unknown source should fail")
	}
}
