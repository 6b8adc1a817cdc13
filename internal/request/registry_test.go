package request

import "testing"

type stubHandler struct{ id string }

func (s *stubHandler) Inspect(ctx *Context) (*Response, error) { return nil, nil }

func TestRegistryMatchExtractsPathParams(t *testing.T) {
	r := NewRegistry()
	r.Register("GET", "/{index}/{doctype}/_search", 0, "search", &stubHandler{"search"})
	r.Build()

	ctx, ok := r.Match("GET", "/logs-2016/events/_search")
	if !ok {
		t.Fatal("expected a match")
	}
	if v, ok := ctx.PathParam("index"); !ok || v != "logs-2016" {
		t.Errorf("index = %q, %v", v, ok)
	}
	if v, ok := ctx.PathParam("doctype"); !ok || v != "events" {
		t.Errorf("doctype = %q, %v", v, ok)
	}
}

func TestRegistryMatchMiss(t *testing.T) {
	r := NewRegistry()
	r.Register("GET", "/{index}/_search", 0, "search", &stubHandler{"search"})
	r.Build()

	if _, ok := r.Match("GET", "/logs/_mapping"); ok {
		t.Error("expected no match for an unregistered suffix")
	}
}

func TestRegistryPriorityOrdersMoreSpecificFirst(t *testing.T) {
	r := NewRegistry()
	r.Register("GET", "/{index}", 10, "generic-search", &stubHandler{"generic"})
	r.Register("GET", "/_search", 0, "global-search", &stubHandler{"global"})
	r.Build()

	ctx, ok := r.Match("GET", "/_search")
	if !ok {
		t.Fatal("expected a match")
	}
	if ctx.Name != "global-search" {
		t.Errorf("expected the lower-priority global-search handler to win, got %q", ctx.Name)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV("logs-2016,logs-2017,")
	want := []string{"logs-2016", "logs-2017"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
