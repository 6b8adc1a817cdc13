package handlers

import (
	"net/url"
	"strings"
	"testing"

	"github.com/netways/esarmor/internal/auth"
	"github.com/netways/esarmor/internal/filter"
	"github.com/netways/esarmor/internal/request"
	"github.com/netways/esarmor/internal/role"
)

func roleWithIndices(permission string, includes ...string) role.Role {
	var restrictions []role.RestrictionNode
	for _, inc := range includes {
		restrictions = append(restrictions, role.RestrictionNode{
			Restriction: role.Restriction{
				Includes:    []filter.Pattern{filter.NewPattern(inc)},
				Permissions: role.NewPermissionSet(permission),
			},
		})
	}
	return role.Role{Restrictions: restrictions}
}

func unrestrictedClient(permissions ...string) *auth.Client {
	set := role.NewPermissionSet(permissions...)
	return &auth.Client{Roles: []role.Role{{ClusterPermissions: set}}}
}

type stubNoop struct{}

func (stubNoop) Inspect(ctx *request.Context) (*request.Response, error) { return nil, nil }

// newCtx builds a Context carrying the given path params by round-tripping
// through a Registry match (params is unexported, so this is the only way
// to populate it from outside package request).
func newCtx(method, path string, params map[string]string, client *auth.Client) *request.Context {
	reg := request.NewRegistry()
	var patternParts, pathParts []string
	for k, v := range params {
		patternParts = append(patternParts, "{"+k+"}")
		pathParts = append(pathParts, v)
	}
	pattern, matchPath := path, path
	if len(patternParts) > 0 {
		pattern = "/" + strings.Join(patternParts, "/")
		matchPath = "/" + strings.Join(pathParts, "/")
	}
	reg.Register(method, pattern, 0, "synthetic", stubNoop{})
	reg.Build()
	ctx, ok := reg.Match(method, matchPath)
	if !ok {
		panic("newCtx: synthetic pattern did not match")
	}
	ctx.Path = path
	ctx.Client = client
	ctx.Query = url.Values{}
	return ctx
}

func TestCreateIndexHandlerDeniesUnpermittedIndex(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermIndicesCreateIndex, "logs-*")}}
	ctx := newCtx("PUT", "/secrets", map[string]string{"index": "secrets"}, client)

	_, err := CreateIndexHandler{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected a permission error for an index the role does not grant create on")
	}
}

func TestCreateIndexHandlerGatesBodyKeys(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermIndicesCreateIndex, "logs-*")}}
	ctx := newCtx("PUT", "/logs-2016", map[string]string{"index": "logs-2016"}, client)
	ctx.Body = []byte(`{"mappings": {"event": {}}}`)

	_, err := CreateIndexHandler{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected a permission error: role grants create/index but not create/mapping")
	}
}

func TestCreateIndexHandlerAllowsWhenEveryKeyGranted(t *testing.T) {
	set := role.NewPermissionSet(PermIndicesCreateIndex, PermIndicesCreateMapping)
	client := &auth.Client{Roles: []role.Role{{Restrictions: []role.RestrictionNode{{
		Restriction: role.Restriction{Includes: []filter.Pattern{filter.NewPattern("logs-*")}, Permissions: set},
	}}}}}
	ctx := newCtx("PUT", "/logs-2016", map[string]string{"index": "logs-2016"}, client)
	ctx.Body = []byte(`{"mappings": {"event": {}}}`)

	resp, err := CreateIndexHandler{}.Inspect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected pass-through (nil response), got %+v", resp)
	}
}

func TestGetIndexHandlerNarrowsToRoleScope(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermIndicesGetAny, "logs-*")}}
	ctx := newCtx("GET", "/_all", map[string]string{"indices": "_all"}, client)

	_, err := GetIndexHandler{}.Inspect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Path != "/logs-*" {
		t.Errorf("expected path narrowed to /logs-*, got %q", ctx.Path)
	}
}

func TestGetIndexHandlerKeywordRequiresCategoryPermission(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermIndicesGetAny, "logs-*")}}
	ctx := newCtx("GET", "/logs-2016/_settings", map[string]string{"indices": "logs-2016", "keywords": "_settings"}, client)

	_, err := GetIndexHandler{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected denial: role grants api/indices/get/* but not get/settings specifically")
	}
}

func TestSearchHandlerRefusesQStringUnderFieldRestriction(t *testing.T) {
	set := role.NewPermissionSet(PermSearchDocuments)
	client := &auth.Client{Roles: []role.Role{{Restrictions: []role.RestrictionNode{{
		Restriction: role.Restriction{Includes: []filter.Pattern{filter.NewPattern("logs-*")}, Permissions: set},
		Types: []role.TypeRestrictionNode{{
			Restriction: role.Restriction{Includes: []filter.Pattern{filter.NewPattern("*")}, Permissions: set},
			Fields: []role.FieldRestrictionNode{{
				Restriction: role.Restriction{Includes: []filter.Pattern{filter.NewPattern("message")}, Permissions: set},
			}},
		}},
	}}}}}
	ctx := newCtx("GET", "/logs-2016/_search", map[string]string{"indices": "logs-2016"}, client)
	ctx.Query = url.Values{"q": {"status:500"}}

	_, err := Search{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected denial of q= under field restriction")
	}
	const want = "You are restricted to specific fields and as such cannot utilize the query string search."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSearchHandlerDeniesIndexFilterWithExactMessage(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermSearchDocuments, "logs-*")}}
	ctx := newCtx("GET", "/secrets/_search", map[string]string{"indices": "secrets"}, client)

	_, err := Search{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected denial for an index filter disjoint from the role's own")
	}
	const want = `You are not permitted to search for documents using the index filter "secrets".`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSearchHandlerDeniesDisallowedQueryField(t *testing.T) {
	set := role.NewPermissionSet(PermSearchDocuments)
	client := &auth.Client{Roles: []role.Role{{Restrictions: []role.RestrictionNode{{
		Restriction: role.Restriction{Includes: []filter.Pattern{filter.NewPattern("logs-*")}, Permissions: set},
	}}}}}
	ctx := newCtx("GET", "/logs-2016/_search", map[string]string{"indices": "logs-2016"}, client)
	ctx.Body = []byte(`{"query": {"script": {"script": "true"}}}`)

	_, err := Search{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected denial: role never grants api/feature/script")
	}
}

func TestSearchHandlerRewritesPathAndPreservesUnknownKeys(t *testing.T) {
	client := unrestrictedClient(PermSearchDocuments, "api/feature/script")
	ctx := newCtx("GET", "/logs-2016/_search", map[string]string{"indices": "logs-2016"}, client)
	ctx.Body = []byte(`{"query": {"match_all": {}}, "from": 10, "size": 20, "sort": ["@timestamp"]}`)

	_, err := Search{}.Inspect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(ctx.Path, "_search") {
		t.Errorf("expected rewritten path to end in _search, got %q", ctx.Path)
	}
	if !strings.Contains(string(ctx.Body), `"size":20`) && !strings.Contains(string(ctx.Body), `"size": 20`) {
		// body was re-marshaled only if updated; match_all needs no permission
		// check beyond api/search/documents, which the client holds
		// unconditionally, so body should be untouched here.
		t.Errorf("expected unknown keys such as size to survive, got %q", ctx.Body)
	}
}

func TestSearchHandlerDeniesDisallowedRescoreQueryField(t *testing.T) {
	set := role.NewPermissionSet(PermSearchDocuments)
	client := &auth.Client{Roles: []role.Role{{Restrictions: []role.RestrictionNode{{
		Restriction: role.Restriction{Includes: []filter.Pattern{filter.NewPattern("logs-*")}, Permissions: set},
	}}}}}
	ctx := newCtx("GET", "/logs-2016/_search", map[string]string{"indices": "logs-2016"}, client)
	ctx.Body = []byte(`{"query": {"match_all": {}}, "rescore": {"query": {"rescore_query": {"script": {"script": "true"}}}}}`)

	_, err := Search{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected denial: rescore.query.rescore_query uses script, which the role never grants")
	}
}

func TestMultiSearchSplitsSuccessAndFailure(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermSearchDocuments, "logs-*")}}
	body := strings.Join([]string{
		`{"index": "logs-2016"}`,
		`{"query": {"match_all": {}}}`,
		`{"index": "secrets"}`,
		`{"query": {"match_all": {}}}`,
		``,
	}, "\n")
	ctx := newCtx("GET", "/_msearch", nil, client)
	ctx.Body = []byte(body)

	resp, err := MultiSearch{}.Inspect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected forwarding (one survivor), got short-circuit response %+v", resp)
	}
	failures, ok := ctx.Attachment.([]MultiSearchFailure)
	if !ok || len(failures) != 1 {
		t.Fatalf("expected exactly one recorded failure, got %v", ctx.Attachment)
	}
	if failures[0].Position != 1 {
		t.Errorf("expected the failure at position 1 (the 'secrets' sub-request), got %d", failures[0].Position)
	}
	if !strings.Contains(string(ctx.Body), "logs-2016") {
		t.Errorf("expected the surviving sub-request to remain in the forwarded body, got %q", ctx.Body)
	}
}

func TestMultiSearchAllDeniedReturnsSyntheticResponse(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermSearchDocuments, "logs-*")}}
	body := strings.Join([]string{
		`{"index": "secrets"}`,
		`{"query": {"match_all": {}}}`,
		``,
	}, "\n")
	ctx := newCtx("GET", "/_msearch", nil, client)
	ctx.Body = []byte(body)

	resp, err := MultiSearch{}.Inspect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || resp.Status != 200 {
		t.Fatalf("expected a synthetic 200 response when every sub-request is denied, got %+v", resp)
	}
	if !strings.Contains(string(resp.Body), `"responses"`) {
		t.Errorf("expected a responses array in the synthetic body, got %q", resp.Body)
	}
}

func TestSpliceMultiSearchErrorsMergesAtPosition(t *testing.T) {
	upstream := []byte(`{"responses": [{"hits": {"total": 3}}]}`)
	failures := []MultiSearchFailure{{Position: 1, Status: 403, Reason: "not permitted"}}

	merged, err := SpliceMultiSearchErrors(upstream, failures)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(merged), `"status":403`) {
		t.Errorf("expected the spliced error at position 1, got %q", merged)
	}
	if !strings.Contains(string(merged), `"total":3`) {
		t.Errorf("expected the surviving response preserved, got %q", merged)
	}
}

func TestValidateHandlerRewritesPathWithExplainPermission(t *testing.T) {
	set := role.NewPermissionSet(PermSearchDocuments, PermSearchExplain)
	client := &auth.Client{Roles: []role.Role{{Restrictions: []role.RestrictionNode{{
		Restriction: role.Restriction{Includes: []filter.Pattern{filter.NewPattern("logs-*")}, Permissions: set},
	}}}}}
	ctx := newCtx("GET", "/logs-2016/_validate/query", map[string]string{"indices": "logs-2016"}, client)

	_, err := Validate{}.Inspect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(ctx.Path, "_validate/query") {
		t.Errorf("expected rewritten path to end in _validate/query, got %q", ctx.Path)
	}
}

func TestValidateHandlerDeniesExplainWithoutPermission(t *testing.T) {
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermSearchDocuments, "logs-*")}}
	ctx := newCtx("GET", "/logs-2016/_validate/query", map[string]string{"indices": "logs-2016"}, client)

	_, err := Validate{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected denial: role never grants api/search/explain")
	}
}

func TestValidateHandlerKibanaBypassChecksExplainAgainstKibanaIndex(t *testing.T) {
	AllowKibanaQueryValidatorBypass = true
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermSearchExplain, ".kibana")}}
	ctx := newCtx("POST", "/.kibana/__kibanaQueryValidator/_validate/query",
		map[string]string{"indices": ".kibana", "types": "__kibanaQueryValidator"}, client)

	_, err := Validate{}.Inspect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Path != "/.kibana/__kibanaQueryValidator/_validate/query" {
		t.Errorf("expected the kibana probe path left untouched, got %q", ctx.Path)
	}
}

func TestValidateHandlerKibanaBypassDeniesWithoutExplainOnKibana(t *testing.T) {
	AllowKibanaQueryValidatorBypass = true
	client := &auth.Client{Roles: []role.Role{roleWithIndices(PermSearchExplain, "logs-*")}}
	ctx := newCtx("POST", "/.kibana/__kibanaQueryValidator/_validate/query",
		map[string]string{"indices": ".kibana", "types": "__kibanaQueryValidator"}, client)

	_, err := Validate{}.Inspect(ctx)
	if err == nil {
		t.Fatal("expected denial: role's api/search/explain grant does not cover .kibana")
	}
}
