// Package rolebackend queries the `.elasticarmor` role index for the roles
// a username/group set is a member of, using github.com/olivere/elastic/v7
// the same way other_examples' appbaseio-arc auth DAO wires it: a plain
// elastic.NewClient with sniffing disabled, a bool query of term queries,
// Do(ctx).
package rolebackend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/netways/esarmor/internal/filter"
	"github.com/netways/esarmor/internal/role"

	"github.com/olivere/elastic/v7"
)

// Backend resolves a username and its group memberships to the roles the
// `.elasticarmor` index grants them.
type Backend interface {
	RoleMemberships(ctx context.Context, username string, groups []string) ([]role.Role, error)
	DefaultRole(ctx context.Context) (*role.Role, error)
}

// ElasticsearchBackend is the production Backend: a bool query of term
// queries on users.keyword/groups.keyword (at least one must match) against
// role.ConfigurationIndex's
// role.ConfigurationType documents.
type ElasticsearchBackend struct {
	client *elastic.Client
	index  string
}

// New dials the given Elasticsearch nodes and returns a ready Backend.
func New(nodes []string, index string) (*ElasticsearchBackend, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(nodes...),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to role backend elasticsearch: %w", err)
	}
	if index == "" {
		index = role.ConfigurationIndex
	}
	return &ElasticsearchBackend{client: client, index: index}, nil
}

// roleDocument mirrors the JSON shape a `.elasticarmor` role document is
// stored in: a flat list of users/groups it applies to, plus the same
// indices/types/fields restriction tree the in-memory role.Role models.
type roleDocument struct {
	Users      []string              `json:"users"`
	Groups     []string              `json:"groups"`
	Privileges []string              `json:"privileges"`
	Indices    []restrictionDocument `json:"indices"`
}

type restrictionDocument struct {
	Include     []string                  `json:"include"`
	Exclude     []string                  `json:"exclude"`
	Permissions []string                  `json:"permissions"`
	Types       []typeRestrictionDocument `json:"types"`
}

type typeRestrictionDocument struct {
	Include     []string                   `json:"include"`
	Exclude     []string                   `json:"exclude"`
	Permissions []string                   `json:"permissions"`
	Fields      []fieldRestrictionDocument `json:"fields"`
}

type fieldRestrictionDocument struct {
	Include     []string `json:"include"`
	Exclude     []string `json:"exclude"`
	Permissions []string `json:"permissions"`
}

// RoleMemberships returns every role document naming username in its
// users list or any of groups in its groups list.
func (b *ElasticsearchBackend) RoleMemberships(ctx context.Context, username string, groups []string) ([]role.Role, error) {
	should := elastic.NewBoolQuery()
	should.Should(elastic.NewTermQuery("users.keyword", username))
	for _, g := range groups {
		should.Should(elastic.NewTermQuery("groups.keyword", g))
	}
	should.MinimumShouldMatch("1")

	resp, err := b.client.Search().
		Index(b.index).
		Query(should).
		Size(1000).
		FetchSource(true).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying role backend: %w", err)
	}

	roles := make([]role.Role, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		if hit.Source == nil {
			continue
		}
		var doc roleDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("unmarshaling role document %q: %w", hit.Id, err)
		}
		roles = append(roles, docToRole(hit.Id, doc))
	}

	// Stable ordering keeps system-default injection and pruning
	// deterministic across identical backend responses.
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

// DefaultRole looks up the role named "default", used when a client
// authenticates but belongs to no explicit role grant.
func (b *ElasticsearchBackend) DefaultRole(ctx context.Context) (*role.Role, error) {
	resp, err := b.client.Get().Index(b.index).Id("default").FetchSource(true).Do(ctx)
	if err != nil {
		if elastic.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching default role: %w", err)
	}
	if resp.Source == nil {
		return nil, nil
	}
	var doc roleDocument
	if err := json.Unmarshal(resp.Source, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling default role document: %w", err)
	}
	r := docToRole("default", doc)
	return &r, nil
}

// ListRoleIDs returns the id of every role document in the configuration
// index, for the `esarmor role list` admin command.
func (b *ElasticsearchBackend) ListRoleIDs(ctx context.Context) ([]string, error) {
	resp, err := b.client.Search().
		Index(b.index).
		Query(elastic.NewMatchAllQuery()).
		Size(1000).
		FetchSource(false).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	ids := make([]string, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		ids = append(ids, hit.Id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetRoleJSON returns the raw document source for a role id, for
// `esarmor role get`.
func (b *ElasticsearchBackend) GetRoleJSON(ctx context.Context, id string) ([]byte, error) {
	resp, err := b.client.Get().Index(b.index).Id(id).FetchSource(true).Do(ctx)
	if err != nil {
		if elastic.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching role %q: %w", id, err)
	}
	return resp.Source, nil
}

// PutRoleJSON upserts a role document's raw JSON body, for `esarmor role
// set`. The body is validated by round-tripping it through roleDocument
// before it's written, so a malformed document never reaches the index.
func (b *ElasticsearchBackend) PutRoleJSON(ctx context.Context, id string, body []byte) error {
	var doc roleDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid role document: %w", err)
	}
	if _, err := b.client.Index().Index(b.index).Id(id).BodyString(string(body)).Do(ctx); err != nil {
		return fmt.Errorf("writing role %q: %w", id, err)
	}
	return nil
}

// DeleteRole removes a role document, for `esarmor role delete`.
func (b *ElasticsearchBackend) DeleteRole(ctx context.Context, id string) error {
	if _, err := b.client.Delete().Index(b.index).Id(id).Do(ctx); err != nil {
		if elastic.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting role %q: %w", id, err)
	}
	return nil
}

// configurationIndexSettings is the direct analogue of the Python source's
// CONFIGURATION_INDEX_SETTINGS: a lowercase_keyword analyzer for
// users/groups term matching and a role mapping with privileges stored as
// a disabled (unindexed) object.
const configurationIndexSettings = `{
  "settings": {
    "analysis": {
      "analyzer": {
        "lowercase_keyword": {
          "type":      "custom",
          "tokenizer": "keyword",
          "filter":    ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "role": {
      "properties": {
        "users":      {"type": "string", "analyzer": "lowercase_keyword"},
        "groups":     {"type": "string", "analyzer": "lowercase_keyword"},
        "privileges": {"type": "object", "enabled": false},
        "indices":    {"type": "object", "enabled": false}
      }
    }
  }
}`

// Bootstrap creates the `.elasticarmor` configuration index with its
// analyzer and role mapping if it doesn't already exist - the single
// index-creation call that replaces SQL migrations for this backend (the
// role index has no schema history to step through).
func (b *ElasticsearchBackend) Bootstrap(ctx context.Context) error {
	exists, err := b.client.IndexExists(b.index).Do(ctx)
	if err != nil {
		return fmt.Errorf("checking for configuration index: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := b.client.CreateIndex(b.index).BodyString(configurationIndexSettings).Do(ctx); err != nil {
		return fmt.Errorf("creating configuration index: %w", err)
	}
	return nil
}

func docToRole(id string, doc roleDocument) role.Role {
	r := role.Role{ID: id, ClusterPermissions: role.NewPermissionSet(doc.Privileges...)}
	for _, idx := range doc.Indices {
		r.Restrictions = append(r.Restrictions, restrictionNode(idx))
	}
	return r
}

func restrictionNode(idx restrictionDocument) role.RestrictionNode {
	node := role.RestrictionNode{
		Restriction: role.Restriction{
			Includes:    patterns(idx.Include),
			Excludes:    patterns(idx.Exclude),
			Permissions: role.NewPermissionSet(idx.Permissions...),
		},
	}
	for _, t := range idx.Types {
		node.Types = append(node.Types, typeRestrictionNode(t))
	}
	return node
}

func typeRestrictionNode(t typeRestrictionDocument) role.TypeRestrictionNode {
	node := role.TypeRestrictionNode{
		Restriction: role.Restriction{
			Includes:    patterns(t.Include),
			Excludes:    patterns(t.Exclude),
			Permissions: role.NewPermissionSet(t.Permissions...),
		},
	}
	for _, f := range t.Fields {
		node.Fields = append(node.Fields, fieldRestrictionNode(f))
	}
	return node
}

func fieldRestrictionNode(f fieldRestrictionDocument) role.FieldRestrictionNode {
	return role.FieldRestrictionNode{Restriction: role.Restriction{
		Includes:    patterns(f.Include),
		Excludes:    patterns(f.Exclude),
		Permissions: role.NewPermissionSet(f.Permissions...),
	}}
}

func patterns(names []string) []filter.Pattern {
	if len(names) == 0 {
		return nil
	}
	out := make([]filter.Pattern, len(names))
	for i, n := range names {
		out[i] = filter.NewPattern(n)
	}
	return out
}

// MarshalRoles and UnmarshalRoles serialize a []role.Role through the same
// roleDocument shape the `.elasticarmor` index stores roles in.
// filter.Pattern keeps its fields unexported on purpose - restriction
// patterns are compiled (tokens, a regexp) once by filter.NewPattern and
// must never be rebuilt from a zero value - so the role cache code in
// internal/auth marshals and unmarshals roles through these rather than
// handing encoding/json the live struct tree.
type cacheDocument struct {
	ID         string                `json:"id"`
	Privileges []string              `json:"privileges"`
	Indices    []restrictionDocument `json:"indices"`
}

// MarshalRoles renders roles into the JSON text stored in a
// database.CacheEntry.RolesJSON column.
func MarshalRoles(roles []role.Role) (string, error) {
	docs := make([]cacheDocument, len(roles))
	for i, r := range roles {
		docs[i] = roleToDoc(r)
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("marshaling role cache entry: %w", err)
	}
	return string(data), nil
}

// UnmarshalRoles parses the JSON text of a database.CacheEntry.RolesJSON
// column back into live roles, recompiling every restriction pattern via
// filter.NewPattern.
func UnmarshalRoles(data string) ([]role.Role, error) {
	var docs []cacheDocument
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		return nil, fmt.Errorf("unmarshaling role cache entry: %w", err)
	}
	roles := make([]role.Role, len(docs))
	for i, d := range docs {
		roles[i] = docToRole(d.ID, roleDocument{Privileges: d.Privileges, Indices: d.Indices})
	}
	return roles, nil
}

func roleToDoc(r role.Role) cacheDocument {
	doc := cacheDocument{ID: r.ID, Privileges: permissionNames(r.ClusterPermissions)}
	for _, idx := range r.Restrictions {
		doc.Indices = append(doc.Indices, restrictionNodeToDoc(idx))
	}
	return doc
}

func restrictionNodeToDoc(n role.RestrictionNode) restrictionDocument {
	doc := restrictionDocument{
		Include:     patternNames(n.Includes),
		Exclude:     patternNames(n.Excludes),
		Permissions: permissionNames(n.Permissions),
	}
	for _, t := range n.Types {
		doc.Types = append(doc.Types, typeRestrictionNodeToDoc(t))
	}
	return doc
}

func typeRestrictionNodeToDoc(n role.TypeRestrictionNode) typeRestrictionDocument {
	doc := typeRestrictionDocument{
		Include:     patternNames(n.Includes),
		Exclude:     patternNames(n.Excludes),
		Permissions: permissionNames(n.Permissions),
	}
	for _, f := range n.Fields {
		doc.Fields = append(doc.Fields, fieldRestrictionNodeToDoc(f))
	}
	return doc
}

func fieldRestrictionNodeToDoc(n role.FieldRestrictionNode) fieldRestrictionDocument {
	return fieldRestrictionDocument{
		Include:     patternNames(n.Includes),
		Exclude:     patternNames(n.Excludes),
		Permissions: permissionNames(n.Permissions),
	}
}

func patternNames(patterns []filter.Pattern) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}

func permissionNames(s role.PermissionSet) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
