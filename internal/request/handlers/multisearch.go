package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/request"
)

// MultiSearchFailure records one rejected sub-request of an _msearch body,
// at its zero-based position in the original request. The response phase
// uses this to splice a synthetic error object into the corresponding slot
// of the upstream's "responses" array, since Elasticsearch's own multi-
// search response preserves positional order.
type MultiSearchFailure struct {
	Position int
	Status   int
	Reason   string
}

// msearchHeader is the "action_and_meta_data" line preceding each
// multi-search sub-request body.
type msearchHeader struct {
	Index        interface{} `json:"index,omitempty"`
	Type         interface{} `json:"type,omitempty"`
	SearchType   string      `json:"search_type,omitempty"`
	Preference   string      `json:"preference,omitempty"`
	RoutingValue string      `json:"routing,omitempty"`
}

// MultiSearch handles _msearch: newline-delimited-JSON pairs of header and
// body lines. Each sub-request is independently narrowed; one being denied
// does not abort the others. If every sub-request is denied, the handler
// answers directly with a synthetic 200 whose "responses" array is all
// errors, matching Elasticsearch's own all-partial-failure shape rather
// than forwarding an empty request upstream. Otherwise the survivors are
// forwarded and failures are attached to the Context for the response
// phase to splice back in at their original position.
type MultiSearch struct{}

func (MultiSearch) Inspect(ctx *request.Context) (*request.Response, error) {
	defaultIndex := ctx.PathParamOr("indices", "")
	defaultType := ctx.PathParamOr("types", "")

	lines := splitNDJSONLines(ctx.Body)

	var out bytes.Buffer
	var failures []MultiSearchFailure
	survivors := 0
	position := 0

	for i := 0; i+1 < len(lines); i += 2 {
		headerRaw, bodyRaw := lines[i], lines[i+1]

		var header msearchHeader
		if len(headerRaw) > 0 {
			_ = json.Unmarshal(headerRaw, &header)
		}

		indexCSV := csvFromHeaderField(header.Index, defaultIndex)
		typeCSV := csvFromHeaderField(header.Type, defaultType)

		index, typ, indexFS, typeFS, err := resolveSearchScope(ctx.Client, indexCSV, typeCSV)
		if err != nil {
			failures = append(failures, failureFor(position, err))
			position++
			continue
		}

		newBody, _, err := narrowSearchBody(ctx.Client, index, typ, bodyRaw)
		if err != nil {
			failures = append(failures, failureFor(position, err))
			position++
			continue
		}

		header.Index = joinPatterns(indexFS)
		header.Type = joinPatterns(typeFS)
		newHeader, _ := json.Marshal(header)

		out.Write(newHeader)
		out.WriteByte('\n')
		out.Write(newBody)
		out.WriteByte('\n')
		survivors++
		position++
	}

	if survivors == 0 && position > 0 {
		body := allFailedMultiSearchResponse(failures)
		return &request.Response{
			Status: 200,
			Body:   body,
			Header: map[string][]string{"Content-Type": {"application/json"}},
		}, nil
	}

	ctx.Body = out.Bytes()
	ctx.Attachment = failures
	ctx.Rewrite("/" + joinDefaultIndexFilter(defaultIndex, ctx) + "/_msearch")
	return nil, nil
}

// joinDefaultIndexFilter computes the top-level _msearch path segment the
// same way Search narrows /{indices}/_search, using the default index
// scope bound to the whole request rather than any one sub-request's
// header.
func joinDefaultIndexFilter(defaultIndex string, ctx *request.Context) string {
	requested, err := requestedFromCSV(defaultIndex)
	if err != nil {
		return "_all"
	}
	fs, err := ctx.Client.CreateFilterString(PermSearchDocuments, requested, false)
	if err != nil {
		return "_all"
	}
	return joinPatterns(fs)
}

func csvFromHeaderField(v interface{}, fallback string) string {
	switch val := v.(type) {
	case string:
		if val != "" {
			return val
		}
	case []interface{}:
		var parts []string
		for _, e := range val {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return joinStrings(parts)
		}
	}
	return fallback
}

func failureFor(position int, err error) MultiSearchFailure {
	status := 403
	if he, ok := err.(apierror.HTTPError); ok {
		status = he.StatusCode()
	}
	return MultiSearchFailure{Position: position, Status: status, Reason: err.Error()}
}

// allFailedMultiSearchResponse builds the synthetic "responses" array when
// every sub-request was denied: a 200 envelope carrying one error object
// per position, matching the shape _msearch uses for per-item failures.
func allFailedMultiSearchResponse(failures []MultiSearchFailure) []byte {
	responses := make([]map[string]interface{}, len(failures))
	for _, f := range failures {
		responses[f.Position] = map[string]interface{}{
			"error":  f.Reason,
			"status": f.Status,
		}
	}
	b, _ := json.Marshal(map[string]interface{}{"responses": responses})
	return b
}

// splitNDJSONLines splits a newline-delimited-JSON body into its lines,
// dropping a trailing empty line left by a final "\n".
func splitNDJSONLines(body []byte) [][]byte {
	lines := bytes.Split(body, []byte("\n"))
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	out := make([][]byte, 0, len(lines))
	for _, l := range lines {
		out = append(out, l)
	}
	return out
}

// SpliceMultiSearchErrors merges the synthetic per-position errors recorded
// on Context.Attachment (a []MultiSearchFailure) into the upstream's
// "responses" array before it is forwarded to the client - the response
// side of MultiSearch's per-sub-request narrowing. Called by the server
// after receiving the upstream response, with the Content-Length header
// recomputed from the spliced body.
func SpliceMultiSearchErrors(upstreamBody []byte, failures []MultiSearchFailure) ([]byte, error) {
	if len(failures) == 0 {
		return upstreamBody, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(upstreamBody, &envelope); err != nil {
		return nil, &apierror.UpstreamError{Message: "upstream _msearch response was not valid JSON"}
	}
	var responses []json.RawMessage
	if raw, ok := envelope["responses"]; ok {
		_ = json.Unmarshal(raw, &responses)
	}

	total := len(responses)
	for _, f := range failures {
		if f.Position >= total {
			total = f.Position + 1
		}
	}
	merged := make([]json.RawMessage, total)

	survivorIdx := 0
	failureSet := make(map[int]MultiSearchFailure, len(failures))
	for _, f := range failures {
		failureSet[f.Position] = f
	}
	for pos := 0; pos < total; pos++ {
		if f, failed := failureSet[pos]; failed {
			b, _ := json.Marshal(map[string]interface{}{"error": f.Reason, "status": f.Status})
			merged[pos] = b
			continue
		}
		if survivorIdx < len(responses) {
			merged[pos] = responses[survivorIdx]
			survivorIdx++
		}
	}

	mergedRaw, _ := json.Marshal(merged)
	envelope["responses"] = mergedRaw
	return json.Marshal(envelope)
}
