// Package dashboard builds deep links into the CI insights dashboard for a
// traced job.
package dashboard

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	jobsPath       = "/ci-insights/jobs"
	operatorEquals = "equals"
)

// Filter is one dashboard filter clause.
type Filter struct {
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Value    []string `json:"value"`
}

// Link identifies the job a dashboard URL points at. An empty Repository
// leaves the repository filter out.
type Link struct {
	Login        string
	Repository   string
	JobName      string
	PipelineName string
	TraceID      string
	SpanID       string
}

// Filters returns the filter clauses of the link in dashboard order.
func (l Link) Filters() []Filter {
	filters := []Filter{
		{Field: "job_name", Operator: operatorEquals, Value: []string{l.JobName}},
		{Field: "pipeline_name", Operator: operatorEquals, Value: []string{l.PipelineName}},
	}
	if l.Repository != "" {
		filters = append(filters, Filter{Field: "repository", Operator: operatorEquals, Value: []string{l.Repository}})
	}
	return filters
}

// BuildURL returns the dashboard path and query for the link. The filters
// are escaped twice because the dashboard decodes them once before handing
// them to the API. Trace and span ids travel base64url encoded.
func BuildURL(l Link) (string, error) {
	raw, err := json.Marshal(l.Filters())
	if err != nil {
		return "", fmt.Errorf("encode dashboard filters: %w", err)
	}

	filters := url.QueryEscape(url.QueryEscape(string(raw)))
	return fmt.Sprintf("%s?filters=%s&job_trace_id=%s&job_span_id=%s&login=%s",
		jobsPath,
		filters,
		encodeID(l.TraceID),
		encodeID(l.SpanID),
		url.QueryEscape(l.Login),
	), nil
}

// Absolute prefixes the link with the dashboard base URL.
func Absolute(base string, l Link) (string, error) {
	path, err := BuildURL(l)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(base, "/") + path, nil
}

func encodeID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}
