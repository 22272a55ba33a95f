package dashboard

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFilters(t *testing.T, link string) []Filter {
	t.Helper()

	query := strings.TrimPrefix(link, jobsPath+"?")
	raw := strings.SplitN(strings.SplitN(query, "&", 2)[0], "=", 2)[1]

	once, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	twice, err := url.QueryUnescape(once)
	require.NoError(t, err)

	var filters []Filter
	require.NoError(t, json.Unmarshal([]byte(twice), &filters))
	return filters
}

func TestBuildURL(t *testing.T) {
	link := Link{
		Login:        "testorg",
		Repository:   "test-repo",
		JobName:      "test-job",
		PipelineName: "test-pipeline",
		TraceID:      "trace123",
		SpanID:       "span456",
	}

	got, err := BuildURL(link)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "/ci-insights/jobs?filters="))
	assert.Contains(t, got, "&job_trace_id=dHJhY2UxMjM")
	assert.Contains(t, got, "&job_span_id=c3BhbjQ1Ng")
	assert.True(t, strings.HasSuffix(got, "&login=testorg"))

	filters := decodeFilters(t, got)
	require.Len(t, filters, 3)
	assert.Equal(t, Filter{Field: "job_name", Operator: "equals", Value: []string{"test-job"}}, filters[0])
	assert.Equal(t, Filter{Field: "pipeline_name", Operator: "equals", Value: []string{"test-pipeline"}}, filters[1])
	assert.Equal(t, Filter{Field: "repository", Operator: "equals", Value: []string{"test-repo"}}, filters[2])
}

func TestBuildURLWithoutRepository(t *testing.T) {
	got, err := BuildURL(Link{Login: "org", JobName: "job", PipelineName: "pipe"})
	require.NoError(t, err)

	filters := decodeFilters(t, got)
	require.Len(t, filters, 2)
	for _, f := range filters {
		assert.NotEqual(t, "repository", f.Field)
	}
}

func TestBuildURLEscapesSpecialCharacters(t *testing.T) {
	got, err := BuildURL(Link{
		Login:        "test@org+space",
		Repository:   "test-repo/with-slash",
		JobName:      "test job with spaces",
		PipelineName: "pipeline&name=special",
		TraceID:      "trace+123&test",
		SpanID:       "span/456?test",
	})
	require.NoError(t, err)

	assert.Contains(t, got, "&login=test%40org%2Bspace")
	assert.Contains(t, got, "&job_trace_id=dHJhY2UrMTIzJnRlc3Q")
	assert.Contains(t, got, "&job_span_id=c3Bhbi80NTY_dGVzdA")

	filters := decodeFilters(t, got)
	assert.Equal(t, []string{"test job with spaces"}, filters[0].Value)
	assert.Equal(t, []string{"pipeline&name=special"}, filters[1].Value)
}

func TestBuildURLParameterOrder(t *testing.T) {
	got, err := BuildURL(Link{Login: "o", JobName: "j", PipelineName: "p", TraceID: "t", SpanID: "s"})
	require.NoError(t, err)

	filters := strings.Index(got, "filters=")
	trace := strings.Index(got, "job_trace_id=")
	span := strings.Index(got, "job_span_id=")
	login := strings.Index(got, "login=")

	assert.Less(t, filters, trace)
	assert.Less(t, trace, span)
	assert.Less(t, span, login)
}

func TestAbsolute(t *testing.T) {
	got, err := Absolute("https://dashboard.example.com/", Link{Login: "o", JobName: "j", PipelineName: "p"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "https://dashboard.example.com/ci-insights/jobs?filters="))
}
