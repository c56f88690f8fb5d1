package insights

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/source"
)

const defaultBaseURL = "https://api.applicationinsights.io/v1/apps"

// Adapter implements source.MetricSource for Application Insights.
type Adapter struct {
	client        *source.Client
	baseURL       string
	applicationID string
}

// NewAdapter creates an adapter for one application. An empty baseURL
// selects the public API.
func NewAdapter(baseURL, applicationID, apiKey string, opts ...source.ClientOption) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		client:        source.NewClient(model.ProviderAppInsights, source.HeaderAuth("x-api-key", apiKey), opts...),
		baseURL:       strings.TrimRight(baseURL, "/"),
		applicationID: applicationID,
	}
}

// Type returns the provider type for Application Insights.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderAppInsights
}

// ValidateConnection requests the request count metric and returns the
// application id.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	if _, err := a.GetMetric(ctx, source.MetricQuery{Metric: "requests/count"}); err != nil {
		return "", fmt.Errorf("validating Application Insights connection: %w", err)
	}
	return a.applicationID, nil
}

// GetMetric fetches one aggregated metric.
func (a *Adapter) GetMetric(ctx context.Context, q source.MetricQuery) (*source.Metric, error) {
	query := url.Values{}
	if q.Aggregation != "" {
		query.Set("aggregation", q.Aggregation)
	}
	if q.Timespan != "" {
		query.Set("timespan", q.Timespan)
	}
	u := fmt.Sprintf("%s/%s/metrics/%s", a.baseURL, url.PathEscape(a.applicationID), q.Metric)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	body, err := a.client.GetBody(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching metric %s: %w", q.Metric, err)
	}

	m, err := parseMetric(body, q.Metric)
	if err != nil {
		return nil, &source.ProviderError{Provider: model.ProviderAppInsights, URL: u, StatusCode: 200, Err: err}
	}
	return m, nil
}

// parseMetric reads {"value": {"start", "end", "<metric>": {"<agg>": n}}}.
func parseMetric(body []byte, metric string) (*source.Metric, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("malformed metric payload")
	}
	value := gjson.GetBytes(body, "value")
	if !value.IsObject() {
		return nil, errors.New("metric payload has no value object")
	}

	var agg gjson.Result
	value.ForEach(func(k, v gjson.Result) bool {
		if k.String() == metric {
			agg = v
			return false
		}
		return true
	})
	if !agg.IsObject() {
		return nil, fmt.Errorf("metric %s missing from payload", metric)
	}

	var number gjson.Result
	agg.ForEach(func(_, v gjson.Result) bool {
		number = v
		return false
	})
	if number.Type != gjson.Number {
		return nil, fmt.Errorf("metric %s has no numeric aggregate", metric)
	}

	m := &source.Metric{Value: number.Float()}
	if t, ok := parseTime(value.Get("start").String()); ok {
		m.Start = &t
	}
	if t, ok := parseTime(value.Get("end").String()); ok {
		m.End = &t
	}
	return m, nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
