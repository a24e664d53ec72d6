// Package analyzer is the traffic-analysis facade: it orchestrates path
// templating, schema inference, RPC classification, and session correlation
// over materialized snapshots from a capture store.
package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
	"github.com/PentesterFlow/OpenProfiler/internal/endpoint"
	"github.com/PentesterFlow/OpenProfiler/internal/errors"
	"github.com/PentesterFlow/OpenProfiler/internal/insight"
	"github.com/PentesterFlow/OpenProfiler/internal/logger"
	"github.com/PentesterFlow/OpenProfiler/internal/metrics"
	"github.com/PentesterFlow/OpenProfiler/internal/rpc"
	"github.com/PentesterFlow/OpenProfiler/internal/schema"
	"github.com/PentesterFlow/OpenProfiler/internal/session"
)

// Analyzer derives structural knowledge from captured exchanges. Every
// entry point reads a snapshot from the store and computes a pure function
// of it; stored exchanges are never mutated.
type Analyzer struct {
	store   capture.Store
	cfg     *Config
	log     *logger.Logger
	metrics *metrics.Collector
	insight *insight.Client
}

// New creates an analyzer over a capture store.
func New(store capture.Store, cfg *Config, log *logger.Logger) *Analyzer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Global()
	}

	a := &Analyzer{
		store:   store,
		cfg:     cfg,
		log:     log.WithComponent("analyzer"),
		metrics: metrics.New(),
	}
	if cfg.Insight.Enabled {
		a.insight = insight.NewClient(
			&http.Client{Timeout: cfg.Insight.Timeout},
			insight.Config{
				BaseURL:           cfg.Insight.URL,
				Model:             cfg.Insight.Model,
				RequestsPerMinute: cfg.Insight.RequestsPerMinute,
			},
			log,
		)
	}
	return a
}

// Metrics returns the analyzer's metrics collector.
func (a *Analyzer) Metrics() *metrics.Collector {
	return a.metrics
}

// snapshot loads all exchanges for a host, mapping store failures and the
// empty population to typed errors.
func (a *Analyzer) snapshot(host, operation string) ([]capture.Exchange, error) {
	exchanges, err := a.store.ListExchangesByHost(host)
	if err != nil {
		return nil, errors.NewStorageError(host, operation, err)
	}
	if len(exchanges) == 0 {
		return nil, errors.NewInputEmptyError(host, operation)
	}
	return exchanges, nil
}

// BuildServiceProfile derives the endpoint templates, schemas, common
// headers, and auth type for one host. Cancellation is checked between
// endpoint groups; a cancelled analysis discards its partial aggregates.
func (a *Analyzer) BuildServiceProfile(ctx context.Context, host string) (*ServiceProfile, error) {
	started := time.Now()

	exchanges, err := a.snapshot(host, "service_profile")
	if err != nil {
		return nil, err
	}
	a.metrics.RecordExchanges(len(exchanges))

	groups := endpoint.GroupExchanges(exchanges)
	endpoints := make([]EndpointTemplate, 0, len(groups))
	for _, group := range groups {
		if ctx.Err() != nil {
			return nil, errors.NewCancelledError(host, "service_profile")
		}
		endpoints = append(endpoints, a.buildEndpoint(group))
	}
	a.metrics.RecordEndpoints(len(endpoints))

	chrono := make([]capture.Exchange, len(exchanges))
	copy(chrono, exchanges)
	capture.SortChronological(chrono)
	first := chrono[0].Request

	baseURL := fmt.Sprintf("%s://%s", first.Scheme, host)
	if first.Port != 0 && first.Port != 80 && first.Port != 443 {
		baseURL = fmt.Sprintf("%s:%d", baseURL, first.Port)
	}

	profile := &ServiceProfile{
		Name:               host,
		BaseURL:            baseURL,
		CapturedAt:         first.Timestamp,
		Endpoints:          endpoints,
		CommonHeaders:      endpoint.CommonHeaders(exchanges),
		AuthenticationType: endpoint.DetectAuthType(exchanges),
		TotalRequests:      len(exchanges),
		UniqueEndpoints:    len(endpoints),
	}

	a.metrics.RecordHostAnalysis(time.Since(started))
	a.log.AnalysisEvent(host, len(exchanges), len(endpoints), time.Since(started))
	return profile, nil
}

// buildEndpoint assembles one endpoint template from a non-empty group.
func (a *Analyzer) buildEndpoint(group endpoint.Group) EndpointTemplate {
	requestBodies := make([]string, 0, len(group.Exchanges))
	responseBodies := make([]string, 0, len(group.Exchanges))
	for _, ex := range group.Exchanges {
		requestBodies = append(requestBodies, ex.Request.BodyDecoded)
		if ex.Response != nil {
			responseBodies = append(responseBodies, ex.Response.BodyDecoded)
		}
	}

	requestSchema, requestMalformed := schema.InferPopulation(requestBodies)
	responseSchema, responseMalformed := schema.InferPopulation(responseBodies)
	a.metrics.RecordMalformedBodies(requestMalformed + responseMalformed)

	return EndpointTemplate{
		PathTemplate:   group.Template,
		Method:         group.Method,
		Parameters:     endpoint.PathParameters(group.Template),
		QueryParams:    endpoint.QueryParamUnion(group.Exchanges),
		RequestSchema:  requestSchema,
		ResponseSchema: responseSchema,
		Examples:       endpoint.ExampleURLs(group.Exchanges, a.cfg.ExampleURLs),
	}
}

// BuildRPCSchema classifies all of a host's exchanges and assembles the
// method catalog, keyed by a service name derived from each endpoint URL.
func (a *Analyzer) BuildRPCSchema(ctx context.Context, host string) (*RPCSchemaDocument, error) {
	exchanges, err := a.snapshot(host, "rpc_schema")
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, errors.NewCancelledError(host, "rpc_schema")
	}

	analysis := rpc.Aggregate(exchanges)
	for kind, calls := range analysis.CallsByKind {
		a.metrics.RecordClassification(string(kind), calls)
	}
	a.metrics.RecordUnclassified(analysis.Unclassified)
	a.metrics.RecordExchanges(len(exchanges))

	doc := &RPCSchemaDocument{
		Host:        host,
		GeneratedAt: time.Now().UTC(),
		Kinds:       analysis.KindsPresent,
		Services:    make(map[string]*RPCService),
	}

	// Walk endpoints in key order so colliding service names resolve the
	// same way on every run.
	keys := make([]string, 0, len(analysis.Endpoints))
	for key := range analysis.Endpoints {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ep := analysis.Endpoints[key]
		name := serviceName(ep.URL)
		svc, ok := doc.Services[name]
		if !ok {
			svc = &RPCService{
				Type:    string(ep.Kind),
				URL:     ep.URL,
				Methods: make(map[string]RPCMethodDoc),
			}
			doc.Services[name] = svc
		}
		for methodName, m := range ep.Methods {
			a.log.ClassificationEvent(string(ep.Kind), methodName, ep.URL)
			svc.Methods[methodName] = RPCMethodDoc{
				Params:    m.ParamTypes,
				Examples:  m.Examples,
				CallCount: m.CallCount,
			}
		}
	}

	return doc, nil
}

// serviceName derives a service name from the last path segment of an
// endpoint URL. A URL ending in a slash has an empty last segment and maps
// to "default".
func serviceName(url string) string {
	if idx := strings.LastIndex(url, "/"); idx != -1 {
		url = url[idx+1:]
	}
	if url == "" {
		return "default"
	}
	return url
}

// BuildSessionAnalysis correlates a host's exchanges into sessions and
// matches them against the flow catalog.
func (a *Analyzer) BuildSessionAnalysis(ctx context.Context, host string) (*SessionAnalysis, error) {
	exchanges, err := a.snapshot(host, "session_analysis")
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, errors.NewCancelledError(host, "session_analysis")
	}

	opts := []session.Option{session.WithIdleWindow(a.cfg.SessionWindow)}
	if catalog := a.cfg.FlowCatalog(); catalog != nil {
		opts = append(opts, session.WithCatalog(catalog))
	}
	correlator := session.NewCorrelator(opts...)

	result := correlator.Correlate(exchanges, time.Now())
	a.metrics.RecordSessions(result.TotalSessions)
	a.metrics.RecordFlows(result.MatchedFlows)

	analysis := &SessionAnalysis{
		TotalSessions:  result.TotalSessions,
		ActiveSessions: result.ActiveSessions,
		MatchedFlows:   result.MatchedFlows,
		FlowTypeCounts: result.FlowTypeCounts,
		Stats:          result.Stats,
	}
	if a.cfg.IncludeFlows {
		analysis.Flows = result.Flows
	}
	return analysis, nil
}

// AnalyzeAllHosts builds a service profile per host using a bounded worker
// pool. Hosts with no exchanges are skipped; cancellation aborts the run
// and discards partial output.
func (a *Analyzer) AnalyzeAllHosts(ctx context.Context) (map[string]*ServiceProfile, error) {
	hosts, err := a.store.ListHosts()
	if err != nil {
		return nil, errors.NewStorageError("", "analyze_all", err)
	}

	var (
		mu       sync.Mutex
		profiles = make(map[string]*ServiceProfile, len(hosts))
		wg       sync.WaitGroup
		sem      = make(chan struct{}, a.cfg.Workers)
	)

	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()

			profile, err := a.BuildServiceProfile(ctx, host)
			if err != nil {
				if !errors.IsInputEmpty(err) {
					a.log.WithHost(host).WithError(err).Warn("host analysis failed")
				}
				return
			}
			mu.Lock()
			profiles[host] = profile
			mu.Unlock()
		}(host)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, errors.NewCancelledError("", "analyze_all")
	}
	return profiles, nil
}

// Insights asks the optional model endpoint about a host's profile. A
// disabled client, a timeout, or any failure yields no insights; the reason
// is logged and never propagates as a fatal error.
func (a *Analyzer) Insights(ctx context.Context, host string, profile *ServiceProfile) []insight.Insight {
	if a.insight == nil || profile == nil {
		return nil
	}

	summary := struct {
		Host      string             `json:"host"`
		Endpoints []EndpointTemplate `json:"endpoints"`
		Auth      string             `json:"authentication_type,omitempty"`
		Requests  int                `json:"total_requests"`
	}{host, profile.Endpoints, profile.AuthenticationType, profile.TotalRequests}

	insights, err := a.insight.AnalyzeTraffic(ctx, host, summary)
	if err != nil {
		a.log.WithHost(host).WithError(err).Warn("insight call degraded to empty result")
		return nil
	}
	return insights
}
