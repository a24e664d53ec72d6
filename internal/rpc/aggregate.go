package rpc

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
)

// maxExamples bounds the trailing window of examples kept per method.
const maxExamples = 10

// Example is one observed call of an RPC method.
type Example struct {
	RequestID  string      `json:"request_id"`
	Params     interface{} `json:"params,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	ElapsedMS  float64     `json:"response_time_ms,omitempty"`
	StatusCode int         `json:"status_code,omitempty"`
}

// Method accumulates everything observed about one RPC method on one
// logical endpoint.
type Method struct {
	Name       string            `json:"name"`
	Kind       Kind              `json:"kind"`
	CallCount  int               `json:"call_count"`
	Examples   []Example         `json:"examples,omitempty"`
	ParamTypes map[string]string `json:"param_types,omitempty"`
}

// Endpoint is a logical RPC endpoint: one URL speaking one convention.
type Endpoint struct {
	URL     string             `json:"url"`
	Kind    Kind               `json:"kind"`
	Methods map[string]*Method `json:"methods"`
}

// Analysis is the aggregate classification result over one host's traffic.
type Analysis struct {
	TotalCalls   int
	Unclassified int
	KindsPresent []Kind
	CallsByKind  map[Kind]int
	Endpoints    map[string]*Endpoint // keyed by url:kind
}

// Aggregate classifies every exchange and folds the matches into logical
// endpoints and per-method records. Unclassified exchanges are skipped and
// tallied.
func Aggregate(exchanges []capture.Exchange) *Analysis {
	a := &Analysis{
		CallsByKind: make(map[Kind]int),
		Endpoints:   make(map[string]*Endpoint),
	}

	for i := range exchanges {
		ex := &exchanges[i]
		c := Classify(ex)
		if c == nil {
			a.Unclassified++
			continue
		}

		a.TotalCalls++
		a.CallsByKind[c.Kind]++

		key := ex.Request.URL + ":" + string(c.Kind)
		ep, ok := a.Endpoints[key]
		if !ok {
			ep = &Endpoint{URL: ex.Request.URL, Kind: c.Kind, Methods: make(map[string]*Method)}
			a.Endpoints[key] = ep
		}

		ep.record(ex, c)
	}

	for kind := range a.CallsByKind {
		a.KindsPresent = append(a.KindsPresent, kind)
	}
	sort.Slice(a.KindsPresent, func(i, j int) bool { return a.KindsPresent[i] < a.KindsPresent[j] })

	return a
}

// record folds one classified exchange into the endpoint's method catalog.
// Batch calls count once per batched method.
func (ep *Endpoint) record(ex *capture.Exchange, c *Classification) {
	names := []string{c.FullMethod()}
	if c.Batch {
		names = c.BatchMethods
	}

	for _, name := range names {
		if name == "" {
			continue
		}
		m, ok := ep.Methods[name]
		if !ok {
			m = &Method{Name: name, Kind: c.Kind, ParamTypes: make(map[string]string)}
			ep.Methods[name] = m
		}

		m.CallCount++
		m.Examples = append(m.Examples, buildExample(ex, c))
		if len(m.Examples) > maxExamples {
			m.Examples = m.Examples[1:]
		}
		m.inferParamTypes(c.Params)
	}
}

func buildExample(ex *capture.Exchange, c *Classification) Example {
	e := Example{
		RequestID: ex.Request.ID,
		Params:    c.Params,
		Timestamp: ex.Request.Timestamp,
	}
	if ex.Response != nil {
		e.StatusCode = ex.Response.StatusCode
		e.ElapsedMS = ex.Response.ElapsedMS
		e.Result = extractResult(ex.Response.BodyDecoded)
	}
	return e
}

// extractResult pulls the result (or error) member out of a JSON-RPC style
// response body. Non-JSON bodies yield nil.
func extractResult(body string) interface{} {
	if body == "" {
		return nil
	}
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil
	}
	if result, ok := v["result"]; ok {
		return result
	}
	return v["error"]
}

// inferParamTypes records the observed JSON value kind of each parameter,
// keyed by name for object params and by index for positional params.
func (m *Method) inferParamTypes(params interface{}) {
	switch p := params.(type) {
	case map[string]interface{}:
		for key, value := range p {
			m.ParamTypes[key] = jsonKind(value)
		}
	case []interface{}:
		for idx, value := range p {
			m.ParamTypes[fmt.Sprintf("%d", idx)] = jsonKind(value)
		}
	}
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}
