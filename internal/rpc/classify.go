// Package rpc classifies exchanges against known RPC wire conventions and
// aggregates the classified population into a method catalog.
package rpc

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
)

// Kind identifies an RPC wire convention.
type Kind string

// Recognized RPC kinds, in detection precedence order.
const (
	KindGRPC    Kind = "grpc"
	KindSOAP    Kind = "soap"
	KindXMLRPC  Kind = "xml-rpc"
	KindJSONRPC Kind = "json-rpc"
)

// Classification describes which RPC convention an exchange follows. It is
// a closed union over the fixed kinds; only the fields relevant to a kind
// are populated.
type Classification struct {
	Kind    Kind   `json:"kind"`
	Service string `json:"service,omitempty"` // gRPC only
	Method  string `json:"method,omitempty"`

	// JSON-RPC batch calls.
	Batch        bool     `json:"batch,omitempty"`
	BatchMethods []string `json:"batch_methods,omitempty"`
	BatchSize    int      `json:"batch_size,omitempty"`

	// JSON-RPC request parameters, as decoded.
	Params interface{} `json:"params,omitempty"`

	// Evidence names the signal that triggered the rule.
	Evidence string `json:"evidence,omitempty"`
}

// FullMethod returns the method in {service}/{method} form for gRPC, and
// the plain method name for every other kind.
func (c *Classification) FullMethod() string {
	if c.Kind == KindGRPC && c.Service != "" {
		return c.Service + "/" + c.Method
	}
	return c.Method
}

// rule is one pure predicate+extractor pair. Rules run at fixed precedence;
// the first non-nil result wins.
type rule func(ex *capture.Exchange) *Classification

var rules = []rule{
	classifyGRPC,
	classifySOAP,
	classifyXMLRPC,
	classifyJSONRPC,
}

// Classify evaluates the rule chain against one exchange. Returns nil when
// no convention matched; that is a normal outcome, not an error.
func Classify(ex *capture.Exchange) *Classification {
	for _, r := range rules {
		if c := r(ex); c != nil {
			return c
		}
	}
	return nil
}

var grpcPath = regexp.MustCompile(`^/([^/]+)/([^/]+)$`)

func classifyGRPC(ex *capture.Exchange) *Classification {
	ct := strings.ToLower(ex.Request.Header("content-type"))
	hasEncoding := ex.Request.HasHeader("grpc-encoding")
	if !strings.Contains(ct, "application/grpc") && !hasEncoding {
		return nil
	}

	c := &Classification{Kind: KindGRPC, Evidence: "content-type application/grpc"}
	if hasEncoding && !strings.Contains(ct, "application/grpc") {
		c.Evidence = "grpc-encoding header"
	}
	if m := grpcPath.FindStringSubmatch(ex.Request.Path); m != nil {
		c.Service = m[1]
		c.Method = m[2]
	}
	return c
}

var soapBodyMethod = regexp.MustCompile(`(?is)<(?:[a-z0-9_.-]+:)?body[^>]*>\s*<(?:[a-z0-9_.-]+:)?(\w+)`)

func classifySOAP(ex *capture.Exchange) *Classification {
	ct := strings.ToLower(ex.Request.Header("content-type"))
	action := ex.Request.Header("SOAPAction")
	if !strings.Contains(ct, "soap") && !ex.Request.HasHeader("SOAPAction") {
		return nil
	}

	c := &Classification{Kind: KindSOAP, Evidence: "soap content-type"}
	if ex.Request.HasHeader("SOAPAction") {
		c.Evidence = "SOAPAction header"
	}

	if action = strings.Trim(action, `"`); action != "" {
		if idx := strings.LastIndex(action, "#"); idx != -1 {
			c.Method = action[idx+1:]
		} else if idx := strings.LastIndex(action, "/"); idx != -1 {
			c.Method = action[idx+1:]
		} else {
			c.Method = action
		}
	}
	if c.Method == "" {
		// Fall back to the first child element under <Body>.
		if m := soapBodyMethod.FindStringSubmatch(ex.Request.BodyDecoded); m != nil {
			c.Method = m[1]
		}
	}
	return c
}

var xmlRPCMethodName = regexp.MustCompile(`(?s)<methodName>\s*([^<]+?)\s*</methodName>`)

func classifyXMLRPC(ex *capture.Exchange) *Classification {
	ct := strings.ToLower(ex.Request.Header("content-type"))
	if !strings.Contains(ct, "text/xml") || !strings.HasSuffix(ex.Request.Path, "/RPC2") {
		return nil
	}

	c := &Classification{Kind: KindXMLRPC, Evidence: "text/xml with /RPC2 path"}
	if m := xmlRPCMethodName.FindStringSubmatch(ex.Request.BodyDecoded); m != nil {
		c.Method = m[1]
	}
	return c
}

func classifyJSONRPC(ex *capture.Exchange) *Classification {
	if ex.Request.BodyDecoded == "" {
		return nil
	}
	var body interface{}
	if err := json.Unmarshal([]byte(ex.Request.BodyDecoded), &body); err != nil {
		return nil
	}

	switch v := body.(type) {
	case map[string]interface{}:
		method, _ := v["method"].(string)
		if ver, ok := v["jsonrpc"].(string); ok && ver == "2.0" {
			return &Classification{
				Kind:     KindJSONRPC,
				Method:   method,
				Params:   v["params"],
				Evidence: "jsonrpc 2.0 envelope",
			}
		}
		_, hasMethod := v["method"]
		_, hasParams := v["params"]
		_, hasID := v["id"]
		if hasMethod && (hasParams || hasID) {
			return &Classification{
				Kind:     KindJSONRPC,
				Method:   method,
				Params:   v["params"],
				Evidence: "jsonrpc 1.x envelope",
			}
		}
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		methods := make([]string, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil
			}
			method, ok := obj["method"].(string)
			if !ok {
				if _, present := obj["method"]; !present {
					return nil
				}
			}
			methods = append(methods, method)
		}
		return &Classification{
			Kind:         KindJSONRPC,
			Batch:        true,
			BatchMethods: methods,
			BatchSize:    len(methods),
			Params:       v,
			Evidence:     "jsonrpc batch array",
		}
	}
	return nil
}
