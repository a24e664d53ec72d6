package analyzer

import (
	"time"

	"github.com/PentesterFlow/OpenProfiler/internal/rpc"
	"github.com/PentesterFlow/OpenProfiler/internal/schema"
	"github.com/PentesterFlow/OpenProfiler/internal/session"
)

// EndpointTemplate is one parameterized (path, method) grouping believed to
// represent a logical API operation. Immutable once built.
type EndpointTemplate struct {
	PathTemplate   string       `json:"path_pattern" yaml:"path_pattern"`
	Method         string       `json:"method" yaml:"method"`
	Parameters     []string     `json:"parameters" yaml:"parameters"`
	QueryParams    []string     `json:"query_params" yaml:"query_params"`
	RequestSchema  *schema.Node `json:"request_schema,omitempty" yaml:"request_schema,omitempty"`
	ResponseSchema *schema.Node `json:"response_schema,omitempty" yaml:"response_schema,omitempty"`
	Examples       []string     `json:"examples" yaml:"examples"`
}

// ServiceProfile is the consolidated structural profile of one host.
type ServiceProfile struct {
	Name               string             `json:"name" yaml:"name"`
	BaseURL            string             `json:"base_url" yaml:"base_url"`
	CapturedAt         time.Time          `json:"captured_at" yaml:"captured_at"`
	Endpoints          []EndpointTemplate `json:"endpoints" yaml:"endpoints"`
	CommonHeaders      map[string]string  `json:"common_headers" yaml:"common_headers"`
	AuthenticationType string             `json:"authentication_type,omitempty" yaml:"authentication_type,omitempty"`
	TotalRequests      int                `json:"total_requests" yaml:"total_requests"`
	UniqueEndpoints    int                `json:"unique_endpoints" yaml:"unique_endpoints"`
}

// RPCMethodDoc documents one RPC method of a service.
type RPCMethodDoc struct {
	Params    map[string]string `json:"params" yaml:"params"`
	Examples  []rpc.Example     `json:"examples" yaml:"examples"`
	CallCount int               `json:"call_count" yaml:"call_count"`
}

// RPCService groups the methods of one logical RPC service.
type RPCService struct {
	Type    string                  `json:"type" yaml:"type"`
	URL     string                  `json:"url" yaml:"url"`
	Methods map[string]RPCMethodDoc `json:"methods" yaml:"methods"`
}

// RPCSchemaDocument is the generated RPC catalog for one host.
type RPCSchemaDocument struct {
	Host        string                 `json:"host" yaml:"host"`
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Kinds       []rpc.Kind             `json:"rpc_types" yaml:"rpc_types"`
	Services    map[string]*RPCService `json:"services" yaml:"services"`
}

// SessionAnalysis is the session and flow correlation summary for one host.
type SessionAnalysis struct {
	TotalSessions  int                 `json:"total_sessions" yaml:"total_sessions"`
	ActiveSessions int                 `json:"active_sessions" yaml:"active_sessions"`
	MatchedFlows   int                 `json:"detected_flows" yaml:"detected_flows"`
	FlowTypeCounts map[string]int      `json:"flow_types" yaml:"flow_types"`
	Stats          session.Stats       `json:"session_stats" yaml:"session_stats"`
	Flows          []session.FlowMatch `json:"flows,omitempty" yaml:"flows,omitempty"`
}
