package session

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
)

// FlowStep is one expected request in a flow template. The path pattern is
// anchored at the start of the path.
type FlowStep struct {
	PathPattern string
	Method      string

	re *regexp.Regexp
}

// FlowTemplate is a named, ordered sequence of expected steps.
type FlowTemplate struct {
	Name  string
	Steps []FlowStep
}

// NewFlowTemplate compiles a template from (pattern, method) step pairs.
// Invalid patterns panic; catalogs are fixed at startup.
func NewFlowTemplate(name string, steps ...FlowStep) FlowTemplate {
	for i := range steps {
		steps[i].re = regexp.MustCompile("^(?:" + steps[i].PathPattern + ")")
	}
	return FlowTemplate{Name: name, Steps: steps}
}

// DefaultCatalog returns the built-in flow templates.
func DefaultCatalog() []FlowTemplate {
	return []FlowTemplate{
		NewFlowTemplate("User Login Flow",
			FlowStep{PathPattern: `/login`, Method: "GET"},
			FlowStep{PathPattern: `/auth/login`, Method: "POST"},
			FlowStep{PathPattern: `/dashboard`, Method: "GET"},
		),
		NewFlowTemplate("Checkout Flow",
			FlowStep{PathPattern: `/cart`, Method: "GET"},
			FlowStep{PathPattern: `/checkout`, Method: "GET"},
			FlowStep{PathPattern: `/payment`, Method: "POST"},
			FlowStep{PathPattern: `/order/confirm`, Method: "POST"},
		),
		NewFlowTemplate("User Registration",
			FlowStep{PathPattern: `/register`, Method: "GET"},
			FlowStep{PathPattern: `/api/register`, Method: "POST"},
			FlowStep{PathPattern: `/verify`, Method: "GET"},
		),
		NewFlowTemplate("Password Reset",
			FlowStep{PathPattern: `/forgot-password`, Method: "GET"},
			FlowStep{PathPattern: `/api/reset-password`, Method: "POST"},
			FlowStep{PathPattern: `/reset-password`, Method: "GET"},
			FlowStep{PathPattern: `/api/update-password`, Method: "POST"},
		),
		NewFlowTemplate("API CRUD Operations",
			FlowStep{PathPattern: `/api/\w+`, Method: "POST"},
			FlowStep{PathPattern: `/api/\w+/\d+`, Method: "GET"},
			FlowStep{PathPattern: `/api/\w+/\d+`, Method: "PUT"},
			FlowStep{PathPattern: `/api/\w+/\d+`, Method: "DELETE"},
		),
	}
}

// MatchedStep records one consumed step and its correlation data.
type MatchedStep struct {
	Order      int                    `json:"order"`
	ExchangeID string                 `json:"exchange_id"`
	Path       string                 `json:"path"`
	Method     string                 `json:"method"`
	StatusCode int                    `json:"status_code,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Extracted  map[string]interface{} `json:"extracted_data,omitempty"`
}

// FlowMatch is one template matched against one session.
type FlowMatch struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	SessionID  string        `json:"session_id"`
	Steps      []MatchedStep `json:"steps"`
	Success    bool          `json:"success"`
	DurationMS float64       `json:"duration_ms"`
}

// matchThreshold is the fraction of template steps that must be consumed.
const matchThreshold = 0.7

// matchTemplate walks a session's exchanges chronologically against a
// template. An exchange matching the next required step consumes it and
// advances the cursor; anything else is skipped, so steps need not be
// contiguous. Returns nil when fewer than 70% of the steps were consumed.
func matchTemplate(s *Session, ordered []*capture.Exchange, tmpl FlowTemplate) *FlowMatch {
	var matched []MatchedStep
	cursor := 0

	for _, ex := range ordered {
		if cursor >= len(tmpl.Steps) {
			break
		}
		step := tmpl.Steps[cursor]
		if !step.re.MatchString(ex.Request.Path) || ex.Request.Method != step.Method {
			continue
		}

		matched = append(matched, MatchedStep{
			Order:      cursor,
			ExchangeID: ex.Request.ID,
			Path:       ex.Request.Path,
			Method:     ex.Request.Method,
			StatusCode: ex.Status(),
			Timestamp:  ex.Request.Timestamp,
			Extracted:  extractStepData(ex),
		})
		cursor++
	}

	if float64(len(matched)) < float64(len(tmpl.Steps))*matchThreshold {
		return nil
	}

	match := &FlowMatch{
		ID:        uuid.NewString(),
		Name:      tmpl.Name,
		SessionID: s.ID,
		Steps:     matched,
		Success:   isSuccessful(matched),
	}
	if len(matched) > 0 {
		match.DurationMS = float64(matched[len(matched)-1].Timestamp.Sub(matched[0].Timestamp)) / float64(time.Millisecond)
	}
	return match
}

// isSuccessful requires every consumed step with a response to be <400 and
// the final consumed step to have a <400 response.
func isSuccessful(steps []MatchedStep) bool {
	if len(steps) == 0 {
		return false
	}
	for _, step := range steps {
		if step.StatusCode >= 400 {
			return false
		}
	}
	last := steps[len(steps)-1]
	return last.StatusCode > 0 && last.StatusCode < 400
}

var numericSegment = regexp.MustCompile(`/(\d+)`)

// correlationKeys are copied out of JSON response bodies when present.
var correlationKeys = []string{"token", "session", "id", "user_id", "order_id"}

// extractStepData captures numeric path segments and known correlation keys
// from the response body.
func extractStepData(ex *capture.Exchange) map[string]interface{} {
	data := make(map[string]interface{})

	if ids := numericSegment.FindAllStringSubmatch(ex.Request.Path, -1); len(ids) > 0 {
		extracted := make([]string, 0, len(ids))
		for _, m := range ids {
			extracted = append(extracted, m[1])
		}
		data["extracted_ids"] = extracted
	}

	if ex.Response != nil && ex.Response.BodyDecoded != "" {
		var body map[string]interface{}
		if err := json.Unmarshal([]byte(ex.Response.BodyDecoded), &body); err == nil {
			for _, key := range correlationKeys {
				if v, ok := body[key]; ok {
					data[key] = v
				}
			}
		}
	}

	if len(data) == 0 {
		return nil
	}
	return data
}
