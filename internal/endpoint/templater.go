// Package endpoint groups captured exchanges into parameterized endpoint
// templates and infers host-level header and authentication traits.
package endpoint

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
)

var (
	uuidSegment   = regexp.MustCompile(`^[a-f0-9]{8}-?[a-f0-9]{4}-?[a-f0-9]{4}-?[a-f0-9]{4}-?[a-f0-9]{12}$`)
	objectID      = regexp.MustCompile(`^[a-f0-9]{24}$`)
	digitsOnly    = regexp.MustCompile(`^[0-9]+$`)
	placeholderRe = regexp.MustCompile(`\{(\w+)\}`)
)

// TemplatePath collapses every parameter-shaped segment of a path to the
// {id} placeholder. Templating an already-templated path is a no-op.
func TemplatePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isParameterSegment(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// isParameterSegment reports whether a segment looks like a path parameter:
// purely numeric, UUID-shaped, or a 24-hex object id.
func isParameterSegment(seg string) bool {
	if seg == "" {
		return false
	}
	if digitsOnly.MatchString(seg) {
		return true
	}
	lower := strings.ToLower(seg)
	return uuidSegment.MatchString(lower) || objectID.MatchString(lower)
}

// PathParameters returns the ordered placeholder names of a template.
func PathParameters(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	params := make([]string, 0, len(matches))
	for _, m := range matches {
		params = append(params, m[1])
	}
	return params
}

// Group is a set of exchanges sharing one (template, method) key.
type Group struct {
	Template  string
	Method    string
	Exchanges []capture.Exchange
}

// GroupExchanges partitions exchanges by (templated path, method). Output is
// sorted by (template, method) so repeated runs are deterministic.
func GroupExchanges(exchanges []capture.Exchange) []Group {
	type key struct {
		template string
		method   string
	}
	grouped := make(map[key][]capture.Exchange)
	for _, ex := range exchanges {
		k := key{TemplatePath(ex.Request.Path), ex.Request.Method}
		grouped[k] = append(grouped[k], ex)
	}

	groups := make([]Group, 0, len(grouped))
	for k, members := range grouped {
		groups = append(groups, Group{Template: k.template, Method: k.method, Exchanges: members})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Template != groups[j].Template {
			return groups[i].Template < groups[j].Template
		}
		return groups[i].Method < groups[j].Method
	})
	return groups
}

// QueryParamUnion returns the union of query-parameter names observed across
// a group, sorted.
func QueryParamUnion(exchanges []capture.Exchange) []string {
	seen := make(map[string]struct{})
	for _, ex := range exchanges {
		for name := range ex.Request.QueryParams {
			seen[name] = struct{}{}
		}
	}
	params := make([]string, 0, len(seen))
	for name := range seen {
		params = append(params, name)
	}
	sort.Strings(params)
	return params
}

// ExampleURLs returns up to limit example URLs from a group.
func ExampleURLs(exchanges []capture.Exchange, limit int) []string {
	if limit <= 0 || limit > len(exchanges) {
		limit = len(exchanges)
	}
	urls := make([]string, 0, limit)
	for _, ex := range exchanges[:limit] {
		urls = append(urls, ex.Request.URL)
	}
	return urls
}

// Headers never reported as common, regardless of frequency.
var excludedHeaders = map[string]struct{}{
	"host":           {},
	"content-length": {},
	"connection":     {},
}

// CommonHeaders reports each header whose most frequent value covers at
// least 80% of the exchange population, keyed by lowercased name.
func CommonHeaders(exchanges []capture.Exchange) map[string]string {
	if len(exchanges) == 0 {
		return map[string]string{}
	}

	valueCounts := make(map[string]map[string]int)
	for _, ex := range exchanges {
		for name, value := range ex.Request.Headers {
			lower := strings.ToLower(name)
			if valueCounts[lower] == nil {
				valueCounts[lower] = make(map[string]int)
			}
			valueCounts[lower][value]++
		}
	}

	threshold := float64(len(exchanges)) * 0.8
	common := make(map[string]string)
	for name, values := range valueCounts {
		if _, excluded := excludedHeaders[name]; excluded {
			continue
		}
		topValue, topCount := "", 0
		for value, count := range values {
			if count > topCount || (count == topCount && value < topValue) {
				topValue, topCount = value, count
			}
		}
		if float64(topCount) >= threshold {
			common[name] = topValue
		}
	}
	return common
}

// authMarkers is the fixed-precedence table of authentication indicators.
var authMarkers = []struct {
	Marker string
	Type   string
}{
	{"Bearer", "Bearer Token"},
	{"Basic", "Basic Auth"},
	{"Digest", "Digest Auth"},
	{"OAuth", "OAuth"},
	{"X-API-Key", "API Key"},
	{"X-Auth-Token", "Custom Token"},
}

// DetectAuthType returns the first matched authentication marker found
// anywhere in the exchange population, or "" when none matched. Markers are
// checked against Authorization values first, then against header names.
func DetectAuthType(exchanges []capture.Exchange) string {
	for _, ex := range exchanges {
		names := make([]string, 0, len(ex.Request.Headers))
		for name := range ex.Request.Headers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			value := ex.Request.Headers[name]
			if strings.EqualFold(name, "authorization") {
				for _, m := range authMarkers {
					if strings.Contains(value, m.Marker) {
						return m.Type
					}
				}
			}
			for _, m := range authMarkers {
				if strings.Contains(strings.ToLower(name), strings.ToLower(m.Marker)) {
					return m.Type
				}
			}
		}
	}
	return ""
}
