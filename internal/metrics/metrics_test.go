package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCollector(t *testing.T) {
	c := New()

	c.RecordExchanges(10)
	c.RecordExchanges(5)
	c.RecordEndpoints(3)
	c.RecordMalformedBodies(1)
	c.RecordUnclassified(1)
	c.RecordClassification("json-rpc", 2)
	c.RecordClassification("grpc", 1)
	c.RecordSessions(4)
	c.RecordSessions(2) // gauge, not counter
	c.RecordFlows(1)
	c.RecordHostAnalysis(10 * time.Millisecond)
	c.RecordHostAnalysis(30 * time.Millisecond)

	s := c.GetSnapshot()
	if s.ExchangesAnalyzed != 15 {
		t.Errorf("ExchangesAnalyzed = %d, want 15", s.ExchangesAnalyzed)
	}
	if s.EndpointsFound != 3 {
		t.Errorf("EndpointsFound = %d, want 3", s.EndpointsFound)
	}
	if s.MalformedBodies != 1 || s.Unclassified != 1 {
		t.Errorf("MalformedBodies/Unclassified = %d/%d, want 1/1", s.MalformedBodies, s.Unclassified)
	}
	if s.ClassifiedByKind["json-rpc"] != 2 || s.ClassifiedByKind["grpc"] != 1 {
		t.Errorf("ClassifiedByKind = %v", s.ClassifiedByKind)
	}
	if s.SessionsTracked != 2 {
		t.Errorf("SessionsTracked = %d, want 2", s.SessionsTracked)
	}
	if s.FlowsMatched != 1 {
		t.Errorf("FlowsMatched = %d, want 1", s.FlowsMatched)
	}
	if s.HostsAnalyzed != 2 {
		t.Errorf("HostsAnalyzed = %d, want 2", s.HostsAnalyzed)
	}
	if s.AvgAnalysisMS != 20 {
		t.Errorf("AvgAnalysisMS = %v, want 20", s.AvgAnalysisMS)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordExchanges(1)
			c.RecordClassification("soap", 1)
			c.RecordFlows(1)
		}()
	}
	wg.Wait()

	s := c.GetSnapshot()
	if s.ExchangesAnalyzed != 50 {
		t.Errorf("ExchangesAnalyzed = %d, want 50", s.ExchangesAnalyzed)
	}
	if s.ClassifiedByKind["soap"] != 50 {
		t.Errorf("ClassifiedByKind[soap] = %d, want 50", s.ClassifiedByKind["soap"])
	}
	if s.FlowsMatched != 50 {
		t.Errorf("FlowsMatched = %d, want 50", s.FlowsMatched)
	}
}
