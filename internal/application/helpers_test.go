package application

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

type metricSample struct {
	name   string
	value  float64
	labels map[string]string
}

// recordingMetrics is a ports.MetricsCollector that keeps every sample.
type recordingMetrics struct {
	mu         sync.Mutex
	counters   []metricSample
	histograms []metricSample
	latencies  []metricSample
}

func (m *recordingMetrics) RecordCounter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, metricSample{name, value, labels})
}

func (m *recordingMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, metricSample{name, value, labels})
}

func (m *recordingMetrics) RecordLatency(name string, d time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, metricSample{name, d.Seconds(), labels})
}

func (m *recordingMetrics) RecordGauge(string, float64, map[string]string) {}

func (m *recordingMetrics) samples(kind []metricSample, name string) []metricSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []metricSample
	for _, s := range kind {
		if s.name == name {
			out = append(out, s)
		}
	}
	return out
}

// staticStore returns the same passages for every query.
func staticStore(passages ...domain.Passage) ports.KnowledgeStore {
	return ports.KnowledgeStoreFunc(func(_ context.Context, _ string, topK int) ([]domain.Passage, error) {
		if len(passages) > topK {
			return passages[:topK], nil
		}
		return passages, nil
	})
}

// staticEvaluation returns raw for every request and remembers the last one.
type staticEvaluation struct {
	mu   sync.Mutex
	raw  map[string]any
	err  error
	last ports.EvaluationRequest
}

func (s *staticEvaluation) Evaluate(_ context.Context, req ports.EvaluationRequest) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	return s.raw, s.err
}

func (s *staticEvaluation) request() ports.EvaluationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func score(v float64, bad bool) map[string]any {
	return map[string]any{"score": v, "is_bad": bad}
}
