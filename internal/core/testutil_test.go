package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// fakeStats is an in-memory StatsRepository with injectable failures.
type fakeStats struct {
	mu      sync.Mutex
	senders map[string]*SenderStatistics
	domains map[string]*DomainStatistics
	log     []*FeedbackAction

	senderErr error
	domainErr error
	upsertErr error
	appendErr error
}

func newFakeStats() *fakeStats {
	return &fakeStats{
		senders: make(map[string]*SenderStatistics),
		domains: make(map[string]*DomainStatistics),
	}
}

func (f *fakeStats) key(accountID, name string) string {
	return accountID + "|" + name
}

func (f *fakeStats) GetSenderStats(_ context.Context, accountID, senderEmail string) (*SenderStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.senderErr != nil {
		return nil, f.senderErr
	}
	stats, ok := f.senders[f.key(accountID, senderEmail)]
	if !ok {
		return nil, ErrStatsNotFound
	}
	cp := *stats
	return &cp, nil
}

func (f *fakeStats) GetDomainStats(_ context.Context, accountID, domain string) (*DomainStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.domainErr != nil {
		return nil, f.domainErr
	}
	stats, ok := f.domains[f.key(accountID, domain)]
	if !ok {
		return nil, ErrStatsNotFound
	}
	cp := *stats
	return &cp, nil
}

func (f *fakeStats) UpsertSenderStats(_ context.Context, stats *SenderStatistics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *stats
	f.senders[f.key(stats.AccountID, stats.SenderEmail)] = &cp
	return nil
}

func (f *fakeStats) UpsertDomainStats(_ context.Context, stats *DomainStatistics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *stats
	f.domains[f.key(stats.AccountID, stats.Domain)] = &cp
	return nil
}

func (f *fakeStats) AppendFeedback(_ context.Context, action *FeedbackAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.log = append(f.log, action)
	return nil
}

func (f *fakeStats) senderRow(accountID, senderEmail string) *SenderStatistics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.senders[f.key(accountID, senderEmail)]
}

func (f *fakeStats) domainRow(accountID, domain string) *DomainStatistics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.domains[f.key(accountID, domain)]
}

// stubLayer returns a fixed result and counts its invocations.
type stubLayer struct {
	mu     sync.Mutex
	result *LayerResult
	err    error
	calls  int
}

func (s *stubLayer) Classify(_ context.Context, _ *Email) (*LayerResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.result
	return &cp, nil
}

func (s *stubLayer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubContextLayer is a ContextLayer double that records the prior-layer
// context it was handed.
type stubContextLayer struct {
	mu          sync.Mutex
	result      *LayerResult
	err         error
	calls       int
	lastRule    *LayerResult
	lastHistory *LayerResult
}

func (s *stubContextLayer) ClassifyWithContext(_ context.Context, _ *Email, rule, history *LayerResult) (*LayerResult, error) {
	s.mu.Lock()
	s.calls++
	s.lastRule = rule
	s.lastHistory = history
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.result
	return &cp, nil
}

func (s *stubContextLayer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubProvider is an LLMProvider double.
type stubProvider struct {
	name    string
	verdict *LLMVerdict
	err     error

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) ClassifyEmail(_ context.Context, _ *Email, _ *PriorSignals) (*LLMVerdict, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.verdict
	return &cp, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func layerResult(layer string, cat Category, importance, confidence float64) *LayerResult {
	return &LayerResult{
		Layer:      layer,
		Category:   cat,
		Importance: importance,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("%s stub", layer),
	}
}

func testEmail(sender, subject, body string) *Email {
	return &Email{
		EmailID:    "e-1",
		AccountID:  "acct-1",
		Sender:     sender,
		To:         []string{"me@example.com"},
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
