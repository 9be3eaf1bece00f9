package stats

import (
	"context"
	"sync"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// MemoryStats is an in-memory implementation of the StatsRepository
// interface. It is the default store for tests and one-shot CLI runs.
type MemoryStats struct {
	mu       sync.RWMutex
	senders  map[string]*core.SenderStatistics
	domains  map[string]*core.DomainStatistics
	feedback []*core.FeedbackAction
	logger   *zap.Logger
}

// NewMemoryStats creates a new in-memory statistics store.
func NewMemoryStats(logger *zap.Logger) *MemoryStats {
	return &MemoryStats{
		senders: make(map[string]*core.SenderStatistics),
		domains: make(map[string]*core.DomainStatistics),
		logger:  logger,
	}
}

func statsKey(accountID, name string) string {
	return accountID + "|" + name
}

// GetSenderStats retrieves the row for (accountID, senderEmail).
func (s *MemoryStats) GetSenderStats(_ context.Context, accountID, senderEmail string) (*core.SenderStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.senders[statsKey(accountID, senderEmail)]
	if !ok {
		return nil, core.ErrStatsNotFound
	}
	return copySenderStats(row), nil
}

// GetDomainStats retrieves the row for (accountID, domain).
func (s *MemoryStats) GetDomainStats(_ context.Context, accountID, domain string) (*core.DomainStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.domains[statsKey(accountID, domain)]
	if !ok {
		return nil, core.ErrStatsNotFound
	}
	return copyDomainStats(row), nil
}

// UpsertSenderStats writes the full sender row.
func (s *MemoryStats) UpsertSenderStats(_ context.Context, stats *core.SenderStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.senders[statsKey(stats.AccountID, stats.SenderEmail)] = copySenderStats(stats)
	return nil
}

// UpsertDomainStats writes the full domain row.
func (s *MemoryStats) UpsertDomainStats(_ context.Context, stats *core.DomainStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.domains[statsKey(stats.AccountID, stats.Domain)] = copyDomainStats(stats)
	return nil
}

// AppendFeedback appends one audit record.
func (s *MemoryStats) AppendFeedback(_ context.Context, action *core.FeedbackAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *action
	s.feedback = append(s.feedback, &copied)
	return nil
}

// FeedbackLog returns a copy of the recorded audit trail, oldest first.
func (s *MemoryStats) FeedbackLog() []*core.FeedbackAction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.FeedbackAction, len(s.feedback))
	for i, a := range s.feedback {
		copied := *a
		out[i] = &copied
	}
	return out
}

// Copies keep callers from aliasing store-internal rows.

func copySenderStats(in *core.SenderStatistics) *core.SenderStatistics {
	out := *in
	if in.AvgTimeToReplyHours != nil {
		v := *in.AvgTimeToReplyHours
		out.AvgTimeToReplyHours = &v
	}
	return &out
}

func copyDomainStats(in *core.DomainStatistics) *core.DomainStatistics {
	out := *in
	if in.AvgTimeToReplyHours != nil {
		v := *in.AvgTimeToReplyHours
		out.AvgTimeToReplyHours = &v
	}
	return &out
}
