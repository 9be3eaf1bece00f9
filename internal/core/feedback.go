package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEMAAlpha is the smoothing factor of the importance EMA. The fixed
// alpha, rather than a count-weighted average, is what gives recent
// behavior more influence than stale history.
const DefaultEMAAlpha = 0.15

// DefaultMinObservationsForEMA is the observation count below which a plain
// cumulative average is used instead of the EMA.
const DefaultMinObservationsForEMA = 3

// actionInference is the fixed importance/category inferred from a user
// action.
type actionInference struct {
	importance float64
	category   Category
}

var actionInferences = map[ActionType]actionInference{
	ActionReplied:         {0.85, CategoryWichtig},
	ActionStarred:         {0.95, CategoryActionRequired},
	ActionMarkedImportant: {0.90, CategoryWichtig},
	ActionArchived:        {0.40, CategoryNiceToKnow},
	ActionDeleted:         {0.05, CategorySpam},
	ActionMarkedSpam:      {0.0, CategorySpam},
}

// folderInferences maps folder-name keywords to an inference, checked in
// order.
var folderInferences = []struct {
	keywords []string
	inferred actionInference
}{
	{[]string{"important", "wichtig", "urgent", "dringend"}, actionInference{0.90, CategoryWichtig}},
	{[]string{"work", "arbeit", "project", "projekt"}, actionInference{0.75, CategoryActionRequired}},
	{[]string{"newsletter", "marketing", "werbung"}, actionInference{0.30, CategoryNewsletter}},
	{[]string{"archive", "archiv"}, actionInference{0.40, CategoryNiceToKnow}},
}

// TrackActionInput carries one observed user action into the tracker.
type TrackActionInput struct {
	EmailID       string
	SenderEmail   string
	AccountID     string
	ActionType    ActionType
	ActionDetails string

	// EmailReceivedAt enables time-to-reply learning on replied actions.
	EmailReceivedAt *time.Time

	// Original is the classification snapshot at classification time, when
	// known.
	Original *ClassificationSnapshot
}

// FeedbackTracker closes the learning loop: it appends an audit record for
// every observed user action and folds the inferred importance into the
// per-sender and per-domain statistics the history layer reads. Updates to
// a given statistics key are serialized through per-key locks; repository
// failures propagate, since a swallowed update would let the audit trail
// and the derived statistics diverge.
type FeedbackTracker struct {
	stats        StatsRepository
	logger       *zap.Logger
	alpha        float64
	minObsForEMA int

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFeedbackTracker creates a new tracker. alpha defaults to 0.15 and
// minObsForEMA to 3 when non-positive.
func NewFeedbackTracker(stats StatsRepository, logger *zap.Logger, alpha float64, minObsForEMA int) *FeedbackTracker {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultEMAAlpha
	}
	if minObsForEMA <= 0 {
		minObsForEMA = DefaultMinObservationsForEMA
	}
	return &FeedbackTracker{
		stats:        stats,
		logger:       logger,
		alpha:        alpha,
		minObsForEMA: minObsForEMA,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
	}
}

// TrackAction records one user action and updates sender and domain
// statistics.
func (t *FeedbackTracker) TrackAction(ctx context.Context, in TrackActionInput) (*FeedbackAction, error) {
	sender, domain := NormalizeSender(in.SenderEmail)
	inferred := inferAction(in.ActionType, in.ActionDetails)
	takenAt := t.now()

	action := &FeedbackAction{
		ID:                 uuid.NewString(),
		AccountID:          in.AccountID,
		EmailID:            in.EmailID,
		SenderEmail:        sender,
		SenderDomain:       domain,
		ActionType:         in.ActionType,
		ActionDetails:      in.ActionDetails,
		InferredImportance: inferred.importance,
		InferredCategory:   inferred.category,
		Original:           in.Original,
		ActionTakenAt:      takenAt,
	}

	if err := t.stats.AppendFeedback(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to append feedback record: %w", err)
	}

	if err := t.updateSenderStats(ctx, action, in.EmailReceivedAt); err != nil {
		return nil, fmt.Errorf("failed to update sender statistics: %w", err)
	}
	if err := t.updateDomainStats(ctx, action, in.EmailReceivedAt); err != nil {
		return nil, fmt.Errorf("failed to update domain statistics: %w", err)
	}

	t.logger.Debug("Tracked user action",
		zap.String("action", string(in.ActionType)),
		zap.String("sender", sender),
		zap.Float64("inferred_importance", inferred.importance))
	return action, nil
}

// Convenience wrappers per action type.

func (t *FeedbackTracker) TrackReplied(ctx context.Context, accountID, emailID, senderEmail string, receivedAt time.Time) (*FeedbackAction, error) {
	return t.TrackAction(ctx, TrackActionInput{
		AccountID:       accountID,
		EmailID:         emailID,
		SenderEmail:     senderEmail,
		ActionType:      ActionReplied,
		EmailReceivedAt: &receivedAt,
	})
}

func (t *FeedbackTracker) TrackArchived(ctx context.Context, accountID, emailID, senderEmail string) (*FeedbackAction, error) {
	return t.TrackAction(ctx, TrackActionInput{
		AccountID: accountID, EmailID: emailID, SenderEmail: senderEmail, ActionType: ActionArchived,
	})
}

func (t *FeedbackTracker) TrackDeleted(ctx context.Context, accountID, emailID, senderEmail string) (*FeedbackAction, error) {
	return t.TrackAction(ctx, TrackActionInput{
		AccountID: accountID, EmailID: emailID, SenderEmail: senderEmail, ActionType: ActionDeleted,
	})
}

func (t *FeedbackTracker) TrackStarred(ctx context.Context, accountID, emailID, senderEmail string) (*FeedbackAction, error) {
	return t.TrackAction(ctx, TrackActionInput{
		AccountID: accountID, EmailID: emailID, SenderEmail: senderEmail, ActionType: ActionStarred,
	})
}

func (t *FeedbackTracker) TrackMovedFolder(ctx context.Context, accountID, emailID, senderEmail, folder string) (*FeedbackAction, error) {
	return t.TrackAction(ctx, TrackActionInput{
		AccountID: accountID, EmailID: emailID, SenderEmail: senderEmail,
		ActionType: ActionMovedFolder, ActionDetails: folder,
	})
}

func (t *FeedbackTracker) TrackMarkedImportant(ctx context.Context, accountID, emailID, senderEmail string) (*FeedbackAction, error) {
	return t.TrackAction(ctx, TrackActionInput{
		AccountID: accountID, EmailID: emailID, SenderEmail: senderEmail, ActionType: ActionMarkedImportant,
	})
}

func (t *FeedbackTracker) TrackMarkedSpam(ctx context.Context, accountID, emailID, senderEmail string) (*FeedbackAction, error) {
	return t.TrackAction(ctx, TrackActionInput{
		AccountID: accountID, EmailID: emailID, SenderEmail: senderEmail, ActionType: ActionMarkedSpam,
	})
}

func (t *FeedbackTracker) updateSenderStats(ctx context.Context, action *FeedbackAction, receivedAt *time.Time) error {
	unlock := t.lockKey(action.AccountID + "|sender|" + action.SenderEmail)
	defer unlock()

	stats, err := t.stats.GetSenderStats(ctx, action.AccountID, action.SenderEmail)
	if errors.Is(err, ErrStatsNotFound) {
		stats = &SenderStatistics{
			AccountID:   action.AccountID,
			SenderEmail: action.SenderEmail,
			FirstSeenAt: action.ActionTakenAt,
		}
	} else if err != nil {
		return err
	}

	prior := stats.TotalEmailsReceived
	stats.TotalEmailsReceived++
	switch action.ActionType {
	case ActionReplied:
		replyPrior := stats.TotalReplies
		stats.TotalReplies++
		if receivedAt != nil {
			hours := action.ActionTakenAt.Sub(*receivedAt).Hours()
			if hours >= 0 {
				stats.AvgTimeToReplyHours = t.smoothOptional(stats.AvgTimeToReplyHours, replyPrior, hours)
			}
		}
	case ActionArchived:
		stats.TotalArchived++
	case ActionDeleted, ActionMarkedSpam:
		stats.TotalDeleted++
	case ActionMovedFolder:
		stats.TotalMoved++
	}

	stats.AverageImportance = Clamp01(t.smooth(stats.AverageImportance, prior, action.InferredImportance))
	total := float64(stats.TotalEmailsReceived)
	stats.ReplyRate = float64(stats.TotalReplies) / total
	stats.ArchiveRate = float64(stats.TotalArchived) / total
	stats.DeleteRate = float64(stats.TotalDeleted) / total
	stats.PreferredCategory = CategorizeFromRates(RateProfile{
		ReplyRate:           stats.ReplyRate,
		ArchiveRate:         stats.ArchiveRate,
		DeleteRate:          stats.DeleteRate,
		AvgTimeToReplyHours: stats.AvgTimeToReplyHours,
		TrackDeletes:        true,
	}).Category
	stats.UpdatedAt = action.ActionTakenAt

	return t.stats.UpsertSenderStats(ctx, stats)
}

func (t *FeedbackTracker) updateDomainStats(ctx context.Context, action *FeedbackAction, receivedAt *time.Time) error {
	unlock := t.lockKey(action.AccountID + "|domain|" + action.SenderDomain)
	defer unlock()

	stats, err := t.stats.GetDomainStats(ctx, action.AccountID, action.SenderDomain)
	if errors.Is(err, ErrStatsNotFound) {
		stats = &DomainStatistics{
			AccountID:   action.AccountID,
			Domain:      action.SenderDomain,
			FirstSeenAt: action.ActionTakenAt,
		}
	} else if err != nil {
		return err
	}

	prior := stats.TotalEmailsReceived
	stats.TotalEmailsReceived++
	switch action.ActionType {
	case ActionReplied:
		replyPrior := stats.TotalReplies
		stats.TotalReplies++
		if receivedAt != nil {
			hours := action.ActionTakenAt.Sub(*receivedAt).Hours()
			if hours >= 0 {
				stats.AvgTimeToReplyHours = t.smoothOptional(stats.AvgTimeToReplyHours, replyPrior, hours)
			}
		}
	case ActionArchived:
		stats.TotalArchived++
	case ActionMovedFolder:
		stats.TotalMoved++
	}

	stats.AverageImportance = Clamp01(t.smooth(stats.AverageImportance, prior, action.InferredImportance))
	total := float64(stats.TotalEmailsReceived)
	stats.ReplyRate = float64(stats.TotalReplies) / total
	stats.ArchiveRate = float64(stats.TotalArchived) / total
	stats.PreferredCategory = CategorizeFromRates(RateProfile{
		ReplyRate:           stats.ReplyRate,
		ArchiveRate:         stats.ArchiveRate,
		AvgTimeToReplyHours: stats.AvgTimeToReplyHours,
		TrackDeletes:        false,
	}).Category
	stats.UpdatedAt = action.ActionTakenAt

	return t.stats.UpsertDomainStats(ctx, stats)
}

// smooth applies the two-phase update: cumulative average while the row has
// fewer than minObsForEMA prior observations, fixed-alpha EMA permanently
// afterwards.
func (t *FeedbackTracker) smooth(old float64, priorObs int, observation float64) float64 {
	switch {
	case priorObs == 0:
		return observation
	case priorObs < t.minObsForEMA:
		return (old*float64(priorObs) + observation) / float64(priorObs+1)
	default:
		return t.alpha*observation + (1-t.alpha)*old
	}
}

func (t *FeedbackTracker) smoothOptional(old *float64, priorObs int, observation float64) *float64 {
	if old == nil {
		return &observation
	}
	v := t.smooth(*old, priorObs, observation)
	return &v
}

// lockKey serializes read-modify-write cycles per statistics key so that
// concurrent feedback for the same sender cannot lose counter or EMA
// updates.
func (t *FeedbackTracker) lockKey(key string) func() {
	t.mu.Lock()
	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// inferAction resolves the fixed importance/category for an observed
// action. Unrecognized actions land on a neutral default.
func inferAction(actionType ActionType, details string) actionInference {
	if inferred, ok := actionInferences[actionType]; ok {
		return inferred
	}
	if actionType == ActionMovedFolder {
		folder := strings.ToLower(details)
		for _, f := range folderInferences {
			for _, kw := range f.keywords {
				if strings.Contains(folder, kw) {
					return f.inferred
				}
			}
		}
	}
	return actionInference{0.50, CategoryNiceToKnow}
}
