package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 0.5, Clamp01(0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
}

func TestCategorizeFromRates(t *testing.T) {
	fast := 1.5
	slow := 6.0

	tests := []struct {
		name       string
		profile    RateProfile
		category   Category
		importance float64
	}{
		{
			name:       "fast replier",
			profile:    RateProfile{ReplyRate: 0.9, AvgTimeToReplyHours: &fast},
			category:   CategoryActionRequired,
			importance: 0.9,
		},
		{
			name:       "slow replier",
			profile:    RateProfile{ReplyRate: 0.9, AvgTimeToReplyHours: &slow},
			category:   CategoryWichtig,
			importance: 0.8,
		},
		{
			name:       "frequent replier without reply-time data",
			profile:    RateProfile{ReplyRate: 0.7},
			category:   CategoryWichtig,
			importance: 0.8,
		},
		{
			name:       "occasional replier",
			profile:    RateProfile{ReplyRate: 0.3},
			category:   CategoryNiceToKnow,
			importance: 0.5,
		},
		{
			name:       "archiver",
			profile:    RateProfile{ReplyRate: 0.1, ArchiveRate: 0.8},
			category:   CategoryNewsletter,
			importance: 0.3,
		},
		{
			name:       "deleter",
			profile:    RateProfile{ReplyRate: 0.1, DeleteRate: 0.6, TrackDeletes: true},
			category:   CategorySpam,
			importance: 0.1,
		},
		{
			name:       "deleter without delete tracking",
			profile:    RateProfile{ReplyRate: 0.1, DeleteRate: 0.6},
			category:   CategorySystemNotification,
			importance: 0.4,
		},
		{
			name:       "no engagement",
			profile:    RateProfile{},
			category:   CategorySystemNotification,
			importance: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived := CategorizeFromRates(tt.profile)
			assert.Equal(t, tt.category, derived.Category)
			assert.Equal(t, tt.importance, derived.Importance)
			assert.NotEmpty(t, derived.Reasoning)
		})
	}
}
