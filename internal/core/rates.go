package core

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RateProfile is the behavioral-rate view of a statistics row. TrackDeletes
// is false for domain-level rows, where deletes are not counted.
type RateProfile struct {
	ReplyRate           float64
	ArchiveRate         float64
	DeleteRate          float64
	AvgTimeToReplyHours *float64
	TrackDeletes        bool
}

// RateDerivation is the importance/category verdict derived from observed
// rates.
type RateDerivation struct {
	Importance float64
	Category   Category
	Reasoning  string
}

// CategorizeFromRates maps behavioral rates onto an importance and a
// category. It is the single shared decision table behind both the history
// layer's classification and the feedback tracker's preferred-category
// bookkeeping; keeping one implementation keeps the two call sites in
// lock-step.
func CategorizeFromRates(p RateProfile) RateDerivation {
	switch {
	case p.ReplyRate >= 0.7 && p.AvgTimeToReplyHours != nil && *p.AvgTimeToReplyHours < 2.0:
		return RateDerivation{
			Importance: 0.9,
			Category:   CategoryActionRequired,
			Reasoning:  "usually answered within two hours",
		}
	case p.ReplyRate >= 0.7:
		return RateDerivation{
			Importance: 0.8,
			Category:   CategoryWichtig,
			Reasoning:  "usually answered",
		}
	case p.ReplyRate >= 0.3:
		return RateDerivation{
			Importance: 0.5,
			Category:   CategoryNiceToKnow,
			Reasoning:  "sometimes answered",
		}
	case p.ArchiveRate >= 0.8:
		return RateDerivation{
			Importance: 0.3,
			Category:   CategoryNewsletter,
			Reasoning:  "rarely answered, mostly archived",
		}
	case p.TrackDeletes && p.DeleteRate > 0.5:
		return RateDerivation{
			Importance: 0.1,
			Category:   CategorySpam,
			Reasoning:  "rarely answered, mostly deleted",
		}
	default:
		return RateDerivation{
			Importance: 0.4,
			Category:   CategorySystemNotification,
			Reasoning:  "low engagement",
		}
	}
}
