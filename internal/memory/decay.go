package memory

import (
	"math"
	"time"

	"github.com/flemzord/membot/internal/settings"
)

// DefaultImportance is the base importance of an item that carries none.
const DefaultImportance = 1.0

// DefaultEntryImportance is stored on conversation turns recorded without
// an explicit importance.
const DefaultEntryImportance = 5.0

// Relevance returns importance × e^(−factor × ageDays). Negative ages are
// treated as zero so clock skew never raises an item above its importance.
func Relevance(importance, ageDays, factor float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	return importance * math.Exp(-factor*ageDays)
}

// Include reports whether an item of the given importance and age should
// be shown under cfg. Items older than MaxAgeDays are always excluded when
// decay is enabled, whatever their score.
func Include(importance, ageDays float64, cfg settings.Decay) bool {
	if !cfg.Enabled {
		return true
	}
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays > cfg.MaxAgeDays {
		return false
	}
	return Relevance(importance, ageDays, cfg.Factor) >= cfg.Threshold
}

// AgeDays returns how many days before now t is, never negative.
func AgeDays(now, t time.Time) float64 {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return d.Hours() / 24
}

// ImportanceOrDefault returns v, or DefaultImportance when v is not positive.
func ImportanceOrDefault(v float64) float64 {
	if v <= 0 {
		return DefaultImportance
	}
	return v
}
