package store

import (
	"time"
)

// Run is a single recorded performance test execution. No field is
// required and no consistency between the interval and Duration is
// enforced.
type Run struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	TestName  string        `json:"testName"`
	TimeStart LocalDateTime `json:"timeStart"`
	TimeEnd   LocalDateTime `json:"timeEnd"`
	Duration  float64       `json:"duration"`
}

// Elapsed returns TimeEnd - TimeStart, or zero when either bound is unset.
func (r *Run) Elapsed() time.Duration {
	if r.TimeStart.IsZero() || r.TimeEnd.IsZero() {
		return 0
	}

	return r.TimeEnd.Sub(r.TimeStart.Time)
}

// IngestedFile records an object key that has been imported from a
// storage backend so that later passes skip it.
type IngestedFile struct {
	ID         uint      `gorm:"primaryKey"`
	Source     string    `gorm:"not null;uniqueIndex:idx_ingested_source_key"`
	ObjectKey  string    `gorm:"not null;uniqueIndex:idx_ingested_source_key"`
	Runs       int       `gorm:"not null"`
	IngestedAt time.Time `gorm:"not null"`
}
