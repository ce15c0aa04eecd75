package models

// Counter backs monotonic id allocation (venue sub-account handles) in the
// gorm store. The memory store keeps its counter in-process.
type Counter struct {
	Name  string `gorm:"type:varchar(50);primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

func (Counter) TableName() string {
	return "counters"
}
