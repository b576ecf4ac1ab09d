package storage

import "time"

// TargetPosition is one row of a dated target allocation. Rows for a date
// are replaced wholesale when that date is re-imported.
type TargetPosition struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Date      string  `gorm:"index;not null" json:"date"` // YYYYMMDD
	StockCode string  `gorm:"not null" json:"stock_code"`
	Weight    float64 `gorm:"not null" json:"weight"`
}

// AccountValueRecord is the once-per-trading-day account snapshot.
type AccountValueRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Date        string  `gorm:"uniqueIndex;not null" json:"date"` // YYYYMMDD
	Time        string  `json:"time"`                             // HH:MM:SS
	TotalAsset  float64 `json:"total_asset"`
	Cash        float64 `json:"cash"`
	MarketValue float64 `json:"market_value"`
}
