package storage

import (
	"errors"
	"sort"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Target positions

// ReplaceTargetPositions swaps out every row for the given date in one
// transaction.
func (r *Repository) ReplaceTargetPositions(date string, rows []TargetPosition) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ?", date).Delete(&TargetPosition{}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].Date = date
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// LoadTargetPositions returns every stored target row across all dates.
func (r *Repository) LoadTargetPositions() ([]TargetPosition, error) {
	var rows []TargetPosition
	err := r.db.Order("date, stock_code").Find(&rows).Error
	return rows, err
}

// SelectForDate picks the allocation to trade: rows matching the date
// exactly, otherwise the most recent date present. Empty input yields nil.
func SelectForDate(rows []TargetPosition, date string) []TargetPosition {
	var exact []TargetPosition
	for _, row := range rows {
		if row.Date == date {
			exact = append(exact, row)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	dates := make([]string, 0, len(rows))
	seen := make(map[string]struct{})
	for _, row := range rows {
		if _, ok := seen[row.Date]; !ok {
			seen[row.Date] = struct{}{}
			dates = append(dates, row.Date)
		}
	}
	if len(dates) == 0 {
		return nil
	}
	sort.Strings(dates)
	latest := dates[len(dates)-1]

	var fallback []TargetPosition
	for _, row := range rows {
		if row.Date == latest {
			fallback = append(fallback, row)
		}
	}
	return fallback
}

// Account value history

func (r *Repository) HasValueRecord(date string) (bool, error) {
	var rec AccountValueRecord
	err := r.db.Where("date = ?", date).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) SaveValueRecord(rec *AccountValueRecord) error {
	return r.db.Create(rec).Error
}

func (r *Repository) ValueHistory(limit int) ([]AccountValueRecord, error) {
	var records []AccountValueRecord
	q := r.db.Order("date")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&records).Error
	return records, err
}
