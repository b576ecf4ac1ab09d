// Package calendar answers "is this date a trading day" for the A-share
// market. Resolution order: in-memory set of confirmed trading days, cached
// month records, the exchange calendar API, then the static holiday tables.
// Every tier failure degrades to the next one; total failure means "not a
// trading day" because skipping a session is cheaper than trading on a
// closed market.
package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/minqt/weight-sync/internal/logger"
)

const (
	dateLayout    = "2006-01-02"
	monthLayout   = "2006-01"
	cacheVersion  = "1.0"
	maxSearchDays = 30
)

// MonthSource fetches the exchange calendar for one month.
type MonthSource interface {
	FetchMonth(year int, month time.Month) ([]time.Time, error)
}

type monthEntry struct {
	TradingDays []string `json:"trading_days"`
	FetchedAt   string   `json:"fetched_at"`
	ExpiresAt   string   `json:"expires_at"`
}

type cacheFile struct {
	CacheVersion string                `json:"cache_version"`
	LastUpdate   string                `json:"last_update"`
	Months       map[string]monthEntry `json:"months"`
}

// Service is the process-wide trading calendar. One long-lived instance is
// created at startup and injected where needed. State mutation is not
// internally locked: the scheduler serializes the phases that touch it, and
// manual Refresh calls must be serialized by the caller.
type Service struct {
	source    MonthSource
	cachePath string
	logger    *logger.Logger

	days   map[string]struct{}
	months map[string]monthEntry

	now func() time.Time
}

// New loads the file cache and eagerly preloads the current and next month
// so the first IsTradingDay call does not pay the fetch latency.
func New(cachePath string, source MonthSource, log *logger.Logger) *Service {
	s := &Service{
		source:    source,
		cachePath: cachePath,
		logger:    log,
		days:      make(map[string]struct{}),
		months:    make(map[string]monthEntry),
		now:       time.Now,
	}
	s.loadCache()
	s.preloadCurrentAndNextMonth()
	log.Info("trading calendar ready", "cached_months", len(s.months))
	return s
}

// IsTradingDay reports whether t's date is a trading day. It never fails:
// any unresolved state falls through to the static tables, and the static
// tier itself defaults to false only for weekends and listed holidays.
func (s *Service) IsTradingDay(t time.Time) bool {
	key := t.Format(dateLayout)
	if _, ok := s.days[key]; ok {
		return true
	}

	monthKey := t.Format(monthLayout)
	entry, ok := s.months[monthKey]
	if !ok || s.entryExpired(entry) {
		if err := s.fetchAndCacheMonth(t.Year(), t.Month()); err != nil {
			s.logger.Warn("calendar fetch failed, using static fallback",
				"month", monthKey, "error", err)
		}
	}

	if _, ok := s.days[key]; ok {
		return true
	}

	return staticIsTradingDay(t)
}

// NextTradingDay returns the skip-th trading day after from, searching at
// most 30 calendar days ahead. ok is false when none is found in the bound.
func (s *Service) NextTradingDay(from time.Time, skip int) (time.Time, bool) {
	if skip < 1 {
		skip = 1
	}
	found := 0
	day := from
	for i := 0; i < maxSearchDays; i++ {
		day = day.AddDate(0, 0, 1)
		if s.IsTradingDay(day) {
			found++
			if found >= skip {
				return day, true
			}
		}
	}
	s.logger.Warn("no trading day found in search window",
		"from", from.Format(dateLayout), "skip", skip)
	return time.Time{}, false
}

// TradingDays returns every trading day in [start, end] in ascending order.
func (s *Service) TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if s.IsTradingDay(day) {
			days = append(days, day)
		}
	}
	return days
}

// Refresh drops all cached state and reloads the current and next month.
// Meant for manual recovery, not the hot path. Callers serialize.
func (s *Service) Refresh() error {
	s.logger.Info("refreshing trading calendar")
	s.days = make(map[string]struct{})
	s.months = make(map[string]monthEntry)
	s.preloadCurrentAndNextMonth()
	if err := s.saveCache(); err != nil {
		return fmt.Errorf("save calendar cache: %w", err)
	}
	return nil
}

func (s *Service) entryExpired(entry monthEntry) bool {
	expiresAt, err := time.Parse(time.RFC3339, entry.ExpiresAt)
	if err != nil {
		return true
	}
	return !s.now().Before(expiresAt)
}

func (s *Service) fetchAndCacheMonth(year int, month time.Month) error {
	days, err := s.source.FetchMonth(year, month)
	if err != nil {
		return err
	}

	dayStrs := make([]string, 0, len(days))
	for _, d := range days {
		key := d.Format(dateLayout)
		s.days[key] = struct{}{}
		dayStrs = append(dayStrs, key)
	}

	// A month record stays valid until the first day of the following month.
	expiresAt := time.Date(year, month+1, 1, 0, 0, 0, 0, time.Local)
	monthKey := fmt.Sprintf("%04d-%02d", year, int(month))
	s.months[monthKey] = monthEntry{
		TradingDays: dayStrs,
		FetchedAt:   s.now().Format(time.RFC3339),
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}

	s.logger.Info("calendar month fetched", "month", monthKey, "trading_days", len(dayStrs))

	if err := s.saveCache(); err != nil {
		s.logger.Error("save calendar cache", "error", err)
	}
	return nil
}

func (s *Service) preloadCurrentAndNextMonth() {
	now := s.now()
	if err := s.fetchAndCacheMonth(now.Year(), now.Month()); err != nil {
		s.logger.Warn("preload current month", "error", err)
	}
	next := now.AddDate(0, 1, 0)
	if err := s.fetchAndCacheMonth(next.Year(), next.Month()); err != nil {
		s.logger.Warn("preload next month", "error", err)
	}
}

func (s *Service) loadCache() {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read calendar cache", "error", err)
		}
		return
	}

	var cache cacheFile
	if err := json.Unmarshal(data, &cache); err != nil {
		s.logger.Warn("parse calendar cache", "error", err)
		return
	}

	s.months = cache.Months
	if s.months == nil {
		s.months = make(map[string]monthEntry)
	}
	for _, entry := range s.months {
		for _, day := range entry.TradingDays {
			s.days[day] = struct{}{}
		}
	}
	s.logger.Info("calendar cache loaded", "months", len(s.months))
}

func (s *Service) saveCache() error {
	if err := os.MkdirAll(filepath.Dir(s.cachePath), 0o755); err != nil {
		return err
	}
	cache := cacheFile{
		CacheVersion: cacheVersion,
		LastUpdate:   s.now().Format(time.RFC3339),
		Months:       s.months,
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	// Whole-file rewrite, single writer assumed.
	return os.WriteFile(s.cachePath, data, 0o644)
}

// staticIsTradingDay is the last tier: compensatory workdays trade even on
// weekends, weekends and listed holidays do not, any other weekday does.
func staticIsTradingDay(t time.Time) bool {
	key := t.Format(dateLayout)
	if _, ok := workdays[key]; ok {
		return true
	}
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if _, ok := holidays[key]; ok {
		return false
	}
	return true
}
