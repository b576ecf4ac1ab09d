package calendar

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/minqt/weight-sync/internal/logger"
)

const szseMonthListURL = "http://www.szse.cn/api/report/exchange/onepersistenthour/monthList"

// SZSESource fetches monthly calendars from the Shenzhen Stock Exchange.
// Rows with jybz == "1" are trading days; jyrq carries the date.
type SZSESource struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewSZSESource(timeout time.Duration, log *logger.Logger) *SZSESource {
	return &SZSESource{
		baseURL:    szseMonthListURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

func (s *SZSESource) FetchMonth(year int, month time.Month) ([]time.Time, error) {
	url := fmt.Sprintf("%s?month=%04d-%02d", s.baseURL, year, int(month))
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// The endpoint rejects non-browser requests.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "http://www.szse.cn/disclosure/index.html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch month list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SZSE returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var days []time.Time
	for _, row := range gjson.GetBytes(body, "data").Array() {
		if row.Get("jybz").String() != "1" {
			continue
		}
		dateStr := row.Get("jyrq").String()
		if dateStr == "" {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, dateStr, time.Local)
		if err != nil {
			s.logger.Warn("skip malformed calendar row", "jyrq", dateStr)
			continue
		}
		days = append(days, day)
	}
	return days, nil
}
