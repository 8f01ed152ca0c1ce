package devserver

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// channel is one simulated scrape result row.
type channel struct {
	Page        int      `json:"page"`
	Index       int      `json:"index"`
	Name        string   `json:"name"`
	Link        string   `json:"link"`
	Subscribers int      `json:"subscribers"`
	Categories  []string `json:"categories,omitempty"`
}

// quota is a simulated limit counter; Current counts down as work is done.
type quota struct {
	item job.LimitItem
}

func defaultQuotas() []*quota {
	return []*quota{
		{item: job.LimitItem{Name: "search_requests", Description: "Catalog searches left today", Current: 200, Maximum: 200, Severity: job.SeverityGate}},
		{item: job.LimitItem{Name: "channel_details", Description: "Channel detail lookups left today", Current: 1000, Maximum: 1000, Severity: job.SeverityWarn}},
		{item: job.LimitItem{Name: "exports", Description: "Result exports left this month", Current: 30, Maximum: 30, Severity: job.SeverityGate}},
	}
}

func consume(q *quota, n int) {
	q.item.Current -= n
	if q.item.Current < 0 {
		q.item.Current = 0
	}
}

// run is the state of one simulated job.
type run struct {
	filters        map[string]any
	startPage      int
	endPage        int
	channelsOnPage int
	page           int
	index          int
	results        []channel
	stopRequested  bool
}

func newRun(filters map[string]any, pages, channelsPerPage int) *run {
	start := intFilter(filters, "start_page", 1)
	if start < 1 {
		start = 1
	}
	end := intFilter(filters, "end_page", start+pages-1)
	if end < start {
		end = start
	}
	return &run{
		filters:        filters,
		startPage:      start,
		endPage:        end,
		channelsOnPage: channelsPerPage,
		page:           start,
	}
}

func (r *run) progress() job.Progress {
	return job.Progress{
		CurrentPage:    job.IntPtr(r.page),
		StartPage:      job.IntPtr(r.startPage),
		EndPage:        job.IntPtr(r.endPage),
		ChannelIndex:   job.IntPtr(r.index),
		ChannelsOnPage: job.IntPtr(r.channelsOnPage),
	}
}

// scrape appends the channel at the current position and advances. It
// reports whether the last page was finished.
func (r *run) scrape() (newPage, done bool) {
	base := intFilter(r.filters, "participants_from", 1000)
	name := fmt.Sprintf("channel-%d-%d", r.page, r.index+1)
	c := channel{
		Page:        r.page,
		Index:       r.index + 1,
		Name:        name,
		Link:        "https://t.me/" + name,
		Subscribers: base + r.page*100 + r.index,
	}
	if cats, ok := r.filters["categories"].([]string); ok {
		c.Categories = cats
	}
	r.results = append(r.results, c)
	r.index++
	if r.index < r.channelsOnPage {
		return false, false
	}
	if r.page >= r.endPage {
		return false, true
	}
	r.page++
	r.index = 0
	return true, false
}

func intFilter(filters map[string]any, key string, def int) int {
	if v, ok := filters[key].(int); ok {
		return v
	}
	return def
}

func renderCSV(rows []channel) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"page", "index", "name", "link", "subscribers"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range rows {
		record := []string{strconv.Itoa(c.Page), strconv.Itoa(c.Index), c.Name, c.Link, strconv.Itoa(c.Subscribers)}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderJSON(rows []channel) ([]byte, error) {
	if rows == nil {
		rows = []channel{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return data, nil
}
