package data

import (
	"context"
	"database/sql"
	"sort"
)

// Span 表示一段已经抓取过的有效区间（闭区间，Unix 毫秒）。
// 记录按抓取请求登记：区间内没有 bar 的日子（休市）不算缺口。
type Span struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Gap 表示尚未覆盖的子区间。
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// CoverageReport 描述请求窗口被缓存覆盖的情况。
type CoverageReport struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Spans []Span `json:"spans"`
	Gaps  []Gap  `json:"gaps"`
}

func (r CoverageReport) Complete() bool { return len(r.Gaps) == 0 }

// Coverage 计算 [start, end] 与已登记有效区间的差集。
func (s *Store) Coverage(ctx context.Context, symbol, interval string, start, end int64) (CoverageReport, error) {
	db, _, err := s.db(symbol, interval)
	if err != nil {
		return CoverageReport{}, err
	}
	spans, err := loadSpans(ctx, db)
	if err != nil {
		return CoverageReport{}, err
	}
	merged := mergeSpans(spans)
	report := CoverageReport{Start: start, End: end, Spans: merged}

	cursor := start
	for _, sp := range merged {
		if sp.To < cursor {
			continue
		}
		if sp.From > end {
			break
		}
		if sp.From > cursor {
			report.Gaps = append(report.Gaps, Gap{From: cursor, To: sp.From - 1})
		}
		if sp.To >= cursor {
			cursor = sp.To + 1
		}
		if cursor > end {
			break
		}
	}
	if cursor <= end {
		report.Gaps = append(report.Gaps, Gap{From: cursor, To: end})
	}
	return report, nil
}

func loadSpans(ctx context.Context, db *sql.DB) ([]Span, error) {
	rows, err := db.QueryContext(ctx, `SELECT start_ts, end_ts FROM spans ORDER BY start_ts ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Span
	for rows.Next() {
		var sp Span
		if err := rows.Scan(&sp.From, &sp.To); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// mergeSpans 合并重叠/相邻区间。
func mergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := append([]Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })
	out := []Span{sorted[0]}
	for _, sp := range sorted[1:] {
		last := &out[len(out)-1]
		if sp.From <= last.To+1 {
			if sp.To > last.To {
				last.To = sp.To
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}

// upsertSpan 在事务内登记新抓取的区间，并把被吞并的旧区间合并掉。
func upsertSpan(ctx context.Context, tx *sql.Tx, from, to int64) error {
	rows, err := tx.QueryContext(ctx, `SELECT start_ts, end_ts FROM spans WHERE start_ts <= ? AND end_ts >= ?`, to+1, from-1)
	if err != nil {
		return err
	}
	merged := Span{From: from, To: to}
	for rows.Next() {
		var sp Span
		if err := rows.Scan(&sp.From, &sp.To); err != nil {
			rows.Close()
			return err
		}
		if sp.From < merged.From {
			merged.From = sp.From
		}
		if sp.To > merged.To {
			merged.To = sp.To
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	if _, err := tx.ExecContext(ctx, `DELETE FROM spans WHERE start_ts <= ? AND end_ts >= ?`, merged.To+1, merged.From-1); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO spans (start_ts, end_ts, fetched_at) VALUES (?, ?, strftime('%s','now') * 1000)`, merged.From, merged.To)
	return err
}

// removeSpan 从登记中剔除 [from, to]，两端剩余部分保留。
func removeSpan(ctx context.Context, tx *sql.Tx, from, to int64) error {
	rows, err := tx.QueryContext(ctx, `SELECT start_ts, end_ts FROM spans WHERE start_ts <= ? AND end_ts >= ?`, to, from)
	if err != nil {
		return err
	}
	var overlapping []Span
	for rows.Next() {
		var sp Span
		if err := rows.Scan(&sp.From, &sp.To); err != nil {
			rows.Close()
			return err
		}
		overlapping = append(overlapping, sp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	if len(overlapping) == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM spans WHERE start_ts <= ? AND end_ts >= ?`, to, from); err != nil {
		return err
	}
	for _, sp := range overlapping {
		if sp.From < from {
			if _, err := tx.ExecContext(ctx, `INSERT INTO spans (start_ts, end_ts, fetched_at) VALUES (?, ?, strftime('%s','now') * 1000)`, sp.From, from-1); err != nil {
				return err
			}
		}
		if sp.To > to {
			if _, err := tx.ExecContext(ctx, `INSERT INTO spans (start_ts, end_ts, fetched_at) VALUES (?, ?, strftime('%s','now') * 1000)`, to+1, sp.To); err != nil {
				return err
			}
		}
	}
	return nil
}
