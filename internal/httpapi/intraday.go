package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"intraview/internal/chart"
	"intraview/internal/domain"
	"intraview/internal/market"
	"intraview/internal/prefs"
)

const (
	defaultPageLimit = 1000
	maxPageLimit     = 10000
)

type expiryDates struct {
	Expiry       string   `json:"expiry"`
	TradingDates []string `json:"tradingDates"`
}

type barJSON struct {
	Symbol       string    `json:"symbol"`
	Timestamp    time.Time `json:"timestamp"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"oi,omitempty"`
	VWAP         float64   `json:"vwap,omitempty"`
	Granularity  string    `json:"granularity"`
}

type tickJSON struct {
	Symbol      string    `json:"symbol"`
	Timestamp   time.Time `json:"timestamp"`
	Price       float64   `json:"price"`
	Qty         int64     `json:"qty"`
	Turnover    float64   `json:"trnvr"`
	CumTurnover float64   `json:"cum_trnvr"`
}

type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type paginated[T any] struct {
	Success    bool       `json:"success"`
	Data       []T        `json:"data"`
	Pagination pagination `json:"pagination"`
}

type summaryResponse struct {
	domain.DataSummary
	Session domain.TradingSession `json:"session"`
}

func (s *Server) handleExpiryDates(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Catalog == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	expiries, err := s.cfg.Catalog.ListExpiries(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	out := make([]expiryDates, 0, len(expiries))
	for _, e := range expiries {
		dates, err := s.cfg.Catalog.ListTradingDates(r.Context(), e)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		if dates == nil {
			dates = []string{}
		}
		out = append(out, expiryDates{Expiry: e, TradingDates: dates})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTradingDates(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Catalog == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	dates, err := s.cfg.Catalog.ListTradingDates(r.Context(), chi.URLParam(r, "expiry"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, dates)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Catalog == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	infos, err := s.cfg.Catalog.ListSymbolsForDate(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if infos == nil {
		infos = []domain.SymbolInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleOHLCV(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	g, err := timeframeParam(r, domain.Granularity1Min)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if g == domain.GranularityTick {
		writeError(w, http.StatusBadRequest, "use /api/tick for tick data")
		return
	}
	bars, err := s.readBars(r, symbol, g)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.touchSymbol(symbol)

	page, pg := paginate(bars, limit, offset)
	data := make([]barJSON, len(page))
	for i, b := range page {
		data[i] = barJSON{
			Symbol: b.Symbol, Timestamp: b.Timestamp,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume, OpenInterest: b.OpenInterest, VWAP: b.VWAP,
			Granularity: string(g),
		}
	}
	writeJSON(w, http.StatusOK, paginated[barJSON]{Success: true, Data: data, Pagination: pg})
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	ticks, err := s.readTicks(r, symbol)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.touchSymbol(symbol)

	page, pg := paginate(ticks, limit, offset)
	data := make([]tickJSON, len(page))
	for i, t := range page {
		data[i] = tickJSON{
			Symbol: t.Symbol, Timestamp: t.Timestamp, Price: t.Price, Qty: t.Qty,
			Turnover: t.Turnover, CumTurnover: t.CumulativeTurnover,
		}
	}
	writeJSON(w, http.StatusOK, paginated[tickJSON]{Success: true, Data: data, Pagination: pg})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	if r.URL.Query().Get("date") == "" {
		writeError(w, http.StatusBadRequest, "date required")
		return
	}
	day, _, err := dayParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	ticks, err := s.readTicks(r, symbol)
	if err != nil && !errors.Is(err, errUnavailable) {
		s.writeErr(w, r, err)
		return
	}
	bars, err := s.readBars(r, symbol, domain.Granularity1Min)
	if err != nil && !errors.Is(err, errUnavailable) {
		s.writeErr(w, r, err)
		return
	}
	if len(ticks) == 0 && len(bars) == 0 {
		writeError(w, http.StatusNotFound, "no data for "+symbol+" on "+day.Format("2006-01-02"))
		return
	}
	sum := market.Summarize(symbol, day.Format("2006-01-02"), ticks, bars)
	writeJSON(w, http.StatusOK, summaryResponse{DataSummary: sum, Session: s.session.SessionFor(day)})
}

// handleSeries pushes one field of a symbol's bars (or tick prices)
// through the chart pipeline.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	g, err := timeframeParam(r, domain.Granularity1Min)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	field := strings.ToLower(r.URL.Query().Get("field"))

	var t chart.Table
	if g == domain.GranularityTick {
		if field == "" {
			field = "price"
		}
		ticks, err := s.readTicks(r, symbol)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		if t, err = ticksTable(ticks, field); err != nil {
			s.writeErr(w, r, err)
			return
		}
	} else {
		if field == "" {
			field = "close"
		}
		bars, err := s.readBars(r, symbol, g)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		if t, err = barsTable(bars, field); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}

	var maxPoints int
	if v := r.URL.Query().Get("max_points"); v != "" {
		if maxPoints, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_points")
			return
		}
	}
	series, err := chart.BuildSeries(t, chart.Selection{X: 0, Y: 1}, chart.MaxPointsOr(maxPoints, s.cfg.MaxPoints))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.touchSymbol(symbol)
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) readBars(r *http.Request, symbol string, g domain.Granularity) ([]domain.Bar, error) {
	if s.cfg.Bars == nil {
		return nil, errUnavailable
	}
	start, end, err := dayParam(r)
	if err != nil {
		return nil, err
	}
	return s.cfg.Bars.ReadBars(r.Context(), symbol, g, start, end)
}

func (s *Server) readTicks(r *http.Request, symbol string) ([]domain.Tick, error) {
	if s.cfg.Ticks == nil {
		return nil, errUnavailable
	}
	start, end, err := dayParam(r)
	if err != nil {
		return nil, err
	}
	return s.cfg.Ticks.ReadTicks(r.Context(), symbol, start, end)
}

func (s *Server) touchSymbol(symbol string) {
	if s.cfg.Prefs == nil {
		return
	}
	if _, err := s.cfg.Prefs.Touch(prefs.KindSymbols, symbol); err != nil {
		s.log.Warn("recording recent symbol", "symbol", symbol, "error", err)
	}
}

// dayParam reads ?date= ("2024-08-01", "01 Aug" with ?year=) as the
// inclusive bounds of that day in IST. No date yields zero bounds.
func dayParam(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		return time.Time{}, time.Time{}, nil
	}
	year := time.Now().In(market.IST).Year()
	if y := q.Get("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			return time.Time{}, time.Time{}, errBadRequestf("invalid year %q", y)
		}
		year = n
	}
	day, err := market.ParseTradingDate(date, year)
	if err != nil {
		return time.Time{}, time.Time{}, errBadRequestf("%v", err)
	}
	return day, day.Add(24*time.Hour - time.Nanosecond), nil
}

func timeframeParam(r *http.Request, def domain.Granularity) (domain.Granularity, error) {
	v := r.URL.Query().Get("timeframe")
	if v == "" {
		return def, nil
	}
	g, err := domain.ParseGranularity(v)
	if err != nil {
		return "", errBadRequestf("%v", err)
	}
	return g, nil
}

func pageParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit, offset := defaultPageLimit, 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageLimit {
			return 0, 0, errBadRequestf("limit must be between 1 and %d", maxPageLimit)
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errBadRequestf("offset must be non-negative")
		}
		offset = n
	}
	return limit, offset, nil
}

func paginate[T any](items []T, limit, offset int) ([]T, pagination) {
	total := len(items)
	pg := pagination{
		Page:       offset/limit + 1,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
		HasPrev:    offset > 0,
		HasNext:    offset+limit < total,
	}
	if offset >= total {
		return []T{}, pg
	}
	return items[offset:min(offset+limit, total)], pg
}

func barsTable(bars []domain.Bar, field string) (chart.Table, error) {
	pick := map[string]func(domain.Bar) float64{
		"open":   func(b domain.Bar) float64 { return b.Open },
		"high":   func(b domain.Bar) float64 { return b.High },
		"low":    func(b domain.Bar) float64 { return b.Low },
		"close":  func(b domain.Bar) float64 { return b.Close },
		"volume": func(b domain.Bar) float64 { return float64(b.Volume) },
		"oi":     func(b domain.Bar) float64 { return float64(b.OpenInterest) },
		"vwap":   func(b domain.Bar) float64 { return b.VWAP },
	}[field]
	if pick == nil {
		return chart.Table{}, errBadRequestf("unknown bar field %q", field)
	}
	t := chart.Table{Columns: []string{"timestamp", field}, Rows: make([][]chart.Value, len(bars))}
	for i, b := range bars {
		t.Rows[i] = []chart.Value{chart.Text(market.FormatTimestamp(b.Timestamp)), chart.Number(pick(b))}
	}
	return t, nil
}

func ticksTable(ticks []domain.Tick, field string) (chart.Table, error) {
	pick := map[string]func(domain.Tick) float64{
		"price":     func(t domain.Tick) float64 { return t.Price },
		"qty":       func(t domain.Tick) float64 { return float64(t.Qty) },
		"trnvr":     func(t domain.Tick) float64 { return t.Turnover },
		"cum_trnvr": func(t domain.Tick) float64 { return t.CumulativeTurnover },
	}[field]
	if pick == nil {
		return chart.Table{}, errBadRequestf("unknown tick field %q", field)
	}
	t := chart.Table{Columns: []string{"timestamp", field}, Rows: make([][]chart.Value, len(ticks))}
	for i, tk := range ticks {
		t.Rows[i] = []chart.Value{chart.Text(market.FormatTimestamp(tk.Timestamp)), chart.Number(pick(tk))}
	}
	return t, nil
}
