package market

import (
	"time"

	"intraview/internal/domain"
)

// IST is India Standard Time. It has no daylight saving, so a fixed zone
// avoids depending on the host's tz database.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Phase is the part of the trading day a moment falls in.
type Phase string

const (
	PhaseClosed  Phase = "closed"
	PhasePreOpen Phase = "pre_open"
	PhaseRegular Phase = "regular"
	PhaseClosing Phase = "closing"
)

type clock struct{ h, m int }

func (c clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.h, c.m, 0, 0, day.Location())
}

// Session is the NSE equity and derivatives trading day. Exchange holidays
// are not modelled; every weekday is a trading day.
type Session struct {
	loc          *time.Location
	preOpen      clock
	open         clock
	close        clock
	closingStart clock
	closingEnd   clock
}

// NewNSESession returns the NSE session clock: pre-open 09:00-09:15,
// regular 09:15-15:30 and closing session 15:40-16:00 IST.
func NewNSESession() *Session {
	return &Session{
		loc:          IST,
		preOpen:      clock{9, 0},
		open:         clock{9, 15},
		close:        clock{15, 30},
		closingStart: clock{15, 40},
		closingEnd:   clock{16, 0},
	}
}

// Location returns the exchange time zone.
func (s *Session) Location() *time.Location { return s.loc }

// IsTradingDay reports whether t falls on a weekday in exchange time.
func (s *Session) IsTradingDay(t time.Time) bool {
	switch t.In(s.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// Phase returns the session phase at t.
func (s *Session) Phase(t time.Time) Phase {
	local := t.In(s.loc)
	if !s.IsTradingDay(local) {
		return PhaseClosed
	}
	switch {
	case within(local, s.preOpen.on(local), s.open.on(local)):
		return PhasePreOpen
	case within(local, s.open.on(local), s.close.on(local)):
		return PhaseRegular
	case within(local, s.closingStart.on(local), s.closingEnd.on(local)):
		return PhaseClosing
	}
	return PhaseClosed
}

// IsOpen reports whether the regular market is open at t.
func (s *Session) IsOpen(t time.Time) bool {
	return s.Phase(t) == PhaseRegular
}

// SessionFor returns the session window for the day of date.
func (s *Session) SessionFor(date time.Time) domain.TradingSession {
	day := date.In(s.loc)
	return domain.TradingSession{
		Date:    day.Format("2006-01-02"),
		PreOpen: s.preOpen.on(day),
		Open:    s.open.on(day),
		Close:   s.close.on(day),
		PostEnd: s.closingEnd.on(day),
	}
}

// NextOpen returns the next regular open strictly after t.
func (s *Session) NextOpen(t time.Time) time.Time {
	day := t.In(s.loc)
	for i := 0; i < 8; i++ {
		open := s.open.on(day)
		if s.IsTradingDay(day) && open.After(t) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// Contains reports whether t falls within the regular session of its day.
func (s *Session) Contains(t time.Time) bool {
	local := t.In(s.loc)
	return within(local, s.open.on(local), s.close.on(local))
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
