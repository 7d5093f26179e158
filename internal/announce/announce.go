// Package announce is the Announcement Scheduler: a small set of configured
// time-windowed announcements gated by a persisted per-guild daily cap.
// time.LoadLocation("Asia/Shanghai") is the only timezone handling this
// package needs — stdlib time is the correct and only tool here, there is
// no ecosystem timezone library anywhere in the retrieved pack doing
// anything this simple fixed-TZ window check would need. Counters persist
// through internal/kvstore the same way every other component's durable
// state does, under an `announce:counter:{guild_id}`-style key mirroring
// the plugin namespace's `plugin:{name}:config` shape.
package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/kvstore"
)

// Announcement is one configured message a guild may receive.
type Announcement struct {
	ID      string
	Message string
}

type window struct {
	Announcement
	startMinute int
	endMinute   int
}

type counter struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Scheduler is the Announcement Scheduler.
type Scheduler struct {
	loc      *time.Location
	windows  []window
	kv       *kvstore.Store
	dailyCap int
}

// New parses cfg's announcement windows against its timezone.
func New(cfg config.AnnounceConfig, kv *kvstore.Store) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, apperr.Validation("invalid announce timezone "+cfg.Timezone, err)
	}

	dailyCap := cfg.DailyCap
	if dailyCap <= 0 {
		dailyCap = 10
	}

	windows := make([]window, 0, len(cfg.Announcements))
	for _, a := range cfg.Announcements {
		start, err := parseClockMinutes(a.StartTime)
		if err != nil {
			return nil, apperr.Validation("invalid start_time for announcement "+a.ID, err)
		}
		end, err := parseClockMinutes(a.EndTime)
		if err != nil {
			return nil, apperr.Validation("invalid end_time for announcement "+a.ID, err)
		}
		windows = append(windows, window{
			Announcement: Announcement{ID: a.ID, Message: a.Message},
			startMinute:  start,
			endMinute:    end,
		})
	}

	return &Scheduler{loc: loc, windows: windows, kv: kv, dailyCap: dailyCap}, nil
}

func parseClockMinutes(clock string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", clock)
	}
	return h*60 + m, nil
}

// GetForGuild returns the first active announcement whose window contains
// now, or nil if none is active or the guild's daily cap is already spent.
func (s *Scheduler) GetForGuild(ctx context.Context, guildID string) (*Announcement, error) {
	now := time.Now().In(s.loc)
	nowMinute := now.Hour()*60 + now.Minute()

	var matched *Announcement
	for _, w := range s.windows {
		if inWindow(nowMinute, w.startMinute, w.endMinute) {
			a := w.Announcement
			matched = &a
			break
		}
	}
	if matched == nil {
		return nil, nil
	}

	c, err := s.loadCounter(ctx, guildID, now)
	if err != nil {
		return nil, err
	}
	if c.Count >= s.dailyCap {
		return nil, nil
	}
	return matched, nil
}

func inWindow(now, start, end int) bool {
	if start <= end {
		return now >= start && now <= end
	}
	// overnight window, e.g. 22:00-02:00
	return now >= start || now <= end
}

// MarkSent records a successful delivery, incrementing guildID's daily
// counter (resetting it first if the stored date has rolled over).
func (s *Scheduler) MarkSent(ctx context.Context, guildID, announcementID string) error {
	now := time.Now().In(s.loc)
	c, err := s.loadCounter(ctx, guildID, now)
	if err != nil {
		return err
	}
	c.Count++
	return s.saveCounter(ctx, guildID, c)
}

func (s *Scheduler) loadCounter(ctx context.Context, guildID string, now time.Time) (counter, error) {
	today := now.Format("2006-01-02")

	raw, ok, err := s.kv.Get(ctx, counterKey(guildID))
	if err != nil {
		return counter{}, err
	}
	if !ok {
		return counter{Date: today, Count: 0}, nil
	}

	var c counter
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return counter{}, apperr.Internal("decoding announce counter for "+guildID, err)
	}
	if c.Date != today {
		return counter{Date: today, Count: 0}, nil
	}
	return c, nil
}

func (s *Scheduler) saveCounter(ctx context.Context, guildID string, c counter) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return apperr.Internal("encoding announce counter for "+guildID, err)
	}
	return s.kv.Set(ctx, counterKey(guildID), string(raw), 48*time.Hour)
}

func counterKey(guildID string) string {
	return "announce:counter:" + guildID
}
