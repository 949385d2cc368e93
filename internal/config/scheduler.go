package config

import "time"

// SchedulerConfig controls the card assignment/release job.  Interval is
// how often a tick fires; Lookahead is how far ahead of an appointment's
// check-in time a card is handed out.  The two are independent: with the
// defaults a visitor gets a card between 14 and 15 minutes early, and a
// longer interval simply widens that band.
type SchedulerConfig struct {
	Enabled     bool
	Interval    time.Duration
	Lookahead   time.Duration
	TickTimeout time.Duration
}

func LoadSchedulerConfig() SchedulerConfig {
	cfg := SchedulerConfig{
		Enabled:     envBool("SCHEDULER_ENABLED", true),
		Interval:    envDur("SCHEDULER_INTERVAL", time.Minute),
		Lookahead:   envDur("SCHEDULER_LOOKAHEAD", 15*time.Minute),
		TickTimeout: envDur("SCHEDULER_TICK_TIMEOUT", 45*time.Second),
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 15 * time.Minute
	}
	if cfg.TickTimeout <= 0 || cfg.TickTimeout > cfg.Interval {
		cfg.TickTimeout = cfg.Interval
	}
	return cfg
}
