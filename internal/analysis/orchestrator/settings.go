package orchestrator

import (
	"time"

	"ticketchain/platform/config"
)

// Settings is the explicit configuration of one Orchestrator.
type Settings struct {
	Phase1MaxAttempts int
	Phase1BaseBackoff time.Duration
	Phase1MaxBackoff  time.Duration

	PollInterval    time.Duration
	PollBackoff     float64
	MaxPollInterval time.Duration
	MaxWait         time.Duration
	// MaxPolls bounds the loop independently of the clock. Zero derives it
	// from MaxWait and PollInterval.
	MaxPolls int

	DefaultModel       string
	DefaultAssistantID string
}

// SettingsFromConfig builds Settings from the loaded configuration.
func SettingsFromConfig(cfg config.OrchestratorConfig, models config.ModelConfig) Settings {
	return Settings{
		Phase1MaxAttempts:  cfg.GetPhase1MaxAttempts(),
		Phase1BaseBackoff:  cfg.GetPhase1BaseBackoff(),
		Phase1MaxBackoff:   cfg.GetPhase1MaxBackoff(),
		PollInterval:       cfg.GetPhase2PollInterval(),
		PollBackoff:        cfg.GetPhase2PollBackoff(),
		MaxPollInterval:    cfg.GetPhase2MaxPollInterval(),
		MaxWait:            cfg.GetPhase2MaxWait(),
		DefaultModel:       models.GetDefaultModel(),
		DefaultAssistantID: models.GetDefaultAssistantID(),
	}
}

func (s Settings) withDefaults() Settings {
	if s.Phase1MaxAttempts <= 0 {
		s.Phase1MaxAttempts = 4
	}
	if s.Phase1BaseBackoff <= 0 {
		s.Phase1BaseBackoff = time.Second
	}
	if s.Phase1MaxBackoff < s.Phase1BaseBackoff {
		s.Phase1MaxBackoff = 30 * s.Phase1BaseBackoff
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 5 * time.Second
	}
	if s.PollBackoff < 1 {
		s.PollBackoff = 1
	}
	if s.MaxPollInterval < s.PollInterval {
		s.MaxPollInterval = s.PollInterval
	}
	if s.MaxWait <= 0 {
		s.MaxWait = 10 * time.Minute
	}
	if s.MaxPolls <= 0 {
		s.MaxPolls = int(s.MaxWait/s.PollInterval) + 2
	}
	return s
}

// backoff returns the delay before retry number attempt (1-based): base*2^(attempt-1), capped.
func (s Settings) backoff(attempt int) time.Duration {
	d := s.Phase1BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.Phase1MaxBackoff {
			return s.Phase1MaxBackoff
		}
	}
	return min(d, s.Phase1MaxBackoff)
}

// nextPoll grows the poll interval by the configured factor up to the cap.
func (s Settings) nextPoll(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * s.PollBackoff)
	return min(next, s.MaxPollInterval)
}
