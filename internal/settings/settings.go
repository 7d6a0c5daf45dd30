// Package settings holds the bot's runtime settings: persona, system prompt
// and memory tuning. Settings are read as immutable snapshots through a
// Store so that every request sees a consistent view while an operator
// edits the configuration.
package settings

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ResponseLength selects the length guidance given to the model.
type ResponseLength string

// Supported response lengths.
const (
	LengthShort  ResponseLength = "short"
	LengthMedium ResponseLength = "medium"
	LengthLong   ResponseLength = "long"
)

// Settings is the full runtime configuration of the bot.
type Settings struct {
	BotName      string  `json:"bot_name"`
	SystemPrompt string  `json:"system_prompt"`
	Persona      Persona `json:"persona"`
	Memory       Memory  `json:"memory"`
}

// Persona shapes how the bot presents itself in every prompt.
type Persona struct {
	// Traits maps a trait name to a score on a 0-10 scale.
	Traits             map[string]int `json:"traits,omitempty"`
	CommunicationStyle string         `json:"communication_style,omitempty"`
	Tone               string         `json:"tone,omitempty"`
	UseEmojis          bool           `json:"use_emojis"`
	Roleplay           Roleplay       `json:"roleplay"`
	CustomInstructions string         `json:"custom_instructions,omitempty"`
	ResponseLength     ResponseLength `json:"response_length,omitempty"`
}

// Roleplay configures an optional character the bot plays.
type Roleplay struct {
	Enabled              bool   `json:"enabled"`
	CharacterDescription string `json:"character_description,omitempty"`
}

// Memory tunes what is remembered and what is injected into prompts.
type Memory struct {
	Enabled               bool           `json:"enabled"`
	ContextMessageCount   int            `json:"context_message_count"`
	MaxUserFacts          int            `json:"max_user_facts"`
	MaxPreferences        int            `json:"max_preferences"`
	IncludeMentionedUsers bool           `json:"include_mentioned_users"`
	MaxMentionedUserFacts int            `json:"max_mentioned_user_facts"`
	AutoExtractFacts      bool           `json:"auto_extract_facts"`
	Decay                 Decay          `json:"decay"`
	RetentionSweep        RetentionSweep `json:"retention_sweep"`
}

// Decay configures time-based relevance filtering of remembered items.
type Decay struct {
	Enabled    bool    `json:"enabled"`
	Factor     float64 `json:"factor"`
	Threshold  float64 `json:"threshold"`
	MaxAgeDays float64 `json:"max_age_days"`
}

// RetentionSweep configures the scheduled purge of rows older than
// Decay.MaxAgeDays. Decay alone never deletes anything.
type RetentionSweep struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

// Default values.
const (
	DefaultBotName               = "membot"
	DefaultContextMessageCount   = 10
	DefaultMaxUserFacts          = 20
	DefaultMaxPreferences        = 10
	DefaultMaxMentionedUserFacts = 3
	DefaultDecayFactor           = 0.1
	DefaultDecayThreshold        = 0.5
	DefaultMaxAgeDays            = 30
	DefaultSweepSchedule         = "@daily"
)

// Default returns the settings used when no settings file exists.
func Default() Settings {
	return Settings{
		BotName:      DefaultBotName,
		SystemPrompt: "You are a helpful, friendly assistant in a Discord server.",
		Persona: Persona{
			ResponseLength: LengthMedium,
		},
		Memory: Memory{
			Enabled:               true,
			ContextMessageCount:   DefaultContextMessageCount,
			MaxUserFacts:          DefaultMaxUserFacts,
			MaxPreferences:        DefaultMaxPreferences,
			IncludeMentionedUsers: true,
			MaxMentionedUserFacts: DefaultMaxMentionedUserFacts,
			Decay: Decay{
				Factor:     DefaultDecayFactor,
				Threshold:  DefaultDecayThreshold,
				MaxAgeDays: DefaultMaxAgeDays,
			},
			RetentionSweep: RetentionSweep{
				Schedule: DefaultSweepSchedule,
			},
		},
	}
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	s.Persona.Traits = maps.Clone(s.Persona.Traits)
	return s
}

// Validate checks every field and returns all problems joined.
func (s Settings) Validate() error {
	var errs []error

	if strings.TrimSpace(s.BotName) == "" {
		errs = append(errs, errors.New("bot_name must not be empty"))
	}

	for name, v := range s.Persona.Traits {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("persona.traits: trait name must not be empty"))
		}
		if v < 0 || v > 10 {
			errs = append(errs, fmt.Errorf("persona.traits.%s: %d out of range [0, 10]", name, v))
		}
	}
	switch s.Persona.ResponseLength {
	case "", LengthShort, LengthMedium, LengthLong:
	default:
		errs = append(errs, fmt.Errorf("persona.response_length: unknown value %q (want short, medium or long)", s.Persona.ResponseLength))
	}

	m := s.Memory
	if m.ContextMessageCount < 1 || m.ContextMessageCount > 200 {
		errs = append(errs, fmt.Errorf("memory.context_message_count: %d out of range [1, 200]", m.ContextMessageCount))
	}
	if m.MaxUserFacts < 1 || m.MaxUserFacts > 500 {
		errs = append(errs, fmt.Errorf("memory.max_user_facts: %d out of range [1, 500]", m.MaxUserFacts))
	}
	if m.MaxPreferences < 0 || m.MaxPreferences > 500 {
		errs = append(errs, fmt.Errorf("memory.max_preferences: %d out of range [0, 500]", m.MaxPreferences))
	}
	if m.MaxMentionedUserFacts < 0 || m.MaxMentionedUserFacts > 50 {
		errs = append(errs, fmt.Errorf("memory.max_mentioned_user_facts: %d out of range [0, 50]", m.MaxMentionedUserFacts))
	}
	if m.Decay.Factor < 0 {
		errs = append(errs, fmt.Errorf("memory.decay.factor: %v must not be negative", m.Decay.Factor))
	}
	if m.Decay.Threshold < 0 {
		errs = append(errs, fmt.Errorf("memory.decay.threshold: %v must not be negative", m.Decay.Threshold))
	}
	if m.Decay.Enabled && m.Decay.MaxAgeDays <= 0 {
		errs = append(errs, errors.New("memory.decay.max_age_days: must be positive when decay is enabled"))
	}
	if m.RetentionSweep.Enabled {
		if m.Decay.MaxAgeDays <= 0 {
			errs = append(errs, errors.New("memory.retention_sweep: requires memory.decay.max_age_days"))
		}
		if strings.TrimSpace(m.RetentionSweep.Schedule) == "" {
			errs = append(errs, errors.New("memory.retention_sweep.schedule: must not be empty when enabled"))
		}
	}
	if sched := m.RetentionSweep.Schedule; sched != "" {
		if _, err := scheduleParser.Parse(sched); err != nil {
			errs = append(errs, fmt.Errorf("memory.retention_sweep.schedule: %w", err))
		}
	}

	return errors.Join(errs...)
}
