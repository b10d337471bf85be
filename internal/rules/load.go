package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// LoadResult is the merged rule set plus non-fatal findings from the override file.
type LoadResult struct {
	Rules    Set
	Warnings []string
}

// ruleFile is one [rule_kind] table of the override file.
type ruleFile struct {
	Enabled             bool    `toml:"enabled"`
	Schedule            string  `toml:"schedule"`
	Priority            string  `toml:"priority"`
	AutoResolve         bool    `toml:"auto_resolve"`
	DeadlineHours       int     `toml:"deadline_hours"`
	SilenceHours        int     `toml:"silence_hours"`
	ExpiryWindowDays    int     `toml:"expiry_window_days"`
	CriticalWithinHours int     `toml:"critical_within_hours"`
	ConsecutiveDays     int     `toml:"consecutive_days"`
	ChilledMinC         float64 `toml:"chilled_min_c"`
	ChilledMaxC         float64 `toml:"chilled_max_c"`
	FrozenMaxC          float64 `toml:"frozen_max_c"`
}

// LoadFrom reads a TOML override file on top of Defaults.
// An empty path or a missing file yields the defaults.
func LoadFrom(path string) (*LoadResult, error) {
	if path == "" {
		return &LoadResult{Rules: Defaults()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Rules: Defaults()}, nil
		}
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return Parse(string(data))
}

// Parse merges TOML overrides onto Defaults. Only keys present in the document are applied.
func Parse(doc string) (*LoadResult, error) {
	result := &LoadResult{Rules: Defaults()}

	var raw map[string]ruleFile
	md, err := toml.Decode(doc, &raw)
	if err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	for _, key := range md.Undecoded() {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unknown rules key: %q", key.String()))
	}

	for name, rf := range raw {
		kind, err := ParseKind(name)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown rule: %q", name))
			continue
		}
		r := result.Rules[kind]
		defined := func(key string) bool { return md.IsDefined(name, key) }

		if defined("enabled") {
			r.Enabled = rf.Enabled
		}
		if defined("schedule") {
			r.Schedule = rf.Schedule
		}
		if defined("priority") {
			p, err := alert.ParsePriority(rf.Priority)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", name, err)
			}
			r.Priority = p
		}
		if defined("auto_resolve") {
			r.AutoResolve = rf.AutoResolve
		}
		if defined("deadline_hours") {
			r.DeadlineHours = rf.DeadlineHours
		}
		if defined("silence_hours") {
			r.SilenceHours = rf.SilenceHours
		}
		if defined("expiry_window_days") {
			r.ExpiryWindowDays = rf.ExpiryWindowDays
		}
		if defined("critical_within_hours") {
			r.CriticalWithinHours = rf.CriticalWithinHours
		}
		if defined("consecutive_days") {
			r.ConsecutiveDays = rf.ConsecutiveDays
		}
		if defined("chilled_min_c") {
			r.ChilledMinC = rf.ChilledMinC
		}
		if defined("chilled_max_c") {
			r.ChilledMaxC = rf.ChilledMaxC
		}
		if defined("frozen_max_c") {
			r.FrozenMaxC = rf.FrozenMaxC
		}
		result.Rules[kind] = r
	}

	if err := result.Rules.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
