package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-delve/steptest/pkg/config"
	"github.com/go-delve/steptest/pkg/logflags"
	"github.com/go-delve/steptest/pkg/script"
)

// Script header settings.
const (
	settingStepTimeout    = "STEP_TIMEOUT"
	settingFinishTimeout  = "FINISH_TIMEOUT"
	settingMaxFilterSteps = "MAX_FILTER_STEPS"
	settingBuildFlags     = "BUILD_FLAGS"
)

// IsSetting returns true if key is a script header setting understood by
// Run.
func IsSetting(key string) bool {
	switch key {
	case settingStepTimeout, settingFinishTimeout, settingMaxFilterSteps, settingBuildFlags:
		return true
	}
	return false
}

// SettingError is returned when a script header setting has an invalid
// value.
type SettingError struct {
	Key, Value string
	Err        error
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Key, e.Err)
}

func (e *SettingError) Unwrap() error {
	return e.Err
}

// applySettings returns a copy of cfg with the script's header settings
// applied. Unknown settings are logged and otherwise ignored.
func applySettings(cfg *config.Config, settings map[string]string, log logflags.Logger) (*config.Config, error) {
	r := cfg.Clone()

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		var err error
		switch key {
		case settingStepTimeout:
			r.StepTimeout, err = parseTimeout(value)
		case settingFinishTimeout:
			r.FinishTimeout, err = parseTimeout(value)
		case settingMaxFilterSteps:
			r.MaxFilterSteps, err = strconv.Atoi(value)
			if err == nil && r.MaxFilterSteps <= 0 {
				err = fmt.Errorf("must be positive")
			}
		case settingBuildFlags:
			r.BuildFlags = strings.TrimSpace(r.BuildFlags + " " + value)
		default:
			if s := script.Suggest(key); len(s) > 0 {
				log.Warnf("unknown setting %s, did you mean %s?", key, s[0])
			} else {
				log.Debugf("ignoring setting %s", key)
			}
			continue
		}
		if err != nil {
			return nil, &SettingError{Key: key, Value: value, Err: err}
		}
		log.Debugf("setting %s = %s", key, value)
	}
	return r, nil
}

// parseTimeout accepts a duration ("10s") or a number of seconds.
func parseTimeout(value string) (time.Duration, error) {
	if n, err := strconv.Atoi(value); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}
