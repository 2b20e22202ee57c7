package businesshours

import (
	"context"
	"fmt"
	"regexp"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"whatsapp-autoreply/internal/models"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ConfigLookup returns a device's bot config, or nil when none exists.
type ConfigLookup interface {
	FindByDevice(ctx context.Context, deviceID string) (*models.DeviceBotConfig, error)
}

type Result struct {
	IsBusinessHours bool   `json:"is_business_hours"`
	OffHoursMessage string `json:"off_hours_message,omitempty"`
}

type Evaluator struct {
	configs ConfigLookup
	now     func() time.Time
}

func NewEvaluator(configs ConfigLookup) *Evaluator {
	return &Evaluator{configs: configs, now: time.Now}
}

// CheckBusinessHours loads the device config and evaluates it at the current time.
// Lookup failures count as business hours.
func (e *Evaluator) CheckBusinessHours(ctx context.Context, deviceID string) Result {
	cfg, err := e.configs.FindByDevice(ctx, deviceID)
	if err != nil {
		zap.L().Warn("business hours config lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		return Result{IsBusinessHours: true}
	}
	return Evaluate(cfg, e.now())
}

// Evaluate reports whether now falls inside one of today's windows in the
// device timezone. A day without any window is off-hours.
func Evaluate(cfg *models.DeviceBotConfig, now time.Time) Result {
	if cfg == nil || !cfg.OffHoursEnabled || len(cfg.BusinessHours) == 0 {
		return Result{IsBusinessHours: true}
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		zap.L().Warn("invalid device timezone, treating as business hours",
			zap.String("device_id", cfg.DeviceID), zap.String("timezone", tz), zap.Error(err))
		return Result{IsBusinessHours: true}
	}

	local := now.In(loc)
	day := int(local.Weekday())
	hhmm := local.Format("15:04")
	for _, w := range cfg.BusinessHours {
		if w.Day == day && hhmm >= w.Start && hhmm <= w.End {
			return Result{IsBusinessHours: true}
		}
	}
	return Result{IsBusinessHours: false, OffHoursMessage: cfg.OffHoursMessage}
}

// ValidateBusinessHours rejects windows with a weekday outside 0-6, times not
// in 24h HH:MM form, or a start that does not sort before the end.
func ValidateBusinessHours(hours []models.BusinessHour) error {
	for i, w := range hours {
		if w.Day < 0 || w.Day > 6 {
			return fmt.Errorf("businessHours[%d]: day must be between 0 and 6, got %d", i, w.Day)
		}
		if !clockPattern.MatchString(w.Start) {
			return fmt.Errorf("businessHours[%d]: start %q is not HH:MM", i, w.Start)
		}
		if !clockPattern.MatchString(w.End) {
			return fmt.Errorf("businessHours[%d]: end %q is not HH:MM", i, w.End)
		}
		if w.Start >= w.End {
			return fmt.Errorf("businessHours[%d]: start %s must be before end %s", i, w.Start, w.End)
		}
	}
	return nil
}

func ValidateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("timezone %q: %w", tz, err)
	}
	return nil
}
