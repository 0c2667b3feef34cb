package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

// Known setting keys.
const (
	SettingWorkdayStart     = "attendance.workday_start"
	SettingLateGraceMinutes = "attendance.late_grace_minutes"
	SettingTimezone         = "attendance.timezone"
	SettingAssetCodePrefix  = "assets.code_prefix"
)

var assetPrefixPattern = regexp.MustCompile(`^[A-Z]{2,8}$`)

// SettingsDefaults are the values in effect until an administrator overrides them.
type SettingsDefaults struct {
	Policy          AttendancePolicy
	AssetCodePrefix string
}

// SettingsService stores system settings and resolves the attendance policy
// and asset code prefix from them.
type SettingsService struct {
	settings persistence.SettingsRepository
	defaults SettingsDefaults
	effects  sideEffects
	now      func() time.Time
	logger   *slog.Logger
}

// NewSettingsService constructs a settings service.
func NewSettingsService(settings persistence.SettingsRepository, outbox persistence.OutboxRepository, defaults SettingsDefaults, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SettingsService {
	if now == nil {
		now = time.Now
	}
	if defaults.Policy.Location == nil {
		defaults.Policy.Location = time.UTC
	}
	if defaults.AssetCodePrefix == "" {
		defaults.AssetCodePrefix = defaultAssetCodePrefix
	}
	return &SettingsService{
		settings: settings,
		defaults: defaults,
		effects:  newSideEffects(outbox, idGenerator, now),
		now:      now,
		logger:   defaultLogger(logger),
	}
}

func (s *SettingsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SettingsService", operation, attrs...)
}

// Get returns every known setting with stored values layered over defaults.
func (s *SettingsService) Get(ctx context.Context) (map[string]string, error) {
	if s == nil {
		return nil, fmt.Errorf("SettingsService is nil")
	}
	stored, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	values := s.defaultValues()
	for key, value := range stored {
		values[key] = value
	}
	return values, nil
}

// Put validates and stores a partial update for administrators.
func (s *SettingsService) Put(ctx context.Context, principal Principal, values map[string]string) (merged map[string]string, err error) {
	if s == nil {
		err = fmt.Errorf("SettingsService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Put", "principal_id", principal.UserID, "keys", len(values))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update settings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "settings updated")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	clean := make(map[string]string, len(values))
	vErr := &ValidationError{}
	for key, raw := range values {
		value := strings.TrimSpace(raw)
		if msg := validateSetting(key, value); msg != "" {
			vErr.add(key, msg)
			continue
		}
		clean[key] = value
	}
	if len(values) == 0 {
		vErr.Message = "No settings provided."
	}
	if vErr.HasErrors() {
		if vErr.Message == "" {
			vErr.Message = "Invalid settings."
		}
		err = vErr
		return
	}

	if err = s.settings.PutSettings(ctx, clean, s.now()); err != nil {
		return
	}

	keys := make([]string, 0, len(clean))
	metadata := make(map[string]string, len(clean))
	for key, value := range clean {
		keys = append(keys, key)
		metadata[key] = value
	}
	sort.Strings(keys)
	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:  principal.UserID,
		Action:   "settings.update",
		Summary:  "Updated settings: " + strings.Join(keys, ", "),
		Metadata: metadata,
	}))

	merged, err = s.Get(ctx)
	return
}

// AttendancePolicy resolves the policy from stored settings, falling back to
// defaults for missing or unreadable values.
func (s *SettingsService) AttendancePolicy(ctx context.Context) AttendancePolicy {
	policy := s.defaults.Policy
	values, err := s.Get(ctx)
	if err != nil {
		s.loggerWith(ctx, "AttendancePolicy").WarnContext(ctx, "using default attendance policy", "error", err)
		return policy
	}
	if start, ok := parseClock(values[SettingWorkdayStart]); ok {
		policy.WorkdayStart = start
	}
	if minutes, err := strconv.Atoi(values[SettingLateGraceMinutes]); err == nil && minutes >= 0 {
		policy.LateGrace = time.Duration(minutes) * time.Minute
	}
	if loc, err := time.LoadLocation(values[SettingTimezone]); err == nil && values[SettingTimezone] != "" {
		policy.Location = loc
	}
	return policy
}

// AssetCodePrefix returns the prefix for newly generated asset codes.
func (s *SettingsService) AssetCodePrefix(ctx context.Context) string {
	values, err := s.Get(ctx)
	if err != nil {
		s.loggerWith(ctx, "AssetCodePrefix").WarnContext(ctx, "using default asset code prefix", "error", err)
		return s.defaults.AssetCodePrefix
	}
	if prefix := values[SettingAssetCodePrefix]; assetPrefixPattern.MatchString(prefix) {
		return prefix
	}
	return s.defaults.AssetCodePrefix
}

func (s *SettingsService) defaultValues() map[string]string {
	policy := s.defaults.Policy
	return map[string]string{
		SettingWorkdayStart:     formatClock(policy.WorkdayStart),
		SettingLateGraceMinutes: strconv.Itoa(int(policy.LateGrace / time.Minute)),
		SettingTimezone:         policy.location().String(),
		SettingAssetCodePrefix:  s.defaults.AssetCodePrefix,
	}
}

func validateSetting(key, value string) string {
	switch key {
	case SettingWorkdayStart:
		if _, ok := parseClock(value); !ok {
			return "must be a time of day as HH:MM"
		}
	case SettingLateGraceMinutes:
		if minutes, err := strconv.Atoi(value); err != nil || minutes < 0 {
			return "must be a whole number of minutes"
		}
	case SettingTimezone:
		if value == "" {
			return "must be an IANA time zone"
		}
		if _, err := time.LoadLocation(value); err != nil {
			return "must be an IANA time zone"
		}
	case SettingAssetCodePrefix:
		if !assetPrefixPattern.MatchString(value) {
			return "must be 2 to 8 upper-case letters"
		}
	default:
		return "unknown setting"
	}
	return ""
}

// ParseClock parses an HH:MM time of day into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	d, ok := parseClock(value)
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	return d, nil
}

func parseClock(value string) (time.Duration, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
