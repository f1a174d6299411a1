package downgrade

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"

	"golang.org/x/mod/semver"
)

// PolicySettings is the remote part of the combined policy.
type PolicySettings struct {
	// DeviceLevel overrides detection when set.
	DeviceLevel DeviceLevel
	// MinDeviceLevel downgrades devices below this tier.
	MinDeviceLevel DeviceLevel
	// MinEngineVersion downgrades engines older than this semver ("v1.2.0").
	MinEngineVersion string
	// CrashThreshold downgrades a resource after this many unfinished worker
	// runs. Zero disables the crash guard.
	CrashThreshold int
}

// UnfinishedCounter reports worker runs that began but never finished.
type UnfinishedCounter interface {
	Unfinished(ctx context.Context, resourceID string) (int, error)
}

// Policy is the combined remote/local Decider.
type Policy struct {
	// Settings returns the current remote settings. Nil means defaults.
	Settings func() PolicySettings
	// EngineVersion returns the running engine version. Nil skips the gate.
	EngineVersion func() string
	// Ledger backs the crash guard. Nil skips it.
	Ledger UnfinishedCounter
	// CPUs overrides runtime.NumCPU for device detection.
	CPUs func() int
}

var _ Decider = (*Policy)(nil)

// Decide applies, in order, the device tier gate, the engine version gate and
// the crash guard. When nothing fires it returns the resolved device level.
func (p *Policy) Decide(resourceID string) Decision {
	var s PolicySettings
	if p.Settings != nil {
		s = p.Settings()
	}

	level := s.DeviceLevel
	if level == LevelUnknown {
		level = p.detectLevel()
	}
	if s.MinDeviceLevel != LevelUnknown && level < s.MinDeviceLevel {
		return Decision{Downgrade: true, Reason: "device_level_" + level.String()}
	}

	if s.MinEngineVersion != "" && p.EngineVersion != nil {
		v := p.EngineVersion()
		if !semver.IsValid(v) || semver.Compare(v, s.MinEngineVersion) < 0 {
			return Decision{Downgrade: true, Reason: "engine_version_" + v}
		}
	}

	if s.CrashThreshold > 0 && p.Ledger != nil {
		n, err := p.Ledger.Unfinished(context.Background(), resourceID)
		if err != nil {
			slog.Warn("crash ledger unavailable",
				slog.String("component", "downgrade"),
				slog.String("resource", resourceID),
				slog.Any("error", err))
		} else if n >= s.CrashThreshold {
			return Decision{Downgrade: true, Reason: "crash_guard_" + strconv.Itoa(n)}
		}
	}

	return Decision{DeviceLevel: level}
}

func (p *Policy) detectLevel() DeviceLevel {
	n := runtime.NumCPU()
	if p.CPUs != nil {
		n = p.CPUs()
	}
	switch {
	case n < 4:
		return Low
	case n < 8:
		return Medium
	default:
		return High
	}
}
