// Package downgrade decides whether a player instance should fall back to its
// static placeholder instead of rendering with the native engine.
//
// The decision is a pure function of its inputs: feature switches, the
// instance's resource id and scene code, and a combined remote/local policy.
// The package also keeps the crash ledger the policy consults.
package downgrade

import "strconv"

// DeviceLevel is the device capability tier used to pick a render quality.
type DeviceLevel int

const (
	LevelUnknown DeviceLevel = iota
	Low
	Medium
	High
)

func (l DeviceLevel) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return "unknown"
}

// ParseDeviceLevel maps "low", "medium" and "high" (or 1..3) to a level.
func ParseDeviceLevel(s string) (DeviceLevel, bool) {
	switch s {
	case "low":
		return Low, true
	case "medium":
		return Medium, true
	case "high":
		return High, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= int(Low) && n <= int(High) {
		return DeviceLevel(n), true
	}
	return LevelUnknown, false
}

// Outcome is the result of Evaluate.
type Outcome struct {
	ShouldDowngrade bool
	// Reason names the rule that fired. Empty when not downgrading.
	Reason string
	// DeviceLevel is only meaningful when ShouldDowngrade is false.
	DeviceLevel DeviceLevel
}

// Decision is the result of the combined remote/local policy.
type Decision struct {
	Downgrade   bool
	Reason      string
	DeviceLevel DeviceLevel
}

// Flags exposes the force-downgrade switches.
type Flags interface {
	ForceDowngrade() bool
	ForceDowngradeByResourceID(resourceID string) bool
	ForceDowngradeByScene(sceneCode string) bool
}

// Decider is the combined remote/local downgrade policy.
type Decider interface {
	Decide(resourceID string) Decision
}

// Switches is everything Evaluate consults.
type Switches interface {
	Flags
	Decider
}

// Sources joins independent Flags and Decider implementations.
type Sources struct {
	Flags
	Decider
}

// Evaluate runs the downgrade rules in order; the first rule that fires wins.
//
//  1. the global force switch
//  2. the scene-code switch, or the resource-id switch when sceneCode is empty
//  3. the combined policy, which also yields the device level
//
// A nil Switches never downgrades and reports High.
func Evaluate(resourceID, sceneCode string, sw Switches) Outcome {
	if sw == nil {
		return Outcome{DeviceLevel: High}
	}
	if sw.ForceDowngrade() {
		return Outcome{ShouldDowngrade: true, Reason: "forceDowngrade"}
	}
	if sceneCode == "" {
		if sw.ForceDowngradeByResourceID(resourceID) {
			return Outcome{ShouldDowngrade: true, Reason: "forceDowngradeByResId," + resourceID}
		}
	} else if sw.ForceDowngradeByScene(sceneCode) {
		return Outcome{ShouldDowngrade: true, Reason: "forceDowngradeByResScene," + sceneCode}
	}

	d := sw.Decide(resourceID)
	if d.Downgrade {
		return Outcome{ShouldDowngrade: true, Reason: "getDowngradeResult," + d.Reason}
	}
	level := d.DeviceLevel
	if level == LevelUnknown {
		level = High
	}
	return Outcome{DeviceLevel: level}
}
