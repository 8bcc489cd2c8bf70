// Package command translates legacy positional command strings into the
// structured action messages the controller firmware understands. The
// translation is pure: no state, no side effects.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Action names on the device wire. Field names (kumes, miktar, derece)
// match the controller firmware and must not be renamed.
const (
	ActionStatus      = "get_status"
	ActionSetAutoMode = "set_auto_mode"
	ActionFanOn       = "fan_on"
	ActionFanOff      = "fan_off"
	ActionLedOn       = "led_on"
	ActionLedOff      = "led_off"
	ActionPumpOn      = "pump_on"
	ActionPumpOff     = "pump_off"
	ActionFeed        = "yem_ver"
	ActionDoor        = "kapi_kontrol"
)

type Action struct {
	Name    string `json:"action"`
	Coop    *int   `json:"kumes,omitempty"`
	Amount  *int   `json:"miktar,omitempty"`
	Degrees *int   `json:"derece,omitempty"`
	Value   *bool  `json:"value,omitempty"`
}

var ErrUnrecognized = errors.New("command: unrecognized format")

// Normalize returns the wire bytes for a command string. Structured JSON
// objects pass through unchanged after syntactic validation; legacy
// positional strings are converted to their structured action.
func Normalize(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if isJSONObject(trimmed) {
		return []byte(trimmed), nil
	}
	action, err := Parse(trimmed)
	if err != nil {
		return nil, err
	}
	return json.Marshal(action)
}

// Parse converts a command string into an Action. JSON input must carry
// an "action" field; legacy input is matched against the positional
// command table.
func Parse(raw string) (Action, error) {
	trimmed := strings.TrimSpace(raw)
	if isJSONObject(trimmed) {
		var a Action
		if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
			return Action{}, fmt.Errorf("command: invalid JSON: %w", err)
		}
		if a.Name == "" {
			return Action{}, errors.New("command: JSON command has no action field")
		}
		return a, nil
	}
	return parseLegacy(strings.ToUpper(trimmed))
}

// Legacy forms, as accepted by the old desktop client:
//
//	STATUS        -> get_status
//	AUTO:1        -> set_auto_mode value=true
//	FAN2:1        -> fan_on kumes=2
//	LED:0         -> led_off
//	POMPA:1       -> pump_on
//	YEM:50        -> yem_ver miktar=50
//	KAPI:90       -> kapi_kontrol derece=90
func parseLegacy(cmd string) (Action, error) {
	if cmd == "STATUS" {
		return Action{Name: ActionStatus}, nil
	}

	prefix, arg, ok := strings.Cut(cmd, ":")
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnrecognized, cmd)
	}

	switch {
	case prefix == "AUTO":
		v := arg == "1"
		return Action{Name: ActionSetAutoMode, Value: &v}, nil

	case strings.HasPrefix(prefix, "FAN"):
		n, err := strconv.Atoi(prefix[3:])
		if err != nil {
			return Action{}, fmt.Errorf("%w: %q", ErrUnrecognized, cmd)
		}
		name := ActionFanOff
		if arg == "1" {
			name = ActionFanOn
		}
		return Action{Name: name, Coop: &n}, nil

	case prefix == "LED":
		if arg == "1" {
			return Action{Name: ActionLedOn}, nil
		}
		return Action{Name: ActionLedOff}, nil

	case prefix == "POMPA":
		if arg == "1" {
			return Action{Name: ActionPumpOn}, nil
		}
		return Action{Name: ActionPumpOff}, nil

	case prefix == "YEM":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %q", ErrUnrecognized, cmd)
		}
		return Action{Name: ActionFeed, Amount: &n}, nil

	case prefix == "KAPI":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %q", ErrUnrecognized, cmd)
		}
		return Action{Name: ActionDoor, Degrees: &n}, nil
	}

	return Action{}, fmt.Errorf("%w: %q", ErrUnrecognized, cmd)
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	return json.Valid([]byte(s))
}
