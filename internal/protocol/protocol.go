// Package protocol defines the wire messages exchanged between the
// controller daemon and its clients. Every message is a flat JSON object
// carrying a "type" discriminator; Decode validates the payload against
// the concrete type before anything downstream sees it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	// Client to server.
	TypeAuth       Type = "auth"
	TypeChangeMode Type = "change_mode"
	TypeCommand    Type = "command"

	// Server to client.
	TypeAuthRequired     Type = "auth_required"
	TypeAuthSuccess      Type = "auth_success"
	TypeAuthFailed       Type = "auth_failed"
	TypeAdminOverride    Type = "admin_override"
	TypeModeChanged      Type = "mode_changed"
	TypeControlAvailable Type = "control_available"
	TypeControlRevoked   Type = "control_revoked"
	TypeAdminLeft        Type = "admin_left"
	TypePermissionDenied Type = "permission_denied"
	TypeUserJoined       Type = "user_joined"
	TypeCommandSent      Type = "command_sent"
	TypeCommandFailed    Type = "command_failed"
	TypeSystemStatus     Type = "system_status"
)

// Role of an authenticated session.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// Mode is the admin session's control posture.
type Mode string

const (
	ModeActive   Mode = "active"
	ModeWatching Mode = "watching"
)

func (m Mode) Valid() bool { return m == ModeActive || m == ModeWatching }

var (
	ErrNoType      = errors.New("protocol: message has no type field")
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Message is implemented by every wire message.
type Message interface {
	MessageType() Type
}

type Auth struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	ClientType string `json:"client_type"`
}

type ChangeMode struct {
	SessionID string `json:"session_id"`
	Mode      Mode   `json:"mode"`
}

type Command struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
}

type AuthRequired struct {
	Message string `json:"message"`
}

type AuthSuccess struct {
	SessionID   string          `json:"session_id"`
	Username    string          `json:"username"`
	Role        Role            `json:"role"`
	Permissions map[string]bool `json:"permissions"`
	AdminMode   Mode            `json:"admin_mode,omitempty"`
}

type AuthFailed struct {
	Message string `json:"message"`
}

type AdminOverride struct {
	Message        string `json:"message"`
	NewAdminClient string `json:"new_admin_client"`
}

type ModeChanged struct {
	Mode Mode `json:"mode"`
}

type ControlAvailable struct {
	Message   string `json:"message"`
	AdminMode Mode   `json:"admin_mode"`
}

type ControlRevoked struct {
	Message   string `json:"message"`
	AdminMode Mode   `json:"admin_mode"`
}

type AdminLeft struct {
	Message string `json:"message"`
}

type PermissionDenied struct {
	Message       string `json:"message"`
	AdminUsername string `json:"admin_username,omitempty"`
	AdminMode     Mode   `json:"admin_mode,omitempty"`
}

type UserJoined struct {
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	ClientType string `json:"client_type"`
}

type CommandSent struct {
	Command string `json:"command"`
}

type CommandFailed struct {
	Message string `json:"message"`
}

// SystemStatus carries a host resource snapshot of the daemon machine.
type SystemStatus struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	UptimeSec     uint64  `json:"uptime_sec"`
	Goroutines    int     `json:"goroutines"`
}

func (Auth) MessageType() Type             { return TypeAuth }
func (ChangeMode) MessageType() Type       { return TypeChangeMode }
func (Command) MessageType() Type          { return TypeCommand }
func (AuthRequired) MessageType() Type     { return TypeAuthRequired }
func (AuthSuccess) MessageType() Type      { return TypeAuthSuccess }
func (AuthFailed) MessageType() Type       { return TypeAuthFailed }
func (AdminOverride) MessageType() Type    { return TypeAdminOverride }
func (ModeChanged) MessageType() Type      { return TypeModeChanged }
func (ControlAvailable) MessageType() Type { return TypeControlAvailable }
func (ControlRevoked) MessageType() Type   { return TypeControlRevoked }
func (AdminLeft) MessageType() Type        { return TypeAdminLeft }
func (PermissionDenied) MessageType() Type { return TypePermissionDenied }
func (UserJoined) MessageType() Type       { return TypeUserJoined }
func (CommandSent) MessageType() Type      { return TypeCommandSent }
func (CommandFailed) MessageType() Type    { return TypeCommandFailed }
func (SystemStatus) MessageType() Type     { return TypeSystemStatus }

// Encode marshals a message with its type discriminator injected.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	t, _ := json.Marshal(string(m.MessageType()))
	obj["type"] = t
	return json.Marshal(obj)
}

// Decode parses a wire payload into its concrete message type. Payloads
// without a type field return ErrNoType so the caller can route them as
// raw telemetry; payloads with an unknown type return ErrUnknownType.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("protocol: malformed message: %w", err)
	}
	if head.Type == "" {
		return nil, ErrNoType
	}

	var msg Message
	var err error
	switch head.Type {
	case TypeAuth:
		var m Auth
		err = json.Unmarshal(data, &m)
		if err == nil && m.Username == "" {
			err = errors.New("protocol: auth requires username")
		}
		msg = m
	case TypeChangeMode:
		var m ChangeMode
		err = json.Unmarshal(data, &m)
		if err == nil && m.SessionID == "" {
			err = errors.New("protocol: change_mode requires session_id")
		}
		if err == nil && !m.Mode.Valid() {
			err = fmt.Errorf("protocol: change_mode has invalid mode %q", m.Mode)
		}
		msg = m
	case TypeCommand:
		var m Command
		err = json.Unmarshal(data, &m)
		if err == nil && m.SessionID == "" {
			err = errors.New("protocol: command requires session_id")
		}
		if err == nil && m.Command == "" {
			err = errors.New("protocol: command requires a command string")
		}
		msg = m
	case TypeAuthRequired:
		var m AuthRequired
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeAuthSuccess:
		var m AuthSuccess
		err = json.Unmarshal(data, &m)
		if err == nil && m.SessionID == "" {
			err = errors.New("protocol: auth_success requires session_id")
		}
		msg = m
	case TypeAuthFailed:
		var m AuthFailed
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeAdminOverride:
		var m AdminOverride
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeModeChanged:
		var m ModeChanged
		err = json.Unmarshal(data, &m)
		if err == nil && !m.Mode.Valid() {
			err = fmt.Errorf("protocol: mode_changed has invalid mode %q", m.Mode)
		}
		msg = m
	case TypeControlAvailable:
		var m ControlAvailable
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeControlRevoked:
		var m ControlRevoked
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeAdminLeft:
		var m AdminLeft
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePermissionDenied:
		var m PermissionDenied
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeUserJoined:
		var m UserJoined
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCommandSent:
		var m CommandSent
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCommandFailed:
		var m CommandFailed
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeSystemStatus:
		var m SystemStatus
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}
