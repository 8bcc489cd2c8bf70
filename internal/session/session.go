package session

import (
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

// Session is one authenticated logical connection. AdminMode is set only
// while the session is the current privileged holder; a superseded admin
// keeps its role but loses the mode.
type Session struct {
	SessionID  string
	Username   string
	Role       protocol.Role
	ClientType string
	AdminMode  protocol.Mode
	CanControl bool

	sender Sender
}

// Sender delivers a wire message to the client behind a session. Send
// must not block: the transport layer queues and a slow client is the
// transport's problem, not the coordinator's.
type Sender interface {
	Send(m protocol.Message) error
}

// Info is the session summary exposed over the management API. It
// deliberately omits the session ID, which is a bearer token.
type Info struct {
	Username    string          `json:"username"`
	Role        protocol.Role   `json:"role"`
	ClientType  string          `json:"client_type"`
	AdminMode   protocol.Mode   `json:"admin_mode,omitempty"`
	CanControl  bool            `json:"can_control"`
	Permissions map[string]bool `json:"permissions"`
}

func (s *Session) permissions() map[string]bool {
	return map[string]bool{
		"can_view":            true,
		"can_control":         s.CanControl,
		"can_change_settings": s.Role == protocol.RoleAdmin,
		"can_manage_users":    s.Role == protocol.RoleAdmin,
	}
}
