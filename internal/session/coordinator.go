// Package session holds the authoritative session registry and the
// control-arbitration rules: who is connected, which session is the
// current admin, and who may issue device commands right now.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/command"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

var (
	ErrBadCredentials   = errors.New("session: invalid credentials")
	ErrUnknownSession   = errors.New("session: unknown session")
	ErrNotPrivileged    = errors.New("session: only the admin holder may switch modes")
	ErrPermissionDenied = errors.New("session: control permission required")
)

// Credentials validates a login attempt. Implemented by auth.Store.
type Credentials interface {
	Validate(username, password string) (protocol.Role, error)
}

// Effector applies an accepted device action. Implemented by
// device.State.
type Effector interface {
	Apply(a command.Action) error
}

// Coordinator owns the session registry. Every operation runs under one
// mutex so that concurrent logins, mode switches and disconnects are
// linearized: the permission recomputation is a whole-registry invariant
// and must never observe a half-applied mutation. All registry changes
// complete before any resulting message is sent.
type Coordinator struct {
	mu             sync.Mutex
	creds          Credentials
	effector       Effector
	sessions       map[string]*Session
	adminSessionID string
}

func NewCoordinator(creds Credentials, effector Effector) *Coordinator {
	return &Coordinator{
		creds:    creds,
		effector: effector,
		sessions: make(map[string]*Session),
	}
}

// Authenticate validates credentials and, on success, registers a new
// session, displacing any previous admin holder when the new login is an
// admin. The caller's sender receives auth_success or auth_failed; other
// clients receive user_joined, and a displaced admin receives
// admin_override. A failed login mutates nothing.
func (c *Coordinator) Authenticate(username, password, clientType string, sender Sender) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	role, err := c.creds.Validate(username, password)
	if err != nil {
		sendQuiet(sender, protocol.AuthFailed{Message: "Kullanıcı adı veya şifre hatalı"})
		log.Printf("login rejected for %q (%s)", username, clientType)
		return Session{}, ErrBadCredentials
	}

	sess := &Session{
		SessionID:  "sess_" + uuid.NewString(),
		Username:   username,
		Role:       role,
		ClientType: clientType,
		sender:     sender,
	}

	if role == protocol.RoleAdmin {
		if old, ok := c.sessions[c.adminSessionID]; ok {
			sendQuiet(old.sender, protocol.AdminOverride{
				Message:        "Başka bir cihazdan admin girişi yapıldı",
				NewAdminClient: clientType,
			})
			old.AdminMode = ""
			log.Printf("admin %q superseded by new login from %q", old.Username, clientType)
		}
		c.adminSessionID = sess.SessionID
		sess.AdminMode = protocol.ModeActive
	}

	c.sessions[sess.SessionID] = sess
	c.recomputeLocked()

	reply := protocol.AuthSuccess{
		SessionID:   sess.SessionID,
		Username:    sess.Username,
		Role:        sess.Role,
		Permissions: sess.permissions(),
	}
	if sess.Role == protocol.RoleAdmin {
		reply.AdminMode = sess.AdminMode
	}
	sendQuiet(sender, reply)

	c.broadcastLocked(protocol.UserJoined{
		Username:   sess.Username,
		Role:       sess.Role,
		ClientType: sess.ClientType,
	}, sess.SessionID, "")

	log.Printf("%s logged in as %s (%s), can_control=%v", username, role, clientType, sess.CanControl)
	return *sess, nil
}

// ChangeMode switches the current admin holder between active and
// watching. Any other session, including a superseded admin, is rejected
// without side effects.
func (c *Coordinator) ChangeMode(sessionID string, mode protocol.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("session: invalid mode %q", mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if sess.Role != protocol.RoleAdmin || sessionID != c.adminSessionID {
		return ErrNotPrivileged
	}

	sess.AdminMode = mode
	c.recomputeLocked()

	sendQuiet(sess.sender, protocol.ModeChanged{Mode: mode})

	if mode == protocol.ModeWatching {
		c.broadcastLocked(protocol.ControlAvailable{
			Message:   "Admin izleme moduna geçti. Artık kontrol edebilirsiniz!",
			AdminMode: mode,
		}, "", protocol.RoleAdmin)
	} else {
		c.broadcastLocked(protocol.ControlRevoked{
			Message:   "Admin kontrolü aldı. Sadece izleyebilirsiniz.",
			AdminMode: mode,
		}, "", protocol.RoleAdmin)
	}

	log.Printf("admin %q switched mode to %s", sess.Username, mode)
	return nil
}

// SubmitCommand re-validates control permission for the session and, if
// allowed, normalizes and applies the command. The permission check here
// is the security boundary; whatever the client believed locally is
// irrelevant.
func (c *Coordinator) SubmitCommand(sessionID, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}

	if !sess.CanControl {
		denied := protocol.PermissionDenied{Message: "Bu işlem için kontrol yetkisi gerekli"}
		if admin, ok := c.sessions[c.adminSessionID]; ok {
			denied.AdminUsername = admin.Username
			denied.AdminMode = admin.AdminMode
		}
		sendQuiet(sess.sender, denied)
		log.Printf("command from %q rejected: no control permission", sess.Username)
		return ErrPermissionDenied
	}

	action, err := command.Parse(raw)
	if err != nil {
		sendQuiet(sess.sender, protocol.CommandFailed{Message: "Bilinmeyen komut formatı"})
		return err
	}
	if err := c.effector.Apply(action); err != nil {
		sendQuiet(sess.sender, protocol.CommandFailed{Message: err.Error()})
		return err
	}

	sendQuiet(sess.sender, protocol.CommandSent{Command: raw})
	log.Printf("command %q applied (by %s)", raw, sess.Username)
	return nil
}

// EndSession removes a session. When the current admin holder leaves,
// every user session is told control is open again.
func (c *Coordinator) EndSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[sessionID]
	if !ok {
		return
	}
	delete(c.sessions, sessionID)

	wasAdmin := sessionID == c.adminSessionID
	if wasAdmin {
		c.adminSessionID = ""
	}
	c.recomputeLocked()

	if wasAdmin {
		c.broadcastLocked(protocol.AdminLeft{
			Message: "Admin ayrıldı. Artık kontrol edebilirsiniz!",
		}, "", protocol.RoleAdmin)
	}

	log.Printf("%s (%s) left", sess.Username, sess.Role)
}

// Get returns a copy of the session, if it exists.
func (c *Coordinator) Get(sessionID string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Infos returns management summaries for all active sessions.
func (c *Coordinator) Infos() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Info, 0, len(c.sessions))
	for _, s := range c.sessions {
		info := Info{
			Username:    s.Username,
			Role:        s.Role,
			ClientType:  s.ClientType,
			CanControl:  s.CanControl,
			Permissions: s.permissions(),
		}
		if s.SessionID == c.adminSessionID {
			info.AdminMode = s.AdminMode
		}
		out = append(out, info)
	}
	return out
}

func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// recomputeLocked re-derives CanControl for every session. The admin
// role is an exclusive, voluntarily revocable lock: while the current
// holder is active no user session may act; the moment it watches or
// leaves, all user sessions are authorized at once. Callers hold c.mu.
func (c *Coordinator) recomputeLocked() {
	adminActive := false
	if admin, ok := c.sessions[c.adminSessionID]; ok {
		adminActive = admin.AdminMode == protocol.ModeActive
	}

	for _, s := range c.sessions {
		if s.Role == protocol.RoleAdmin {
			s.CanControl = s.AdminMode == protocol.ModeActive
		} else {
			s.CanControl = !adminActive
		}
	}
}

// broadcastLocked sends m to every session except excludeID and any
// session whose role is excludeRole. Callers hold c.mu.
func (c *Coordinator) broadcastLocked(m protocol.Message, excludeID string, excludeRole protocol.Role) {
	for id, s := range c.sessions {
		if id == excludeID || (excludeRole != "" && s.Role == excludeRole) {
			continue
		}
		sendQuiet(s.sender, m)
	}
}

func sendQuiet(s Sender, m protocol.Message) {
	if s == nil {
		return
	}
	if err := s.Send(m); err != nil {
		log.Printf("send %s: %v", m.MessageType(), err)
	}
}
