// Package client mirrors the coordinator's decisions on the client side.
// The proxy interprets inbound protocol messages, keeps the local
// permission flags and gates outbound requests. Its checks are a UX
// shortcut only: the daemon re-validates every request, because this
// mirror can be stale between a server-side change and its delivery.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/bridge"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

var (
	ErrNotAdmin    = errors.New("client: only an admin may switch modes")
	ErrNoControl   = errors.New("client: control permission required")
	ErrNotLoggedIn = errors.New("client: not logged in")
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// State is a copy of the proxy's current view.
type State struct {
	SessionID   string
	Username    string
	Role        protocol.Role
	AdminMode   protocol.Mode
	CanControl  bool
	Permissions map[string]bool
}

type Proxy struct {
	bridge     *bridge.Bridge
	clientType string

	mu          sync.Mutex
	sessionID   string
	username    string
	role        protocol.Role
	adminMode   protocol.Mode
	canControl  bool
	permissions map[string]bool

	onChange    []func()
	onNotice    []func(level NoticeLevel, message string)
	onTelemetry []func(raw json.RawMessage)
	onStatus    []func(st protocol.SystemStatus)
	onCommand   []func(ok bool, message string)
}

func NewProxy(b *bridge.Bridge, clientType string) *Proxy {
	p := &Proxy{bridge: b, clientType: clientType}
	b.OnMessage(p.HandleMessage)
	return p
}

// OnChange registers the uniform "state changed, re-read me" signal.
// Dependents recompute whatever they derive from State rather than
// tracking individual fields.
func (p *Proxy) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

func (p *Proxy) OnNotice(fn func(level NoticeLevel, message string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNotice = append(p.onNotice, fn)
}

// OnTelemetry registers a listener for untyped data documents (the
// periodic coop readings).
func (p *Proxy) OnTelemetry(fn func(raw json.RawMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTelemetry = append(p.onTelemetry, fn)
}

func (p *Proxy) OnSystemStatus(fn func(st protocol.SystemStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatus = append(p.onStatus, fn)
}

// OnCommandResult registers a listener for the outcome of submitted
// commands: command_sent, command_failed, or a permission denial.
// Unrelated notices never reach it.
func (p *Proxy) OnCommandResult(fn func(ok bool, message string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCommand = append(p.onCommand, fn)
}

// Login sends the authentication request. It does not block; the result
// arrives as auth_success or auth_failed through HandleMessage.
func (p *Proxy) Login(username, password string) error {
	return p.bridge.SendMessage(protocol.Auth{
		Username:   username,
		Password:   password,
		ClientType: p.clientType,
	})
}

// SwitchMode requests active/watching. Rejected locally for non-admins;
// the daemon enforces the real rule either way.
func (p *Proxy) SwitchMode(mode protocol.Mode) error {
	p.mu.Lock()
	role, sessionID := p.role, p.sessionID
	p.mu.Unlock()

	if sessionID == "" {
		return ErrNotLoggedIn
	}
	if role != protocol.RoleAdmin {
		return ErrNotAdmin
	}
	return p.bridge.SendMessage(protocol.ChangeMode{SessionID: sessionID, Mode: mode})
}

// SendCommand submits a device command. Rejected locally when the mirror
// says control is unavailable.
func (p *Proxy) SendCommand(command string) error {
	p.mu.Lock()
	canControl, sessionID := p.canControl, p.sessionID
	p.mu.Unlock()

	if sessionID == "" {
		return ErrNotLoggedIn
	}
	if !canControl {
		return ErrNoControl
	}
	return p.bridge.SendMessage(protocol.Command{SessionID: sessionID, Command: command})
}

// Logout clears all local state and disconnects the bridge.
func (p *Proxy) Logout() {
	p.mu.Lock()
	p.sessionID = ""
	p.username = ""
	p.role = ""
	p.adminMode = ""
	p.canControl = false
	p.permissions = nil
	p.mu.Unlock()

	p.notifyChange()
	p.bridge.Disconnect()
}

func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	perms := make(map[string]bool, len(p.permissions))
	for k, v := range p.permissions {
		perms[k] = v
	}
	return State{
		SessionID:   p.sessionID,
		Username:    p.username,
		Role:        p.role,
		AdminMode:   p.adminMode,
		CanControl:  p.canControl,
		Permissions: perms,
	}
}

// HandleMessage dispatches one inbound frame. Registered on the bridge;
// also callable directly in tests.
func (p *Proxy) HandleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if errors.Is(err, protocol.ErrNoType) {
		p.emitTelemetry(data)
		return
	}
	if err != nil {
		// Unknown or malformed typed message; nothing to update.
		return
	}

	switch m := msg.(type) {
	case protocol.AuthRequired:
		p.notify(NoticeInfo, m.Message)

	case protocol.AuthSuccess:
		p.mu.Lock()
		p.sessionID = m.SessionID
		p.username = m.Username
		p.role = m.Role
		p.permissions = m.Permissions
		p.canControl = m.Permissions["can_control"]
		if m.Role == protocol.RoleAdmin {
			p.adminMode = m.AdminMode
			if p.adminMode == "" {
				p.adminMode = protocol.ModeActive
			}
		}
		p.mu.Unlock()
		p.notifyChange()
		p.notify(NoticeSuccess, fmt.Sprintf("Giriş başarılı: %s (%s)", m.Username, m.Role))

	case protocol.AuthFailed:
		p.notify(NoticeError, m.Message)

	case protocol.AdminOverride:
		p.mu.Lock()
		p.role = protocol.RoleUser
		p.adminMode = ""
		p.canControl = false
		p.mu.Unlock()
		p.notifyChange()
		p.notify(NoticeWarning, m.Message)

	case protocol.ModeChanged:
		p.mu.Lock()
		p.adminMode = m.Mode
		p.canControl = m.Mode == protocol.ModeActive
		p.mu.Unlock()
		p.notifyChange()
		if m.Mode == protocol.ModeActive {
			p.notify(NoticeSuccess, "Aktif moda geçtiniz. Tam kontrol!")
		} else {
			p.notify(NoticeInfo, "İzleme moduna geçtiniz. Kullanıcılar kontrol edebilir.")
		}

	case protocol.ControlAvailable:
		p.mu.Lock()
		p.canControl = true
		p.mu.Unlock()
		p.notifyChange()
		p.notify(NoticeSuccess, m.Message)

	case protocol.ControlRevoked:
		p.mu.Lock()
		p.canControl = false
		p.mu.Unlock()
		p.notifyChange()
		p.notify(NoticeWarning, m.Message)

	case protocol.AdminLeft:
		p.mu.Lock()
		changed := p.role == protocol.RoleUser
		if changed {
			p.canControl = true
		}
		p.mu.Unlock()
		if changed {
			p.notifyChange()
			p.notify(NoticeSuccess, m.Message)
		}

	case protocol.PermissionDenied:
		text := m.Message
		if m.AdminUsername != "" {
			text = fmt.Sprintf("%s (aktif admin: %s, mod: %s)", m.Message, m.AdminUsername, m.AdminMode)
		}
		p.notify(NoticeError, text)
		p.emitCommandResult(false, text)

	case protocol.UserJoined:
		p.notify(NoticeInfo, fmt.Sprintf("%s katıldı (%s, %s)", m.Username, m.Role, m.ClientType))

	case protocol.CommandSent:
		p.notify(NoticeInfo, fmt.Sprintf("Komut gönderildi: %s", m.Command))
		p.emitCommandResult(true, m.Command)

	case protocol.CommandFailed:
		p.notify(NoticeError, m.Message)
		p.emitCommandResult(false, m.Message)

	case protocol.SystemStatus:
		p.emitStatus(m)
	}
}

func (p *Proxy) notifyChange() {
	p.mu.Lock()
	listeners := p.onChange
	p.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (p *Proxy) notify(level NoticeLevel, message string) {
	p.mu.Lock()
	listeners := p.onNotice
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(level, message)
	}
}

func (p *Proxy) emitTelemetry(raw json.RawMessage) {
	p.mu.Lock()
	listeners := p.onTelemetry
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(raw)
	}
}

func (p *Proxy) emitCommandResult(ok bool, message string) {
	p.mu.Lock()
	listeners := p.onCommand
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(ok, message)
	}
}

func (p *Proxy) emitStatus(st protocol.SystemStatus) {
	p.mu.Lock()
	listeners := p.onStatus
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}
