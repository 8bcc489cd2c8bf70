package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/bridge"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/client"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/device"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

const (
	connectWait = 15 * time.Second
	replyWait   = 5 * time.Second
)

// dialSession connects to the daemon and logs in, returning once the
// session is established.
func dialSession() (*bridge.Bridge, *client.Proxy, error) {
	if username == "" || password == "" {
		return nil, nil, errors.New("--user and --password are required")
	}

	b := bridge.New(serverHost, serverPort, bridge.Options{})
	p := client.NewProxy(b, "kumesctl")

	p.OnNotice(func(level client.NoticeLevel, message string) {
		fmt.Printf("[%s] %s\n", level, message)
	})

	connected := make(chan struct{}, 1)
	b.OnConnectionChange(func(up bool) {
		if up {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	loggedIn := make(chan struct{}, 1)
	p.OnChange(func() {
		if p.State().SessionID != "" {
			select {
			case loggedIn <- struct{}{}:
			default:
			}
		}
	})

	b.Connect()
	select {
	case <-connected:
	case <-time.After(connectWait):
		b.Disconnect()
		return nil, nil, fmt.Errorf("no connection to %s:%d", serverHost, serverPort)
	}

	if err := p.Login(username, password); err != nil {
		b.Disconnect()
		return nil, nil, err
	}
	select {
	case <-loggedIn:
	case <-time.After(replyWait):
		b.Disconnect()
		return nil, nil, errors.New("login failed or timed out")
	}

	return b, p, nil
}

func runWatch() error {
	b, p, err := dialSession()
	if err != nil {
		return err
	}
	defer b.Disconnect()

	p.OnTelemetry(func(raw json.RawMessage) {
		var t device.Telemetry
		if json.Unmarshal(raw, &t) != nil || t.System == "" {
			return
		}
		parts := make([]string, 0, len(t.Coops))
		for _, c := range t.Coops {
			parts = append(parts, fmt.Sprintf("#%d %.1f°C %.0f%%", c.ID, c.Temperature, c.Humidity))
		}
		fmt.Printf("telemetry: %s | yem %.1f | pompa %v\n", strings.Join(parts, "  "), t.Feed, t.Pump)
	})
	p.OnSystemStatus(func(st protocol.SystemStatus) {
		fmt.Printf("host: cpu %.0f%% mem %.0f%% disk %.0f%%\n", st.CPUPercent, st.MemoryPercent, st.DiskPercent)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func runCommand(raw string) error {
	b, p, err := dialSession()
	if err != nil {
		return err
	}
	defer b.Disconnect()

	result := make(chan error, 1)
	p.OnCommandResult(func(ok bool, message string) {
		var res error
		if !ok {
			res = errors.New(message)
		}
		select {
		case result <- res:
		default:
		}
	})

	if err := p.SendCommand(raw); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-time.After(replyWait):
		return errors.New("no reply from daemon")
	}
}

func runMode(mode protocol.Mode) error {
	b, p, err := dialSession()
	if err != nil {
		return err
	}
	defer b.Disconnect()

	done := make(chan struct{}, 1)
	p.OnChange(func() {
		if p.State().AdminMode == mode {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	if err := p.SwitchMode(mode); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-time.After(replyWait):
		return errors.New("mode change not acknowledged")
	}
}

// runDirect talks to the controller endpoint itself, exercising the
// legacy command normalization on the way out.
func runDirect(raw string) error {
	b := bridge.New(serverHost, serverPort, bridge.Options{})

	connected := make(chan struct{}, 1)
	b.OnConnectionChange(func(up bool) {
		if up {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	b.Connect()
	defer b.Disconnect()

	select {
	case <-connected:
	case <-time.After(connectWait):
		return fmt.Errorf("no connection to %s:%d", serverHost, serverPort)
	}

	if err := b.SendCommand(raw); err != nil {
		return err
	}
	fmt.Println("command transmitted")
	return nil
}
