// Package device owns the controller-side coop state. A single State
// instance is created at startup and handed to whoever needs it; commands
// mutate it through Apply and telemetry snapshots read it through
// Snapshot. JSON field names follow the controller firmware.
package device

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/command"
)

// Sensor alarm thresholds.
const (
	tempLow  = 15.0
	tempHigh = 35.0
)

type CoopReading struct {
	ID          int     `json:"id"`
	Temperature float64 `json:"sicaklik"`
	Humidity    float64 `json:"nem"`
	Water       int     `json:"su"`
	Light       int     `json:"isik"`
	Fan         bool    `json:"fan"`
	Led         bool    `json:"led"`
	Alarm       bool    `json:"alarm"`
	Message     string  `json:"mesaj"`
}

// Telemetry is the periodic data document broadcast to every client.
type Telemetry struct {
	System string        `json:"sistem"`
	Time   int64         `json:"zaman"`
	Coops  []CoopReading `json:"kumesler"`
	Feed   float64       `json:"yem"`
	Pump   bool          `json:"pompa"`
	Auto   bool          `json:"auto"`
	Door   int           `json:"kapi"`
}

type State struct {
	mu    sync.Mutex
	rng   *rand.Rand
	coops []CoopReading
	feed  float64
	pump  bool
	led   bool
	auto  bool
	door  int
}

func NewState(coopCount int) *State {
	s := &State{
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		feed: 15.0,
	}
	for i := 1; i <= coopCount; i++ {
		s.coops = append(s.coops, CoopReading{
			ID:          i,
			Temperature: 25.0,
			Humidity:    55.0,
			Water:       700,
			Light:       500,
		})
	}
	return s
}

// Apply executes a structured action against the device state. Calls are
// serialized on the state mutex, which is the only arbitration between
// simultaneously authorized clients.
func (s *State) Apply(a command.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch a.Name {
	case command.ActionStatus:
		return nil

	case command.ActionSetAutoMode:
		if a.Value == nil {
			return fmt.Errorf("device: %s requires value", a.Name)
		}
		s.auto = *a.Value

	case command.ActionFanOn, command.ActionFanOff:
		if a.Coop == nil {
			return fmt.Errorf("device: %s requires kumes", a.Name)
		}
		idx := *a.Coop - 1
		if idx < 0 || idx >= len(s.coops) {
			return fmt.Errorf("device: no coop %d", *a.Coop)
		}
		s.coops[idx].Fan = a.Name == command.ActionFanOn

	case command.ActionLedOn:
		s.led = true
	case command.ActionLedOff:
		s.led = false

	case command.ActionPumpOn:
		s.pump = true
	case command.ActionPumpOff:
		s.pump = false

	case command.ActionFeed:
		if a.Amount == nil || *a.Amount <= 0 {
			return fmt.Errorf("device: %s requires a positive miktar", a.Name)
		}
		s.feed -= float64(*a.Amount) * 0.1
		if s.feed < 0 {
			s.feed = 0
		}

	case command.ActionDoor:
		if a.Degrees == nil || *a.Degrees < 0 || *a.Degrees > 180 {
			return fmt.Errorf("device: %s requires derece in 0..180", a.Name)
		}
		s.door = *a.Degrees

	default:
		return fmt.Errorf("device: unknown action %q", a.Name)
	}
	return nil
}

// Snapshot returns the current telemetry document, applying a small
// random sensor drift per call.
func (s *State) Snapshot() Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	coops := make([]CoopReading, len(s.coops))
	for i := range s.coops {
		c := &s.coops[i]
		c.Temperature = clamp(c.Temperature+s.rng.Float64()*0.6-0.3, 18, 33)
		c.Humidity = clamp(c.Humidity+s.rng.Float64()*2-1, 35, 75)
		c.Water = clampInt(c.Water+s.rng.Intn(11)-5, 0, 1000)
		c.Light = clampInt(c.Light+s.rng.Intn(21)-10, 400, 800)
		c.Led = s.led

		c.Alarm = c.Temperature < tempLow || c.Temperature > tempHigh
		if c.Alarm {
			c.Message = fmt.Sprintf("Sıcaklık limit dışı: %.1f°C", c.Temperature)
		} else {
			c.Message = ""
		}
		coops[i] = *c
	}

	return Telemetry{
		System: "kumes",
		Time:   time.Now().Unix(),
		Coops:  coops,
		Feed:   s.feed,
		Pump:   s.pump,
		Auto:   s.auto,
		Door:   s.door,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
