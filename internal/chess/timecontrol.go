package chess

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeControl is a per-side thinking budget. A zero Initial means unlimited.
type TimeControl struct {
	Name    string        `json:"name"`
	Initial time.Duration `json:"initial"`
}

func (tc TimeControl) Unlimited() bool { return tc.Initial <= 0 }

var timeControls = map[string]TimeControl{
	"unlimited": {Name: "unlimited"},
	"casual":    {Name: "casual", Initial: 15 * time.Minute},
	"rapid":     {Name: "rapid", Initial: 10 * time.Minute},
	"blitz":     {Name: "blitz", Initial: 5 * time.Minute},
	"bullet":    {Name: "bullet", Initial: time.Minute},
}

// ParseTimeControl accepts a preset name, "none", or a plain minute count such as "3".
func ParseTimeControl(raw string) (TimeControl, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch key {
	case "", "none", "off", "무제한":
		return timeControls["unlimited"], nil
	}
	if tc, ok := timeControls[key]; ok {
		return tc, nil
	}
	if d, err := time.ParseDuration(key); err == nil && d > 0 {
		return TimeControl{Name: d.String(), Initial: d}, nil
	}
	if minutes, err := strconv.Atoi(key); err == nil && minutes > 0 {
		d := time.Duration(minutes) * time.Minute
		return TimeControl{Name: fmt.Sprintf("%dm", minutes), Initial: d}, nil
	}
	return TimeControl{}, fmt.Errorf("unknown time control: %s", raw)
}

// Clock tracks the remaining time of both sides.
type Clock struct {
	White time.Duration `json:"white"`
	Black time.Duration `json:"black"`
}

func NewClock(tc TimeControl) Clock {
	return Clock{White: tc.Initial, Black: tc.Initial}
}

// Charge subtracts elapsed from side and reports whether its flag fell.
// Unlimited controls never flag.
func (c Clock) Charge(tc TimeControl, side Side, elapsed time.Duration) (Clock, bool) {
	if tc.Unlimited() {
		return c, false
	}
	next := c
	switch side {
	case White:
		next.White -= elapsed
		if next.White <= 0 {
			next.White = 0
			return next, true
		}
	case Black:
		next.Black -= elapsed
		if next.Black <= 0 {
			next.Black = 0
			return next, true
		}
	}
	return next, false
}

func (c Clock) Remaining(side Side) time.Duration {
	if side == Black {
		return c.Black
	}
	return c.White
}
