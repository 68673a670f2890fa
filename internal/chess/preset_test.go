package chess

import (
	"testing"
	"time"
)

func TestGetProfileAliases(t *testing.T) {
	cases := map[string]string{
		"":          "intermediate",
		"beginner":  "beginner",
		"LEVEL1":    "beginner",
		"hard":      "advanced",
		"master":    "expert",
		" expert ": "expert",
	}
	for in, want := range cases {
		p, err := GetProfile(in)
		if err != nil {
			t.Fatalf("GetProfile(%q): %v", in, err)
		}
		if p.Name != want {
			t.Fatalf("GetProfile(%q) = %s, want %s", in, p.Name, want)
		}
	}
	if _, err := GetProfile("grandmaster"); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestDefaultProfilesAreValid(t *testing.T) {
	for name, p := range DefaultProfiles {
		if err := ValidateProfile(p); err != nil {
			t.Fatalf("profile %s invalid: %v", name, err)
		}
	}
	names := ProfileNames()
	if len(names) != 4 || names[0] != "beginner" || names[3] != "expert" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestValidateProfileRejectsOutOfRange(t *testing.T) {
	if err := ValidateProfile(DifficultyProfile{Name: "x", Temperature: 1.5, Tier: TierBasic}); err == nil {
		t.Fatalf("expected temperature error")
	}
	if err := ValidateProfile(DifficultyProfile{Name: "x", Temperature: 0.5, Tier: "ultra"}); err == nil {
		t.Fatalf("expected tier error")
	}
}

func TestParseTimeControl(t *testing.T) {
	cases := map[string]time.Duration{
		"":       0,
		"none":   0,
		"blitz":  5 * time.Minute,
		"Bullet": time.Minute,
		"3":      3 * time.Minute,
		"90s":    90 * time.Second,
	}
	for in, want := range cases {
		tc, err := ParseTimeControl(in)
		if err != nil {
			t.Fatalf("ParseTimeControl(%q): %v", in, err)
		}
		if tc.Initial != want {
			t.Fatalf("ParseTimeControl(%q) = %v, want %v", in, tc.Initial, want)
		}
	}
	if _, err := ParseTimeControl("forever"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClockCharge(t *testing.T) {
	tc, _ := ParseTimeControl("bullet")
	clock := NewClock(tc)
	clock, flagged := clock.Charge(tc, White, 30*time.Second)
	if flagged || clock.Remaining(White) != 30*time.Second {
		t.Fatalf("unexpected clock: %+v flagged=%v", clock, flagged)
	}
	clock, flagged = clock.Charge(tc, White, 31*time.Second)
	if !flagged || clock.Remaining(White) != 0 {
		t.Fatalf("expected flag fall: %+v", clock)
	}
	if clock.Remaining(Black) != time.Minute {
		t.Fatalf("black clock touched: %+v", clock)
	}

	unlimited, _ := ParseTimeControl("unlimited")
	if _, flagged := NewClock(unlimited).Charge(unlimited, Black, time.Hour); flagged {
		t.Fatalf("unlimited clock must not flag")
	}
}

func TestPhaseOf(t *testing.T) {
	if got := PhaseOf(StartFEN); got != PhaseOpening {
		t.Fatalf("start: %s", got)
	}
	if got := PhaseOf("4k3/8/8/8/8/8/4P3/4K3 w - - 0 40"); got != PhaseEndgame {
		t.Fatalf("king and pawn: %s", got)
	}
	if got := PhaseOf("r1bq1rk1/pppp1ppp/2n2n2/2b1p3/2B1P3/2NP1N2/PPP2PPP/R1BQ1RK1 w - - 0 14"); got != PhaseMiddlegame {
		t.Fatalf("middlegame: %s", got)
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide("B"); err != nil || s != Black {
		t.Fatalf("ParseSide(B) = %s, %v", s, err)
	}
	if s, err := ParseSide("백"); err != nil || s != White {
		t.Fatalf("ParseSide(백) = %s, %v", s, err)
	}
	if _, err := ParseSide("red"); err == nil {
		t.Fatalf("expected error")
	}
	if White.Opponent() != Black || Black.Opponent() != White {
		t.Fatalf("opponent mismatch")
	}
}
