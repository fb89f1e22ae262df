package game

import (
	"testing"
)

func nightPlayers() map[string]*Player {
	return map[string]*Player{
		"w1": {ID: "w1", Role: ROLE_WEREWOLF, IsAlive: true},
		"v1": {ID: "v1", Role: ROLE_VILLAGER, IsAlive: true},
		"v2": {ID: "v2", Role: ROLE_VILLAGER, IsAlive: true},
		"g1": {ID: "g1", Role: ROLE_BODYGUARD, IsAlive: true},
		"s1": {ID: "s1", Role: ROLE_SEER, IsAlive: true},
	}
}

func TestResolveMainNight_BodyguardCancelsKill(t *testing.T) {
	actions := &NightActions{
		WerewolfTarget:   "v1",
		BodyguardProtect: "v1",
	}

	out := ResolveMainNight(nightPlayers(), actions)
	if out.PendingVictimID != "" {
		t.Fatalf("protected target should not be pending victim, got %q", out.PendingVictimID)
	}
}

func TestResolveMainNight_SeerInspect(t *testing.T) {
	actions := &NightActions{SeerInspect: "w1"}

	out := ResolveMainNight(nightPlayers(), actions)
	if out.SeerResult == nil {
		t.Fatalf("seer inspect should produce a result")
	}
	if out.SeerResult.TargetID != "w1" || out.SeerResult.Role != ROLE_WEREWOLF {
		t.Fatalf("unexpected seer result: %+v", out.SeerResult)
	}
}

func TestResolveMainNight_DetectiveCompare(t *testing.T) {
	actions := &NightActions{
		DetectiveTargetA: "w1",
		DetectiveTargetB: "v1",
	}

	out := ResolveMainNight(nightPlayers(), actions)
	if out.DetectiveResult == nil {
		t.Fatalf("detective should produce a result with two targets")
	}
	if out.DetectiveResult.SameTeam {
		t.Fatalf("werewolf and villager are not on the same team")
	}

	// 只选了一个目标时不出结果
	out = ResolveMainNight(nightPlayers(), &NightActions{DetectiveTargetA: "w1"})
	if out.DetectiveResult != nil {
		t.Fatalf("single target should not produce a detective result")
	}
}

func TestResolveNight_WitchHeal(t *testing.T) {
	actions := &NightActions{
		WerewolfTarget: "v1",
		WitchHeal:      true,
	}

	result := ResolveNight(nightPlayers(), actions, WitchState{}, "v1")
	if len(result.KilledIDs) != 0 {
		t.Fatalf("healed victim should survive, killed=%v", result.KilledIDs)
	}
	if result.WitchSavedID != "v1" {
		t.Fatalf("heal should be recorded, got %q", result.WitchSavedID)
	}
}

func TestResolveNight_HealChargeAlreadyUsed(t *testing.T) {
	actions := &NightActions{
		WerewolfTarget: "v1",
		WitchHeal:      true,
	}

	result := ResolveNight(nightPlayers(), actions, WitchState{HealUsed: true}, "v1")
	if len(result.KilledIDs) != 1 || result.KilledIDs[0] != "v1" {
		t.Fatalf("used-up heal must not save the victim, killed=%v", result.KilledIDs)
	}
	if result.WitchSavedID != "" {
		t.Fatalf("no heal should be recorded when charge is spent")
	}
}

func TestResolveNight_PoisonAddsDeath(t *testing.T) {
	actions := &NightActions{
		WerewolfTarget:    "v1",
		WitchPoisonTarget: "v2",
	}

	result := ResolveNight(nightPlayers(), actions, WitchState{}, "v1")
	if len(result.KilledIDs) != 2 {
		t.Fatalf("kill + poison should yield two deaths, got %v", result.KilledIDs)
	}
	if result.WitchPoisonedID != "v2" {
		t.Fatalf("poison should be recorded, got %q", result.WitchPoisonedID)
	}
}

func TestResolveNight_PoisonSameAsVictimDedupes(t *testing.T) {
	actions := &NightActions{
		WerewolfTarget:    "v1",
		WitchPoisonTarget: "v1",
	}

	result := ResolveNight(nightPlayers(), actions, WitchState{}, "v1")
	if len(result.KilledIDs) != 1 {
		t.Fatalf("poisoning the victim should not double-count, got %v", result.KilledIDs)
	}
}

func TestApplyLoverDeaths(t *testing.T) {
	lovers := []string{"v1", "v2"}

	killed := ApplyLoverDeaths([]string{"v1"}, lovers)
	if len(killed) != 2 {
		t.Fatalf("lover should die together, got %v", killed)
	}

	killed = ApplyLoverDeaths([]string{"w1"}, lovers)
	if len(killed) != 1 {
		t.Fatalf("unrelated death should not touch the lovers, got %v", killed)
	}

	killed = ApplyLoverDeaths([]string{"v1", "v2"}, lovers)
	if len(killed) != 2 {
		t.Fatalf("both lovers already dead should stay two, got %v", killed)
	}
}
