package game

// 夜晚动作字段名，同时也是 nightActions 里的 JSON 键
const (
	ACTION_WEREWOLF_TARGET    = "werewolfTarget"
	ACTION_BODYGUARD_PROTECT  = "bodyguardProtect"
	ACTION_SEER_INSPECT       = "seerInspect"
	ACTION_DETECTIVE_TARGET_A = "detectiveTargetA"
	ACTION_DETECTIVE_TARGET_B = "detectiveTargetB"
	ACTION_SILENCER_TARGET    = "silencerTarget"
)

// 每个角色在 main 子阶段允许提交的动作字段
// 女巫和丘比特有独立的子阶段，不走这张表
var nightActionWhitelist = map[string][]string{
	ROLE_WEREWOLF:  {ACTION_WEREWOLF_TARGET},
	ROLE_BODYGUARD: {ACTION_BODYGUARD_PROTECT},
	ROLE_SEER:      {ACTION_SEER_INSPECT},
	ROLE_DETECTIVE: {ACTION_DETECTIVE_TARGET_A, ACTION_DETECTIVE_TARGET_B},
	ROLE_SILENCER:  {ACTION_SILENCER_TARGET},
}

func allowedNightActions(role string) []string {
	return nightActionWhitelist[role]
}

func IsWerewolfTeam(role string) bool {
	return role == ROLE_WEREWOLF
}

func sameTeam(a, b string) bool {
	return IsWerewolfTeam(a) == IsWerewolfTeam(b)
}

// MainNightOutcome 是 main 子阶段（狼人/守卫/预言家/侦探/沉默者同时行动）的结算结果
type MainNightOutcome struct {
	PendingVictimID  string
	BodyguardSavedID string
	SeerResult       *SeerResult
	DetectiveResult  *DetectiveResult
}

// ResolveMainNight 结算 main 子阶段：
// 守卫保到狼人目标时击杀直接取消，预言家与侦探的查验立刻可解
func ResolveMainNight(players map[string]*Player, actions *NightActions) MainNightOutcome {
	var out MainNightOutcome

	if actions == nil {
		return out
	}

	if actions.WerewolfTarget != "" && actions.WerewolfTarget != actions.BodyguardProtect {
		out.PendingVictimID = actions.WerewolfTarget
	}
	out.BodyguardSavedID = actions.BodyguardProtect

	if target, ok := players[actions.SeerInspect]; ok {
		role := target.Role
		if role == "" {
			role = ROLE_VILLAGER
		}
		out.SeerResult = &SeerResult{
			TargetID: target.ID,
			Role:     role,
		}
	}

	targetA, okA := players[actions.DetectiveTargetA]
	targetB, okB := players[actions.DetectiveTargetB]
	if okA && okB {
		out.DetectiveResult = &DetectiveResult{
			TargetIDs: [2]string{targetA.ID, targetB.ID},
			SameTeam:  sameTeam(targetA.Role, targetB.Role),
		}
	}

	return out
}

// ResolveNight 结算整晚：在 main 结果之上应用女巫的决定
// 解药取消当晚的待死者，毒药独立追加一个死亡；两瓶药整局各限用一次
func ResolveNight(players map[string]*Player, actions *NightActions, witchState WitchState, pendingVictimID string) NightResult {
	mainOut := ResolveMainNight(players, actions)

	result := NightResult{
		BodyguardSavedID: mainOut.BodyguardSavedID,
		SeerResult:       mainOut.SeerResult,
		DetectiveResult:  mainOut.DetectiveResult,
	}

	victim := pendingVictimID
	if victim == "" {
		victim = mainOut.PendingVictimID
	}

	var (
		healRequested   bool
		poisonTargetID  string
		poisonRequested bool
	)
	if actions != nil {
		healRequested = actions.WitchHeal
		poisonTargetID = actions.WitchPoisonTarget
		poisonRequested = poisonTargetID != ""
	}

	canHeal := healRequested && !witchState.HealUsed && victim != ""
	canPoison := poisonRequested && !witchState.PoisonUsed

	killed := make([]string, 0, 2)

	if victim != "" && !canHeal {
		killed = append(killed, victim)
	}
	if canHeal {
		result.WitchSavedID = victim
	}
	if canPoison {
		if poisonTargetID != victim || canHeal {
			killed = append(killed, poisonTargetID)
		}
		result.WitchPoisonedID = poisonTargetID
	}

	if len(killed) > 0 {
		result.KilledIDs = killed
	}

	return result
}

// ApplyLoverDeaths 应用殉情规则：情侣中只要死了一个，另一个同批死亡
// 对任何产生死亡的事件（夜晚击杀、白天处决、猎人开枪）统一生效
func ApplyLoverDeaths(killed []string, lovers []string) []string {
	if len(lovers) != 2 {
		return killed
	}

	hasA, hasB := false, false
	for _, id := range killed {
		if id == lovers[0] {
			hasA = true
		}
		if id == lovers[1] {
			hasB = true
		}
	}

	if hasA && !hasB {
		return append(killed, lovers[1])
	}
	if hasB && !hasA {
		return append(killed, lovers[0])
	}

	return killed
}
