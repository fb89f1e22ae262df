package game

// WinOutcome 是胜负判定结果，返回 nil 表示游戏继续
type WinOutcome struct {
	Winner string
	Reason string
}

// ComputeWinner 根据当前存活名单判定胜负：
// 狼人清零则村民胜；狼人数量达到非狼存活数则狼人胜（多数控场）
// 每一次产生死亡的事件之后都必须调用，而不是只在夜晚结束时
func ComputeWinner(players map[string]*Player) *WinOutcome {
	alive, aliveWerewolves := 0, 0
	for _, p := range players {
		if !p.IsAlive {
			continue
		}
		alive++
		if IsWerewolfTeam(p.Role) {
			aliveWerewolves++
		}
	}

	if alive == 0 {
		return nil
	}

	if aliveWerewolves == 0 {
		return &WinOutcome{
			Winner: WINNER_VILLAGERS,
			Reason: "所有狼人已被消灭",
		}
	}

	if aliveWerewolves >= alive-aliveWerewolves {
		return &WinOutcome{
			Winner: WINNER_WEREWOLVES,
			Reason: "狼人已占据多数",
		}
	}

	return nil
}
