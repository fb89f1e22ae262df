package game

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"werewolf-be/internal/store"
)

// StageHandler 阶段处理器, 每个游戏阶段一个实现
type StageHandler interface {
	Stage() string

	OnEnter(ctx *GameContext)
	OnHandle(ctx *GameContext, wrapper RequestWrapper) error
	OnExit(ctx *GameContext)
}

var (
	errNotInRoom      = errors.New("玩家不在房间内")
	errAlreadyDead    = errors.New("死亡玩家无法行动")
	errUnsupportedReq = errors.New("当前阶段不支持该请求类型")
)

// ---------------------------------------------------------------------------
// 大厅阶段
// ---------------------------------------------------------------------------

type LobbyStageHandler struct{}

func NewLobbyStageHandler() *LobbyStageHandler { return &LobbyStageHandler{} }

func (h *LobbyStageHandler) Stage() string { return PHASE_LOBBY }

func (h *LobbyStageHandler) OnEnter(ctx *GameContext) {
	ctx.ClearTimeout()
}

func (h *LobbyStageHandler) OnExit(ctx *GameContext) {}

func (h *LobbyStageHandler) OnHandle(ctx *GameContext, wrapper RequestWrapper) error {
	if handled, err := handleCommonRequest(ctx, wrapper); handled {
		return err
	}

	switch wrapper.ReqType {
	case REQ_TOGGLE_READY:
		return h.onToggleReady(ctx, wrapper.SenderID)

	case REQ_UPDATE_NAME:
		req := TryUnwrap[UpdateNameRequest](wrapper, REQ_UPDATE_NAME)
		if req == nil {
			return errors.New("无效的改名请求")
		}
		return h.onUpdateName(ctx, wrapper.SenderID, req.Name)

	case REQ_SET_GAME_MODE:
		req := TryUnwrap[SetGameModeRequest](wrapper, REQ_SET_GAME_MODE)
		if req == nil {
			return errors.New("无效的模式设置请求")
		}
		return h.onSetGameMode(ctx, wrapper.SenderID, req.Mode)

	case REQ_SET_CUSTOM_ROLE:
		req := TryUnwrap[SetCustomRoleRequest](wrapper, REQ_SET_CUSTOM_ROLE)
		if req == nil {
			return errors.New("无效的板子配置请求")
		}
		return h.onSetCustomRole(ctx, wrapper.SenderID, req.Role, req.Count)

	case REQ_START_GAME:
		return h.onStartGame(ctx, wrapper.SenderID)

	case REQ_TIMEOUT, REQ_ADVANCE_PHASE:
		// 大厅没有计时器, 残留的超时消息直接丢弃
		return nil

	default:
		return errUnsupportedReq
	}
}

func (h *LobbyStageHandler) onToggleReady(ctx *GameContext, senderID string) error {
	player := ctx.GetPlayer(senderID)
	if player == nil {
		return errNotInRoom
	}

	return ctx.Apply(map[string]any{
		fmt.Sprintf("players.%s.isReady", senderID): !player.IsReady,
	})
}

func (h *LobbyStageHandler) onUpdateName(ctx *GameContext, senderID, name string) error {
	if ctx.GetPlayer(senderID) == nil {
		return errNotInRoom
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("昵称不能为空")
	}

	return ctx.Apply(map[string]any{
		fmt.Sprintf("players.%s.name", senderID): name,
	})
}

func (h *LobbyStageHandler) onSetGameMode(ctx *GameContext, senderID, mode string) error {
	if ctx.Room.HostID != senderID {
		return errors.New("只有房主可以修改游戏模式")
	}
	if mode != MODE_CLASSIC && mode != MODE_CUSTOM {
		return errors.New("未知的游戏模式")
	}

	return ctx.Apply(map[string]any{"gameMode": mode})
}

func (h *LobbyStageHandler) onSetCustomRole(ctx *GameContext, senderID, role string, count int) error {
	if ctx.Room.HostID != senderID {
		return errors.New("只有房主可以修改板子配置")
	}
	if !isKnownRole(role) {
		return errors.New("未知的角色")
	}

	if count < 0 {
		count = 0
	} else if count > 16 {
		count = 16
	}

	return ctx.Apply(map[string]any{
		fmt.Sprintf("customRoles.%s", role): count,
	})
}

func (h *LobbyStageHandler) onStartGame(ctx *GameContext, senderID string) error {
	room := ctx.Room
	if room.HostID != senderID {
		return errors.New("只有房主可以开始游戏")
	}

	if ctx.CountActive() < MIN_PLAYERS {
		return fmt.Errorf("至少需要 %d 名玩家才能开始", MIN_PLAYERS)
	}

	players := make([]*Player, 0, len(room.Players))
	for _, p := range sortedPlayers(room.Players) {
		if p.IsSpectator {
			continue
		}
		if !p.IsReady {
			return errors.New("还有玩家未准备")
		}
		players = append(players, p)
	}

	var (
		deck []string
		err  error
	)
	if room.GameMode == MODE_CUSTOM {
		deck, err = BuildCustomRoleDeck(len(players), room.CustomRoles)
		if err != nil {
			return err
		}
	} else {
		deck = BuildRoleDeck(len(players))
	}

	nightStep := NIGHT_STEP_MAIN
	for _, role := range deck {
		if role == ROLE_CUPID {
			nightStep = NIGHT_STEP_CUPID
			break
		}
	}

	patch := map[string]any{
		"status":                   PHASE_NIGHT,
		"dayCount":                 1,
		"nightStep":                nightStep,
		"phaseEndsAt":              nowMillis() + phaseDurations[PHASE_NIGHT].Milliseconds(),
		"witchState":               WitchState{},
		"votes":                    store.DeleteField,
		"finalVotes":               store.DeleteField,
		"finalAccusedId":           store.DeleteField,
		"finalAccusedVotes":        store.DeleteField,
		"nightActions":             store.DeleteField,
		"witchTurn":                store.DeleteField,
		"bodyguardLastProtectedId": store.DeleteField,
		"lovers":                   store.DeleteField,
		"silencedPlayerId":         store.DeleteField,
		"silencedDayCount":         store.DeleteField,
		"lastNight":                store.DeleteField,
		"lastEliminated":           store.DeleteField,
		"hunterPending":            store.DeleteField,
		"winner":                   store.DeleteField,
		"winReason":                store.DeleteField,
		"chat":                     store.DeleteField,
	}
	for i, p := range players {
		patch[fmt.Sprintf("players.%s.role", p.ID)] = deck[i]
		patch[fmt.Sprintf("players.%s.isAlive", p.ID)] = true
		patch[fmt.Sprintf("players.%s.isReady", p.ID)] = false
		patch[fmt.Sprintf("players.%s.isSpectator", p.ID)] = false
	}

	if err := ctx.Apply(patch); err != nil {
		return err
	}

	zap.L().Info("游戏开始",
		zap.String("room_code", ctx.Code),
		zap.Int("player_count", len(players)),
		zap.String("mode", room.GameMode))
	return nil
}

// ---------------------------------------------------------------------------
// 夜晚阶段
// ---------------------------------------------------------------------------

type NightStageHandler struct{}

func NewNightStageHandler() *NightStageHandler { return &NightStageHandler{} }

func (h *NightStageHandler) Stage() string { return PHASE_NIGHT }

func (h *NightStageHandler) OnEnter(ctx *GameContext) {
	ctx.ArmPhaseTimer()
}

func (h *NightStageHandler) OnExit(ctx *GameContext) {}

func (h *NightStageHandler) OnHandle(ctx *GameContext, wrapper RequestWrapper) error {
	if handled, err := handleCommonRequest(ctx, wrapper); handled {
		return err
	}

	switch wrapper.ReqType {
	case REQ_NIGHT_ACTION:
		req := TryUnwrap[NightActionRequest](wrapper, REQ_NIGHT_ACTION)
		if req == nil {
			return errors.New("无效的夜间行动请求")
		}
		return h.onNightAction(ctx, wrapper.SenderID, req.Actions)

	case REQ_WITCH_ACTION:
		req := TryUnwrap[WitchActionRequest](wrapper, REQ_WITCH_ACTION)
		if req == nil {
			return errors.New("无效的女巫行动请求")
		}
		return h.onWitchAction(ctx, wrapper.SenderID, req)

	case REQ_CUPID_ACTION:
		req := TryUnwrap[CupidActionRequest](wrapper, REQ_CUPID_ACTION)
		if req == nil {
			return errors.New("无效的丘比特行动请求")
		}
		return h.onCupidAction(ctx, wrapper.SenderID, req.TargetIDs)

	case REQ_TIMEOUT:
		req := TryUnwrap[TimeoutRequest](wrapper, REQ_TIMEOUT)
		if req == nil || ctx.StaleTimeout(req) {
			return nil
		}
		return h.advance(ctx)

	case REQ_ADVANCE_PHASE:
		if ctx.Room.HostID != wrapper.SenderID {
			return nil
		}
		if ctx.Room.HunterPending != "" {
			// 等待猎人开枪, 手动推进无效
			return nil
		}
		return h.advance(ctx)

	default:
		return errUnsupportedReq
	}
}

func (h *NightStageHandler) onNightAction(ctx *GameContext, senderID string, actions map[string]string) error {
	room := ctx.Room
	if room.NightStep != NIGHT_STEP_MAIN {
		return nil
	}

	player := ctx.GetPlayer(senderID)
	if player == nil {
		return errNotInRoom
	}
	if !player.IsAlive || player.IsSpectator {
		return errAlreadyDead
	}

	allowed := allowedNightActions(player.Role)
	if len(allowed) == 0 {
		return nil
	}

	patch := map[string]any{}
	for _, field := range allowed {
		target, ok := actions[field]
		if !ok || target == "" {
			continue
		}
		if ctx.GetPlayer(target) == nil {
			continue
		}
		// 守卫不能连守同一人, 禁言者不能对自己或死者用技能
		if field == ACTION_BODYGUARD_PROTECT && target == room.BodyguardLastProtectedID {
			continue
		}
		if field == ACTION_SILENCER_TARGET {
			if target == senderID {
				continue
			}
			if t := ctx.GetPlayer(target); t == nil || !t.IsAlive {
				continue
			}
		}
		patch[fmt.Sprintf("nightActions.%s", field)] = target
	}

	if len(patch) == 0 {
		return nil
	}
	return ctx.Apply(patch)
}

func (h *NightStageHandler) onWitchAction(ctx *GameContext, senderID string, req *WitchActionRequest) error {
	room := ctx.Room
	if room.NightStep != NIGHT_STEP_WITCH {
		return nil
	}

	player := ctx.GetPlayer(senderID)
	if player == nil || player.Role != ROLE_WITCH || !player.IsAlive {
		return nil
	}

	healUsed, poisonUsed := false, false
	if room.WitchState != nil {
		healUsed = room.WitchState.HealUsed
		poisonUsed = room.WitchState.PoisonUsed
	}

	patch := map[string]any{
		"nightActions.witchHeal":         store.DeleteField,
		"nightActions.witchPoisonTarget": store.DeleteField,
		"witchTurn.action":               "pass",
	}

	switch req.Action {
	case "heal":
		if healUsed {
			return errors.New("解药已经用过了")
		}
		if room.WitchTurn == nil || room.WitchTurn.PendingVictimID == "" {
			return nil
		}
		patch["nightActions.witchHeal"] = true
		patch["witchTurn.action"] = "heal"

	case "poison":
		if poisonUsed {
			return errors.New("毒药已经用过了")
		}
		target := ctx.GetPlayer(req.TargetID)
		if target == nil || !target.IsAlive {
			return errors.New("毒药目标无效")
		}
		patch["nightActions.witchPoisonTarget"] = req.TargetID
		patch["witchTurn.action"] = "poison"

	case "pass":
		// 改主意也允许, 清掉之前的选择

	default:
		return errors.New("未知的女巫行动")
	}

	return ctx.Apply(patch)
}

func (h *NightStageHandler) onCupidAction(ctx *GameContext, senderID string, targetIDs []string) error {
	room := ctx.Room
	if room.NightStep != NIGHT_STEP_CUPID {
		return nil
	}

	player := ctx.GetPlayer(senderID)
	if player == nil || player.Role != ROLE_CUPID || !player.IsAlive {
		return nil
	}

	if len(targetIDs) < 1 || len(targetIDs) > 2 {
		return errors.New("丘比特需要选择一到两名玩家")
	}
	if len(targetIDs) == 2 && targetIDs[0] == targetIDs[1] {
		return errors.New("不能重复选择同一名玩家")
	}
	for _, id := range targetIDs {
		if ctx.GetPlayer(id) == nil {
			return errors.New("连线目标不存在")
		}
	}

	return ctx.Apply(map[string]any{
		"nightActions.cupidLoverIds": targetIDs,
	})
}

func (h *NightStageHandler) advance(ctx *GameContext) error {
	room := ctx.Room

	if room.HunterPending != "" {
		// 超时仍未开枪视为放弃
		return resolveHunterShot(ctx, "")
	}

	switch room.NightStep {
	case NIGHT_STEP_CUPID:
		return h.advanceCupid(ctx)
	case NIGHT_STEP_WITCH:
		pendingVictimID := ""
		if room.WitchTurn != nil {
			pendingVictimID = room.WitchTurn.PendingVictimID
		}
		return finalizeNight(ctx, pendingVictimID)
	default:
		return h.advanceMain(ctx)
	}
}

func (h *NightStageHandler) advanceCupid(ctx *GameContext) error {
	room := ctx.Room

	var lovers []string
	if room.NightActions != nil {
		lovers = room.NightActions.CupidLoverIDs
	}
	if len(lovers) != 2 {
		// 丘比特还没连满两人, 重置计时继续等
		if err := ctx.Apply(map[string]any{
			"phaseEndsAt": nowMillis() + phaseDurations[PHASE_NIGHT].Milliseconds(),
		}); err != nil {
			return err
		}
		ctx.ArmPhaseTimer()
		return nil
	}

	if err := ctx.Apply(map[string]any{
		"lovers":       lovers,
		"nightStep":    NIGHT_STEP_MAIN,
		"nightActions": store.DeleteField,
		"phaseEndsAt":  nowMillis() + phaseDurations[PHASE_NIGHT].Milliseconds(),
	}); err != nil {
		return err
	}
	ctx.ArmPhaseTimer()
	return nil
}

func (h *NightStageHandler) advanceMain(ctx *GameContext) error {
	room := ctx.Room

	outcome := ResolveMainNight(room.Players, room.NightActions)

	if witch := livingWitch(room); witch != nil && witchHasCharge(room) {
		if err := ctx.Apply(map[string]any{
			"nightStep": NIGHT_STEP_WITCH,
			"witchTurn": WitchTurn{
				PendingVictimID: outcome.PendingVictimID,
				Action:          "pass",
			},
			"phaseEndsAt": nowMillis() + phaseDurations[PHASE_NIGHT].Milliseconds(),
		}); err != nil {
			return err
		}
		ctx.ArmPhaseTimer()
		return nil
	}

	return finalizeNight(ctx, outcome.PendingVictimID)
}

// finalizeNight 结算整个夜晚: 狼刀/守护/女巫/情侣殉情, 然后进入白天或结算
func finalizeNight(ctx *GameContext, pendingVictimID string) error {
	room := ctx.Room

	witchState := WitchState{}
	if room.WitchState != nil {
		witchState = *room.WitchState
	}

	result := ResolveNight(room.Players, room.NightActions, witchState, pendingVictimID)
	result.KilledIDs = ApplyLoverDeaths(result.KilledIDs, room.Lovers)

	patch := map[string]any{
		"status":       PHASE_DAY,
		"phaseEndsAt":  nowMillis() + phaseDurations[PHASE_DAY].Milliseconds(),
		"votes":        store.DeleteField,
		"finalVotes":   store.DeleteField,
		"nightStep":    store.DeleteField,
		"nightActions": store.DeleteField,
		"witchTurn":    store.DeleteField,
		"lastNight":    result,
	}
	for _, id := range result.KilledIDs {
		patch[fmt.Sprintf("players.%s.isAlive", id)] = false
	}

	// 女巫的药用过即扣, 不回退
	if result.WitchSavedID != "" {
		patch["witchState.healUsed"] = true
	}
	if result.WitchPoisonedID != "" {
		patch["witchState.poisonUsed"] = true
	}

	protectedID, silencedID := "", ""
	if room.NightActions != nil {
		protectedID = room.NightActions.BodyguardProtect
		silencedID = room.NightActions.SilencerTarget
	}
	if protectedID != "" {
		patch["bodyguardLastProtectedId"] = protectedID
	} else {
		patch["bodyguardLastProtectedId"] = store.DeleteField
	}
	if silencedID != "" {
		patch["silencedPlayerId"] = silencedID
		patch["silencedDayCount"] = room.DayCount
	}

	hunterID := hunterAmong(room.Players, result.KilledIDs)
	if hunterID != "" {
		patch["hunterPending"] = hunterID
		patch["phaseEndsAt"] = nowMillis() + hunterWindow.Milliseconds()
	} else if win := winnerAfterDeaths(room.Players, result.KilledIDs); win != nil {
		patch["status"] = PHASE_RESULTS
		patch["winner"] = win.Winner
		patch["winReason"] = win.Reason
		patch["phaseEndsAt"] = store.DeleteField
	}

	return ctx.Apply(patch)
}

// ---------------------------------------------------------------------------
// 白天阶段
// ---------------------------------------------------------------------------

type DayStageHandler struct{}

func NewDayStageHandler() *DayStageHandler { return &DayStageHandler{} }

func (h *DayStageHandler) Stage() string { return PHASE_DAY }

func (h *DayStageHandler) OnEnter(ctx *GameContext) {
	ctx.ArmPhaseTimer()
}

func (h *DayStageHandler) OnExit(ctx *GameContext) {}

func (h *DayStageHandler) OnHandle(ctx *GameContext, wrapper RequestWrapper) error {
	if handled, err := handleCommonRequest(ctx, wrapper); handled {
		return err
	}

	switch wrapper.ReqType {
	case REQ_TIMEOUT:
		req := TryUnwrap[TimeoutRequest](wrapper, REQ_TIMEOUT)
		if req == nil || ctx.StaleTimeout(req) {
			return nil
		}
		if ctx.Room.HunterPending != "" {
			return resolveHunterShot(ctx, "")
		}
		return h.advance(ctx)

	case REQ_ADVANCE_PHASE:
		if ctx.Room.HostID != wrapper.SenderID || ctx.Room.HunterPending != "" {
			return nil
		}
		return h.advance(ctx)

	default:
		return errUnsupportedReq
	}
}

func (h *DayStageHandler) advance(ctx *GameContext) error {
	room := ctx.Room

	patch := map[string]any{
		"status":      PHASE_VOTING,
		"phaseEndsAt": nowMillis() + phaseDurations[PHASE_VOTING].Milliseconds(),
		"votes":       store.DeleteField,
		"finalVotes":  store.DeleteField,
	}
	// 禁言只管当天, 离开白天时解除
	if room.SilencedPlayerID != "" && room.SilencedDayCount == room.DayCount {
		patch["silencedPlayerId"] = store.DeleteField
		patch["silencedDayCount"] = store.DeleteField
	}

	return ctx.Apply(patch)
}

// ---------------------------------------------------------------------------
// 投票阶段
// ---------------------------------------------------------------------------

type VotingStageHandler struct{}

func NewVotingStageHandler() *VotingStageHandler { return &VotingStageHandler{} }

func (h *VotingStageHandler) Stage() string { return PHASE_VOTING }

func (h *VotingStageHandler) OnEnter(ctx *GameContext) {
	ctx.ArmPhaseTimer()
}

func (h *VotingStageHandler) OnExit(ctx *GameContext) {}

func (h *VotingStageHandler) OnHandle(ctx *GameContext, wrapper RequestWrapper) error {
	if handled, err := handleCommonRequest(ctx, wrapper); handled {
		return err
	}

	switch wrapper.ReqType {
	case REQ_VOTE:
		req := TryUnwrap[VoteRequest](wrapper, REQ_VOTE)
		if req == nil {
			return errors.New("无效的投票请求")
		}
		return h.onVote(ctx, wrapper.SenderID, req.TargetID)

	case REQ_TIMEOUT:
		req := TryUnwrap[TimeoutRequest](wrapper, REQ_TIMEOUT)
		if req == nil || ctx.StaleTimeout(req) {
			return nil
		}
		return h.advance(ctx)

	case REQ_ADVANCE_PHASE:
		if ctx.Room.HostID != wrapper.SenderID {
			return nil
		}
		return h.advance(ctx)

	default:
		return errUnsupportedReq
	}
}

func (h *VotingStageHandler) onVote(ctx *GameContext, senderID, targetID string) error {
	player := ctx.GetPlayer(senderID)
	if player == nil {
		return errNotInRoom
	}
	if !player.IsAlive || player.IsSpectator {
		return errAlreadyDead
	}

	if targetID != VOTE_SKIP {
		target := ctx.GetPlayer(targetID)
		if target == nil || !target.IsAlive {
			return errors.New("投票目标无效")
		}
	}

	// 允许改票, 同键覆盖
	return ctx.Apply(map[string]any{
		fmt.Sprintf("votes.%s", senderID): targetID,
	})
}

func (h *VotingStageHandler) advance(ctx *GameContext) error {
	room := ctx.Room

	outcome := ComputeVoteOutcome(room.Votes)
	if outcome != nil && !outcome.IsTie {
		return ctx.Apply(map[string]any{
			"status":            PHASE_FINAL,
			"phaseEndsAt":       nowMillis() + phaseDurations[PHASE_FINAL].Milliseconds(),
			"finalAccusedId":    outcome.TargetID,
			"finalAccusedVotes": outcome.Votes,
			"votes":             store.DeleteField,
			"finalVotes":        store.DeleteField,
		})
	}

	// 平票或无人投票, 直接入夜
	return ctx.Apply(nextNightPatch(room))
}

// ---------------------------------------------------------------------------
// 辩护阶段
// ---------------------------------------------------------------------------

type FinalStageHandler struct{}

func NewFinalStageHandler() *FinalStageHandler { return &FinalStageHandler{} }

func (h *FinalStageHandler) Stage() string { return PHASE_FINAL }

func (h *FinalStageHandler) OnEnter(ctx *GameContext) {
	ctx.ArmPhaseTimer()
}

func (h *FinalStageHandler) OnExit(ctx *GameContext) {}

func (h *FinalStageHandler) OnHandle(ctx *GameContext, wrapper RequestWrapper) error {
	if handled, err := handleCommonRequest(ctx, wrapper); handled {
		return err
	}

	switch wrapper.ReqType {
	case REQ_FINAL_VOTE:
		req := TryUnwrap[FinalVoteRequest](wrapper, REQ_FINAL_VOTE)
		if req == nil {
			return errors.New("无效的终审投票请求")
		}
		return h.onFinalVote(ctx, wrapper.SenderID, req.Vote)

	case REQ_TIMEOUT:
		req := TryUnwrap[TimeoutRequest](wrapper, REQ_TIMEOUT)
		if req == nil || ctx.StaleTimeout(req) {
			return nil
		}
		return h.resolve(ctx)

	case REQ_ADVANCE_PHASE:
		if ctx.Room.HostID != wrapper.SenderID {
			return nil
		}
		return h.resolve(ctx)

	default:
		return errUnsupportedReq
	}
}

func (h *FinalStageHandler) onFinalVote(ctx *GameContext, senderID, vote string) error {
	player := ctx.GetPlayer(senderID)
	if player == nil {
		return errNotInRoom
	}
	if !player.IsAlive || player.IsSpectator {
		return errAlreadyDead
	}
	if senderID == ctx.Room.FinalAccusedID {
		return errors.New("被审判者不能参与投票")
	}
	if vote != FINAL_VOTE_SAVE && vote != FINAL_VOTE_KILL {
		return errors.New("无效的投票选项")
	}

	return ctx.Apply(map[string]any{
		fmt.Sprintf("finalVotes.%s", senderID): vote,
	})
}

func (h *FinalStageHandler) resolve(ctx *GameContext) error {
	room := ctx.Room
	accusedID := room.FinalAccusedID

	patch := nextNightPatch(room)

	if accusedID == "" || !ResolveFinalPlea(room.FinalVotes) {
		patch["lastEliminated"] = []string{}
		return ctx.Apply(patch)
	}

	killed := ApplyLoverDeaths([]string{accusedID}, room.Lovers)
	for _, id := range killed {
		patch[fmt.Sprintf("players.%s.isAlive", id)] = false
	}
	patch["lastEliminated"] = killed

	// 白痴被投出直接获胜, 不再走后续结算
	if accused := ctx.GetPlayer(accusedID); accused != nil && accused.Role == ROLE_FOOL {
		patch["status"] = PHASE_RESULTS
		patch["winner"] = WINNER_FOOL
		patch["winReason"] = "白痴被公投出局"
		patch["phaseEndsAt"] = store.DeleteField
		delete(patch, "dayCount")
		delete(patch, "nightStep")
		return ctx.Apply(patch)
	}

	hunterID := hunterAmong(room.Players, killed)
	if hunterID != "" {
		patch["hunterPending"] = hunterID
		patch["phaseEndsAt"] = nowMillis() + hunterWindow.Milliseconds()
	} else if win := winnerAfterDeaths(room.Players, killed); win != nil {
		patch["status"] = PHASE_RESULTS
		patch["winner"] = win.Winner
		patch["winReason"] = win.Reason
		patch["phaseEndsAt"] = store.DeleteField
		delete(patch, "dayCount")
		delete(patch, "nightStep")
	}

	return ctx.Apply(patch)
}

// ---------------------------------------------------------------------------
// 结算阶段
// ---------------------------------------------------------------------------

type ResultsStageHandler struct{}

func NewResultsStageHandler() *ResultsStageHandler { return &ResultsStageHandler{} }

func (h *ResultsStageHandler) Stage() string { return PHASE_RESULTS }

func (h *ResultsStageHandler) OnEnter(ctx *GameContext) {
	ctx.ClearTimeout()

	ctx.BroadcastResp(WrapResponse(RESP_GAME_RESULT, GameResultResponse{
		Winner:    ctx.Room.Winner,
		WinReason: ctx.Room.WinReason,
	}))
}

func (h *ResultsStageHandler) OnExit(ctx *GameContext) {}

func (h *ResultsStageHandler) OnHandle(ctx *GameContext, wrapper RequestWrapper) error {
	if handled, err := handleCommonRequest(ctx, wrapper); handled {
		return err
	}

	switch wrapper.ReqType {
	case REQ_RESET_LOBBY:
		return h.onResetLobby(ctx, wrapper.SenderID)

	case REQ_TIMEOUT, REQ_ADVANCE_PHASE:
		return nil

	default:
		return errUnsupportedReq
	}
}

func (h *ResultsStageHandler) onResetLobby(ctx *GameContext, senderID string) error {
	room := ctx.Room
	if room.HostID != senderID {
		return errors.New("只有房主可以重开")
	}

	patch := map[string]any{
		"status":                   PHASE_LOBBY,
		"dayCount":                 0,
		"phaseEndsAt":              store.DeleteField,
		"nightStep":                store.DeleteField,
		"votes":                    store.DeleteField,
		"finalVotes":               store.DeleteField,
		"finalAccusedId":           store.DeleteField,
		"finalAccusedVotes":        store.DeleteField,
		"nightActions":             store.DeleteField,
		"witchState":               store.DeleteField,
		"witchTurn":                store.DeleteField,
		"bodyguardLastProtectedId": store.DeleteField,
		"lovers":                   store.DeleteField,
		"silencedPlayerId":         store.DeleteField,
		"silencedDayCount":         store.DeleteField,
		"lastNight":                store.DeleteField,
		"lastEliminated":           store.DeleteField,
		"hunterPending":            store.DeleteField,
		"winner":                   store.DeleteField,
		"winReason":                store.DeleteField,
	}
	for id := range room.Players {
		patch[fmt.Sprintf("players.%s.isReady", id)] = false
		patch[fmt.Sprintf("players.%s.isAlive", id)] = true
		patch[fmt.Sprintf("players.%s.isSpectator", id)] = false
		patch[fmt.Sprintf("players.%s.role", id)] = store.DeleteField
	}

	if err := ctx.Apply(patch); err != nil {
		return err
	}

	zap.L().Info("房间重开", zap.String("room_code", ctx.Code))
	return nil
}

// ---------------------------------------------------------------------------
// 各阶段共用的请求处理
// ---------------------------------------------------------------------------

// handleCommonRequest 处理所有阶段都接受的请求, 返回是否已处理
func handleCommonRequest(ctx *GameContext, wrapper RequestWrapper) (bool, error) {
	switch wrapper.ReqType {
	case REQ_JOIN_GAME:
		req := TryUnwrap[JoinGameRequest](wrapper, REQ_JOIN_GAME)
		if req == nil {
			return true, nil
		}
		onPlayerJoin(ctx, req)
		return true, nil

	case REQ_EXIT_GAME:
		req := TryUnwrap[ExitGameRequest](wrapper, REQ_EXIT_GAME)
		if req == nil {
			return true, nil
		}
		return true, onPlayerExit(ctx, req)

	case REQ_KICK_PLAYER:
		req := TryUnwrap[KickPlayerRequest](wrapper, REQ_KICK_PLAYER)
		if req == nil {
			return true, errors.New("无效的踢人请求")
		}
		return true, onKickPlayer(ctx, wrapper.SenderID, req.TargetID)

	case REQ_CHAT:
		req := TryUnwrap[ChatRequest](wrapper, REQ_CHAT)
		if req == nil {
			return true, errors.New("无效的聊天请求")
		}
		return true, onChat(ctx, wrapper.SenderID, req.Message)

	case REQ_HUNTER_SHOT:
		req := TryUnwrap[HunterShotRequest](wrapper, REQ_HUNTER_SHOT)
		if req == nil {
			return true, errors.New("无效的开枪请求")
		}
		return true, onHunterShot(ctx, wrapper.SenderID, req.TargetID)

	default:
		return false, nil
	}
}

// onPlayerJoin 入座或重连, 出错时直接通过连接回写, 不走统一的错误回复
func onPlayerJoin(ctx *GameContext, req *JoinGameRequest) {
	room := ctx.Room

	name := strings.TrimSpace(req.PlayerName)

	// 同 ID 重连: 换绑连接, 不改文档
	// 通道由连接层持有, 这里只换引用不负责关闭
	if req.PlayerID != "" {
		if existing := ctx.GetPlayer(req.PlayerID); existing != nil {
			ctx.RespChs[req.PlayerID] = req.RespCh

			sendJoinResp(req.RespCh, WrapResponse(RESP_JOIN_GAME, JoinGameResponse{
				RoomCode: ctx.Code,
				Joiner:   *existing,
				HostID:   room.HostID,
			}))
			zap.L().Info("玩家重连",
				zap.String("room_code", ctx.Code),
				zap.String("player_id", req.PlayerID))
			return
		}
	}

	if name == "" {
		sendJoinResp(req.RespCh, WrapErrResponse("昵称不能为空"))
		return
	}

	playerID := req.PlayerID
	if playerID == "" {
		playerID = ShortID()
	}

	player := Player{
		ID:       playerID,
		Name:     name,
		JoinedAt: nowMillis(),
	}

	patch := map[string]any{}
	if len(room.Players) == 0 {
		player.IsHost = true
		patch["hostId"] = playerID
	}
	if room.Status == PHASE_LOBBY {
		player.IsAlive = true
	} else {
		// 游戏中途加入只能旁观
		player.IsSpectator = true
	}
	patch[fmt.Sprintf("players.%s", playerID)] = player

	if err := ctx.Apply(patch); err != nil {
		zap.L().Error("写入新玩家失败", zap.String("room_code", ctx.Code), zap.Error(err))
		sendJoinResp(req.RespCh, WrapErrResponse("加入房间失败"))
		return
	}

	ctx.RespChs[playerID] = req.RespCh

	sendJoinResp(req.RespCh, WrapResponse(RESP_JOIN_GAME, JoinGameResponse{
		RoomCode: ctx.Code,
		Joiner:   player,
		HostID:   ctx.Room.HostID,
	}))

	zap.L().Info("玩家加入",
		zap.String("room_code", ctx.Code),
		zap.String("player_id", playerID),
		zap.String("player_name", name),
		zap.Bool("spectator", player.IsSpectator))
}

func sendJoinResp(ch chan ResponseWrapper, resp ResponseWrapper) {
	select {
	case ch <- resp:
	case <-time.After(time.Second):
		zap.L().Warn("加入响应发送超时")
	}
}

func onPlayerExit(ctx *GameContext, req *ExitGameRequest) error {
	room := ctx.Room

	player := ctx.GetPlayer(req.PlayerID)
	if player == nil {
		return nil
	}

	// 旧连接被重连顶替后才断开, 不能把新连接的座位清掉
	if cur, ok := ctx.RespChs[req.PlayerID]; ok && req.RespCh != nil && cur != req.RespCh {
		return nil
	}

	patch := map[string]any{
		fmt.Sprintf("players.%s", req.PlayerID): store.DeleteField,
	}

	if room.HostID == req.PlayerID {
		remaining := make(map[string]*Player, len(room.Players))
		for id, p := range room.Players {
			if id != req.PlayerID {
				remaining[id] = p
			}
		}
		if successors := sortedPlayers(remaining); len(successors) > 0 {
			next := successors[0]
			patch["hostId"] = next.ID
			patch[fmt.Sprintf("players.%s.isHost", next.ID)] = true
		}
	}

	if err := ctx.Apply(patch); err != nil {
		return err
	}

	if ch, ok := ctx.RespChs[req.PlayerID]; ok {
		select {
		case ch <- WrapResponse(RESP_EXIT_GAME, ExitGameResponse{
			LeftPlayerID:   req.PlayerID,
			LeftPlayerName: player.Name,
		}):
		default:
		}
		delete(ctx.RespChs, req.PlayerID)
	}

	zap.L().Info("玩家离开",
		zap.String("room_code", ctx.Code),
		zap.String("player_id", req.PlayerID))
	return nil
}

func onKickPlayer(ctx *GameContext, senderID, targetID string) error {
	room := ctx.Room

	kicker := ctx.GetPlayer(senderID)
	if kicker == nil || !kicker.IsHost {
		return errors.New("只有房主可以踢人")
	}
	if targetID == senderID {
		return errors.New("不能踢出自己")
	}
	if ctx.GetPlayer(targetID) == nil {
		return nil
	}

	patch := map[string]any{
		fmt.Sprintf("players.%s", targetID): store.DeleteField,
	}
	// 被踢的是挂名房主时, 房主身份移交给踢人者
	if room.HostID == targetID {
		patch["hostId"] = senderID
		patch[fmt.Sprintf("players.%s.isHost", senderID)] = true
	}

	if err := ctx.Apply(patch); err != nil {
		return err
	}

	if ch, ok := ctx.RespChs[targetID]; ok {
		select {
		case ch <- WrapErrResponse("你已被移出房间"):
		default:
		}
		delete(ctx.RespChs, targetID)
	}

	zap.L().Info("玩家被踢出",
		zap.String("room_code", ctx.Code),
		zap.String("target_id", targetID))
	return nil
}

func onChat(ctx *GameContext, senderID, message string) error {
	room := ctx.Room

	player := ctx.GetPlayer(senderID)
	if player == nil {
		return errNotInRoom
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	audience := AUDIENCE_ALL
	switch room.Status {
	case PHASE_NIGHT:
		if !player.IsAlive || !IsWerewolfTeam(player.Role) {
			return errors.New("夜晚只有狼人可以交流")
		}
		audience = AUDIENCE_WEREWOLVES
	case PHASE_DAY, PHASE_FINAL:
		if !player.IsAlive {
			return errAlreadyDead
		}
		if room.SilencedPlayerID == senderID && room.SilencedDayCount == room.DayCount {
			return errors.New("你今天被禁言了")
		}
	case PHASE_VOTING:
		if !player.IsAlive {
			return errAlreadyDead
		}
	}

	msg := ChatMessage{
		ID:         ShortID(),
		SenderID:   senderID,
		SenderName: player.Name,
		Message:    message,
		Audience:   audience,
		CreatedAt:  nowMillis(),
	}

	return ctx.Apply(map[string]any{
		"chat": append(append([]ChatMessage{}, room.Chat...), msg),
	})
}

// onHunterShot 猎人带人, 仅在猎人待决窗口内有效
func onHunterShot(ctx *GameContext, senderID, targetID string) error {
	room := ctx.Room

	if room.HunterPending == "" || room.HunterPending != senderID {
		return errors.New("当前不能开枪")
	}
	if targetID == senderID {
		return errors.New("不能对自己开枪")
	}
	target := ctx.GetPlayer(targetID)
	if target == nil || !target.IsAlive {
		return errors.New("开枪目标无效")
	}

	return resolveHunterShot(ctx, targetID)
}

// resolveHunterShot 结算猎人开枪, targetID 为空表示放弃
func resolveHunterShot(ctx *GameContext, targetID string) error {
	room := ctx.Room
	prevStatus := room.Status

	patch := map[string]any{
		"hunterPending": store.DeleteField,
		"phaseEndsAt":   nowMillis() + phaseDurations[prevStatus].Milliseconds(),
	}

	var killed []string
	if targetID != "" {
		killed = ApplyLoverDeaths([]string{targetID}, room.Lovers)
		for _, id := range killed {
			patch[fmt.Sprintf("players.%s.isAlive", id)] = false
		}
		patch["lastEliminated"] = append(append([]string{}, room.LastEliminated...), killed...)
	}

	if win := winnerAfterDeaths(room.Players, killed); win != nil {
		patch["status"] = PHASE_RESULTS
		patch["winner"] = win.Winner
		patch["winReason"] = win.Reason
		patch["phaseEndsAt"] = store.DeleteField
	}

	if err := ctx.Apply(patch); err != nil {
		return err
	}
	if ctx.Room.Status == prevStatus {
		ctx.ArmPhaseTimer()
	}

	zap.L().Info("猎人开枪结算",
		zap.String("room_code", ctx.Code),
		zap.String("target_id", targetID))
	return nil
}

// ---------------------------------------------------------------------------
// 小工具
// ---------------------------------------------------------------------------

// nextNightPatch 回到夜晚的公共补丁, 天数加一
func nextNightPatch(room *Room) map[string]any {
	return map[string]any{
		"status":            PHASE_NIGHT,
		"dayCount":          room.DayCount + 1,
		"nightStep":         NIGHT_STEP_MAIN,
		"phaseEndsAt":       nowMillis() + phaseDurations[PHASE_NIGHT].Milliseconds(),
		"votes":             store.DeleteField,
		"finalVotes":        store.DeleteField,
		"finalAccusedId":    store.DeleteField,
		"finalAccusedVotes": store.DeleteField,
		"nightActions":      store.DeleteField,
		"witchTurn":         store.DeleteField,
	}
}

func isKnownRole(role string) bool {
	for _, r := range roleOrder {
		if r == role {
			return true
		}
	}
	return false
}

func livingWitch(room *Room) *Player {
	for _, p := range room.Players {
		if p.Role == ROLE_WITCH && p.IsAlive && !p.IsSpectator {
			return p
		}
	}
	return nil
}

func witchHasCharge(room *Room) bool {
	if room.WitchState == nil {
		return true
	}
	return !room.WitchState.HealUsed || !room.WitchState.PoisonUsed
}

func hunterAmong(players map[string]*Player, killed []string) string {
	for _, id := range killed {
		if p, ok := players[id]; ok && p.Role == ROLE_HUNTER {
			return id
		}
	}
	return ""
}

// winnerAfterDeaths 在假定 killed 全部死亡的前提下判定胜负
func winnerAfterDeaths(players map[string]*Player, killed []string) *WinOutcome {
	clone := make(map[string]*Player, len(players))
	for id, p := range players {
		cp := *p
		clone[id] = &cp
	}
	for _, id := range killed {
		if p, ok := clone[id]; ok {
			p.IsAlive = false
		}
	}
	return ComputeWinner(clone)
}
