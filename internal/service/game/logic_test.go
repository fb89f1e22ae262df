package game

import (
	"fmt"
	"testing"

	"werewolf-be/internal/store"
)

func newTestContext(t *testing.T, room *Room) *GameContext {
	t.Helper()

	st := store.NewMemoryStore()
	if err := st.Put(room.Code, room); err != nil {
		t.Fatalf("put room: %v", err)
	}

	ctx := NewGameContext(room.Code, st)
	if err := ctx.Reload(); err != nil {
		t.Fatalf("reload room: %v", err)
	}
	return ctx
}

func lobbyRoom(n int) *Room {
	room := &Room{
		Code:        "TESTS",
		HostID:      "p1",
		Status:      PHASE_LOBBY,
		GameMode:    MODE_CLASSIC,
		CustomRoles: DefaultCustomRoles(),
		Players:     make(map[string]*Player, n),
	}
	for i := 1; i <= n; i++ {
		id := playerID(i)
		room.Players[id] = &Player{
			ID:       id,
			Name:     "玩家" + id,
			IsHost:   i == 1,
			IsReady:  true,
			IsAlive:  true,
			JoinedAt: int64(i),
		}
	}
	return room
}

func playerID(i int) string {
	return fmt.Sprintf("p%d", i)
}

func advanceReq(senderID string) RequestWrapper {
	return RequestWrapper{ReqType: REQ_ADVANCE_PHASE, SenderID: senderID}
}

func TestStartGame_EntersFirstNight(t *testing.T) {
	ctx := newTestContext(t, lobbyRoom(5))
	h := NewLobbyStageHandler()

	if err := h.OnHandle(ctx, RequestWrapper{ReqType: REQ_START_GAME, SenderID: "p1"}); err != nil {
		t.Fatalf("start game: %v", err)
	}

	room := ctx.Room
	if room.Status != PHASE_NIGHT {
		t.Fatalf("status want night got %q", room.Status)
	}
	if room.DayCount != 1 {
		t.Fatalf("dayCount want 1 got %d", room.DayCount)
	}
	if room.NightStep != NIGHT_STEP_MAIN {
		t.Fatalf("5 人局没有丘比特, nightStep want main got %q", room.NightStep)
	}
	if room.WitchState == nil {
		t.Fatalf("witchState should be initialized on start")
	}

	werewolves := 0
	for _, p := range room.Players {
		if p.Role == "" {
			t.Fatalf("player %s has no role", p.ID)
		}
		if p.IsReady {
			t.Fatalf("ready flags should be cleared on start")
		}
		if IsWerewolfTeam(p.Role) {
			werewolves++
		}
	}
	if werewolves != 1 {
		t.Fatalf("5 人局应有 1 狼, got %d", werewolves)
	}
}

func TestStartGame_RejectsUnready(t *testing.T) {
	room := lobbyRoom(4)
	room.Players["p3"].IsReady = false
	ctx := newTestContext(t, room)

	err := NewLobbyStageHandler().OnHandle(ctx, RequestWrapper{ReqType: REQ_START_GAME, SenderID: "p1"})
	if err == nil {
		t.Fatalf("unready player should block start")
	}
	if ctx.Room.Status != PHASE_LOBBY {
		t.Fatalf("failed start must not leave the lobby")
	}
}

func TestStartGame_RejectsTooFewPlayers(t *testing.T) {
	ctx := newTestContext(t, lobbyRoom(3))

	err := NewLobbyStageHandler().OnHandle(ctx, RequestWrapper{ReqType: REQ_START_GAME, SenderID: "p1"})
	if err == nil {
		t.Fatalf("3 players should be below the minimum")
	}
}

func TestStartGame_HostOnly(t *testing.T) {
	ctx := newTestContext(t, lobbyRoom(5))

	err := NewLobbyStageHandler().OnHandle(ctx, RequestWrapper{ReqType: REQ_START_GAME, SenderID: "p2"})
	if err == nil {
		t.Fatalf("non-host start should be rejected")
	}
}

func inGameRoom(roles map[string]string, status string) *Room {
	room := &Room{
		Code:       "TESTS",
		HostID:     "p1",
		Status:     status,
		DayCount:   1,
		GameMode:   MODE_CLASSIC,
		WitchState: &WitchState{},
		Players:    make(map[string]*Player, len(roles)),
	}
	i := 0
	for id, role := range roles {
		i++
		room.Players[id] = &Player{
			ID:       id,
			Name:     "玩家" + id,
			IsHost:   id == "p1",
			IsAlive:  true,
			Role:     role,
			JoinedAt: int64(i),
		}
	}
	return room
}

func TestNight_WerewolfKillResolvesToDay(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
		"p5": ROLE_SEER,
	}, PHASE_NIGHT)
	room.NightStep = NIGHT_STEP_MAIN
	ctx := newTestContext(t, room)
	h := NewNightStageHandler()

	err := h.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_NIGHT_ACTION,
		SenderID: "p1",
		Data:     mustMarshal(NightActionRequest{Actions: map[string]string{ACTION_WEREWOLF_TARGET: "p2"}}),
	})
	if err != nil {
		t.Fatalf("night action: %v", err)
	}

	if err := h.OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if ctx.Room.Status != PHASE_DAY {
		t.Fatalf("status want day got %q", ctx.Room.Status)
	}
	if ctx.Room.Players["p2"].IsAlive {
		t.Fatalf("victim should be dead")
	}
	if ctx.Room.LastNight == nil || len(ctx.Room.LastNight.KilledIDs) != 1 {
		t.Fatalf("lastNight should record the kill, got %+v", ctx.Room.LastNight)
	}
	if ctx.Room.NightStep != "" {
		t.Fatalf("nightStep should be cleared outside the night")
	}
}

func TestNight_DeadPlayerCannotAct(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_NIGHT)
	room.NightStep = NIGHT_STEP_MAIN
	room.Players["p1"].IsAlive = false
	ctx := newTestContext(t, room)

	err := NewNightStageHandler().OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_NIGHT_ACTION,
		SenderID: "p1",
		Data:     mustMarshal(NightActionRequest{Actions: map[string]string{ACTION_WEREWOLF_TARGET: "p2"}}),
	})
	if err == nil {
		t.Fatalf("dead werewolf acting should be rejected")
	}
}

func TestNight_WitchStepAndHeal(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_WITCH,
		"p4": ROLE_VILLAGER,
		"p5": ROLE_VILLAGER,
	}, PHASE_NIGHT)
	room.NightStep = NIGHT_STEP_MAIN
	ctx := newTestContext(t, room)
	h := NewNightStageHandler()

	if err := h.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_NIGHT_ACTION,
		SenderID: "p1",
		Data:     mustMarshal(NightActionRequest{Actions: map[string]string{ACTION_WEREWOLF_TARGET: "p2"}}),
	}); err != nil {
		t.Fatalf("night action: %v", err)
	}

	// 有存活女巫且药没用完, main 之后插入女巫子阶段
	if err := h.OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("advance to witch step: %v", err)
	}
	if ctx.Room.NightStep != NIGHT_STEP_WITCH {
		t.Fatalf("nightStep want witch got %q", ctx.Room.NightStep)
	}
	if ctx.Room.WitchTurn == nil || ctx.Room.WitchTurn.PendingVictimID != "p2" {
		t.Fatalf("witchTurn should carry the pending victim, got %+v", ctx.Room.WitchTurn)
	}

	if err := h.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_WITCH_ACTION,
		SenderID: "p3",
		Data:     mustMarshal(WitchActionRequest{Action: "heal"}),
	}); err != nil {
		t.Fatalf("witch heal: %v", err)
	}

	if err := h.OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("advance to day: %v", err)
	}

	if ctx.Room.Status != PHASE_DAY {
		t.Fatalf("status want day got %q", ctx.Room.Status)
	}
	if !ctx.Room.Players["p2"].IsAlive {
		t.Fatalf("healed victim should survive")
	}
	if ctx.Room.WitchState == nil || !ctx.Room.WitchState.HealUsed {
		t.Fatalf("heal charge should be consumed")
	}
}

func TestNight_CupidLinksLovers(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_CUPID,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_NIGHT)
	room.NightStep = NIGHT_STEP_CUPID
	ctx := newTestContext(t, room)
	h := NewNightStageHandler()

	if err := h.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_CUPID_ACTION,
		SenderID: "p2",
		Data:     mustMarshal(CupidActionRequest{TargetIDs: []string{"p3", "p4"}}),
	}); err != nil {
		t.Fatalf("cupid action: %v", err)
	}

	if err := h.OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if len(ctx.Room.Lovers) != 2 {
		t.Fatalf("lovers should be linked, got %v", ctx.Room.Lovers)
	}
	if ctx.Room.NightStep != NIGHT_STEP_MAIN {
		t.Fatalf("cupid step should hand over to main, got %q", ctx.Room.NightStep)
	}
	if ctx.Room.Status != PHASE_NIGHT {
		t.Fatalf("still the same night")
	}
}

func TestVoting_DefiniteTallyEntersFinalPlea(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
		"p5": ROLE_VILLAGER,
	}, PHASE_VOTING)
	ctx := newTestContext(t, room)
	h := NewVotingStageHandler()

	for _, voter := range []string{"p2", "p3", "p4"} {
		if err := h.OnHandle(ctx, RequestWrapper{
			ReqType:  REQ_VOTE,
			SenderID: voter,
			Data:     mustMarshal(VoteRequest{TargetID: "p1"}),
		}); err != nil {
			t.Fatalf("vote from %s: %v", voter, err)
		}
	}

	if err := h.OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if ctx.Room.Status != PHASE_FINAL {
		t.Fatalf("status want final got %q", ctx.Room.Status)
	}
	if ctx.Room.FinalAccusedID != "p1" {
		t.Fatalf("accused want p1 got %q", ctx.Room.FinalAccusedID)
	}
	if ctx.Room.FinalAccusedVotes != 3 {
		t.Fatalf("accused votes want 3 got %d", ctx.Room.FinalAccusedVotes)
	}
	if len(ctx.Room.Votes) != 0 {
		t.Fatalf("votes should be cleared on transition")
	}
}

func TestVoting_TieReturnsToNight(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_VOTING)
	room.Votes = map[string]string{"p1": "p2", "p2": "p1", "p3": "p2", "p4": "p1"}
	ctx := newTestContext(t, room)

	if err := NewVotingStageHandler().OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if ctx.Room.Status != PHASE_NIGHT {
		t.Fatalf("tie should return to night, got %q", ctx.Room.Status)
	}
	if ctx.Room.DayCount != 2 {
		t.Fatalf("dayCount should increment on re-entering night, got %d", ctx.Room.DayCount)
	}
	if ctx.Room.NightStep != NIGHT_STEP_MAIN {
		t.Fatalf("later nights start at main, got %q", ctx.Room.NightStep)
	}
}

func TestVoting_DeadVoterRejected(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_VOTING)
	room.Players["p2"].IsAlive = false
	ctx := newTestContext(t, room)

	err := NewVotingStageHandler().OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_VOTE,
		SenderID: "p2",
		Data:     mustMarshal(VoteRequest{TargetID: "p1"}),
	})
	if err == nil {
		t.Fatalf("dead voter should be rejected")
	}
}

func TestFinalPlea_ExecutionAndWin(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_FINAL)
	room.FinalAccusedID = "p1"
	room.FinalVotes = map[string]string{"p2": FINAL_VOTE_KILL, "p3": FINAL_VOTE_KILL, "p4": FINAL_VOTE_SAVE}
	ctx := newTestContext(t, room)

	if err := NewFinalStageHandler().OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// 唯一的狼被处决, 直接结算
	if ctx.Room.Status != PHASE_RESULTS {
		t.Fatalf("status want results got %q", ctx.Room.Status)
	}
	if ctx.Room.Winner != WINNER_VILLAGERS {
		t.Fatalf("winner want villagers got %q", ctx.Room.Winner)
	}
	if ctx.Room.Players["p1"].IsAlive {
		t.Fatalf("executed player should be dead")
	}
}

func TestFinalPlea_SavedReturnsToNight(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_FINAL)
	room.FinalAccusedID = "p2"
	room.FinalVotes = map[string]string{"p1": FINAL_VOTE_KILL, "p3": FINAL_VOTE_SAVE}
	ctx := newTestContext(t, room)

	if err := NewFinalStageHandler().OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if ctx.Room.Status != PHASE_NIGHT {
		t.Fatalf("saved accused should send the game back to night, got %q", ctx.Room.Status)
	}
	if !ctx.Room.Players["p2"].IsAlive {
		t.Fatalf("saved accused should live")
	}
	if ctx.Room.LastEliminated == nil || len(ctx.Room.LastEliminated) != 0 {
		t.Fatalf("lastEliminated should be an empty list, got %v", ctx.Room.LastEliminated)
	}
	if ctx.Room.DayCount != 2 {
		t.Fatalf("dayCount should increment, got %d", ctx.Room.DayCount)
	}
}

func TestFinalPlea_AccusedCannotVote(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_FINAL)
	room.FinalAccusedID = "p2"
	ctx := newTestContext(t, room)

	err := NewFinalStageHandler().OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_FINAL_VOTE,
		SenderID: "p2",
		Data:     mustMarshal(FinalVoteRequest{Vote: FINAL_VOTE_SAVE}),
	})
	if err == nil {
		t.Fatalf("the accused voting for themselves should be rejected")
	}
}

func TestFinalPlea_FoolWinsInstantly(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_FOOL,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
		"p5": ROLE_VILLAGER,
	}, PHASE_FINAL)
	room.FinalAccusedID = "p2"
	room.FinalVotes = map[string]string{"p1": FINAL_VOTE_KILL, "p3": FINAL_VOTE_KILL}
	ctx := newTestContext(t, room)

	if err := NewFinalStageHandler().OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if ctx.Room.Status != PHASE_RESULTS {
		t.Fatalf("fool executed should end the game, got %q", ctx.Room.Status)
	}
	if ctx.Room.Winner != WINNER_FOOL {
		t.Fatalf("winner want fool got %q", ctx.Room.Winner)
	}
}

func TestFinalPlea_HunterGetsShotWindow(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_HUNTER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
		"p5": ROLE_VILLAGER,
	}, PHASE_FINAL)
	room.FinalAccusedID = "p2"
	room.FinalVotes = map[string]string{"p1": FINAL_VOTE_KILL, "p3": FINAL_VOTE_KILL}
	ctx := newTestContext(t, room)
	h := NewFinalStageHandler()

	if err := h.OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if ctx.Room.HunterPending != "p2" {
		t.Fatalf("executed hunter should get a shot window, got %q", ctx.Room.HunterPending)
	}
	if ctx.Room.Status != PHASE_NIGHT {
		t.Fatalf("game should move on to night while the shot is pending, got %q", ctx.Room.Status)
	}

	// 开枪结算, 带走狼人后村民直接获胜
	nh := NewNightStageHandler()
	if err := nh.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_HUNTER_SHOT,
		SenderID: "p2",
		Data:     mustMarshal(HunterShotRequest{TargetID: "p1"}),
	}); err != nil {
		t.Fatalf("hunter shot: %v", err)
	}

	if ctx.Room.HunterPending != "" {
		t.Fatalf("pending flag should be cleared after the shot")
	}
	if ctx.Room.Players["p1"].IsAlive {
		t.Fatalf("shot target should be dead")
	}
	if ctx.Room.Status != PHASE_RESULTS || ctx.Room.Winner != WINNER_VILLAGERS {
		t.Fatalf("last wolf shot should end the game, got %q %q", ctx.Room.Status, ctx.Room.Winner)
	}
}

func TestHunterShot_OnlyPendingHunter(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_HUNTER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_DAY)
	ctx := newTestContext(t, room)

	err := NewDayStageHandler().OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_HUNTER_SHOT,
		SenderID: "p2",
		Data:     mustMarshal(HunterShotRequest{TargetID: "p1"}),
	})
	if err == nil {
		t.Fatalf("shot outside the pending window should be rejected")
	}
}

func TestDay_SilenceClearedOnLeavingDay(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_SILENCER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_DAY)
	room.SilencedPlayerID = "p3"
	room.SilencedDayCount = 1
	ctx := newTestContext(t, room)
	h := NewDayStageHandler()

	err := NewDayStageHandler().OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_CHAT,
		SenderID: "p3",
		Data:     mustMarshal(ChatRequest{Message: "我有话说"}),
	})
	if err == nil {
		t.Fatalf("silenced player chatting during the day should be rejected")
	}

	if err := h.OnHandle(ctx, advanceReq("p1")); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if ctx.Room.Status != PHASE_VOTING {
		t.Fatalf("status want voting got %q", ctx.Room.Status)
	}
	if ctx.Room.SilencedPlayerID != "" {
		t.Fatalf("silence should expire when leaving the day phase")
	}
}

func TestChat_NightWerewolfOnly(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_NIGHT)
	room.NightStep = NIGHT_STEP_MAIN
	ctx := newTestContext(t, room)
	h := NewNightStageHandler()

	if err := h.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_CHAT,
		SenderID: "p2",
		Data:     mustMarshal(ChatRequest{Message: "天黑请闭眼"}),
	}); err == nil {
		t.Fatalf("villager chatting at night should be rejected")
	}

	if err := h.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_CHAT,
		SenderID: "p1",
		Data:     mustMarshal(ChatRequest{Message: "今晚刀谁"}),
	}); err != nil {
		t.Fatalf("werewolf night chat: %v", err)
	}

	if len(ctx.Room.Chat) != 1 {
		t.Fatalf("chat length want 1 got %d", len(ctx.Room.Chat))
	}
	if ctx.Room.Chat[0].Audience != AUDIENCE_WEREWOLVES {
		t.Fatalf("night chat should go to the werewolf channel")
	}
}

func TestResultsReset_RestoresLobby(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_RESULTS)
	room.Winner = WINNER_WEREWOLVES
	room.WinReason = "狼人已占据多数"
	room.Players["p2"].IsAlive = false
	room.Players["p3"].IsSpectator = true
	ctx := newTestContext(t, room)

	if err := NewResultsStageHandler().OnHandle(ctx, RequestWrapper{ReqType: REQ_RESET_LOBBY, SenderID: "p1"}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if ctx.Room.Status != PHASE_LOBBY {
		t.Fatalf("status want lobby got %q", ctx.Room.Status)
	}
	if ctx.Room.Winner != "" || ctx.Room.DayCount != 0 {
		t.Fatalf("game state should be wiped on reset")
	}
	for _, p := range ctx.Room.Players {
		if p.Role != "" || !p.IsAlive || p.IsReady || p.IsSpectator {
			t.Fatalf("player %s not reset: %+v", p.ID, p)
		}
	}
}

func TestExit_TransfersHost(t *testing.T) {
	ctx := newTestContext(t, lobbyRoom(4))
	h := NewLobbyStageHandler()

	err := h.OnHandle(ctx, RequestWrapper{
		ReqType:    REQ_EXIT_GAME,
		NativeData: &ExitGameRequest{PlayerID: "p1"},
	})
	if err != nil {
		t.Fatalf("exit: %v", err)
	}

	if _, ok := ctx.Room.Players["p1"]; ok {
		t.Fatalf("leaving player should be removed")
	}
	if ctx.Room.HostID != "p2" {
		t.Fatalf("host should pass to the earliest remaining player, got %q", ctx.Room.HostID)
	}
	if !ctx.Room.Players["p2"].IsHost {
		t.Fatalf("new host flag not set")
	}
}

func TestKick_HostTransferWhenKickingListedHost(t *testing.T) {
	room := lobbyRoom(4)
	// 房主字段还指着 p1, 但 p2 也持有房主标记（接管后的中间态）
	room.Players["p2"].IsHost = true
	ctx := newTestContext(t, room)
	h := NewLobbyStageHandler()

	err := h.OnHandle(ctx, RequestWrapper{
		ReqType:  REQ_KICK_PLAYER,
		SenderID: "p2",
		Data:     mustMarshal(KickPlayerRequest{TargetID: "p1"}),
	})
	if err != nil {
		t.Fatalf("kick: %v", err)
	}

	if _, ok := ctx.Room.Players["p1"]; ok {
		t.Fatalf("kicked player should be removed")
	}
	if ctx.Room.HostID != "p2" {
		t.Fatalf("hostId should move to the kicker, got %q", ctx.Room.HostID)
	}
}

func TestJoin_MidGameBecomesSpectator(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_VILLAGER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_DAY)
	ctx := newTestContext(t, room)
	h := NewDayStageHandler()

	respCh := make(chan ResponseWrapper, 4)
	err := h.OnHandle(ctx, RequestWrapper{
		ReqType: REQ_JOIN_GAME,
		NativeData: &JoinGameRequest{
			RoomCode:   "TESTS",
			PlayerName: "路人甲",
			RespCh:     respCh,
		},
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	resp := <-respCh
	if resp.RespType != RESP_JOIN_GAME {
		t.Fatalf("join response type want %q got %q", RESP_JOIN_GAME, resp.RespType)
	}

	if len(ctx.Room.Players) != 5 {
		t.Fatalf("player count want 5 got %d", len(ctx.Room.Players))
	}
	for id, p := range ctx.Room.Players {
		if id == "p1" || id == "p2" || id == "p3" || id == "p4" {
			continue
		}
		if !p.IsSpectator || p.IsAlive {
			t.Fatalf("mid-game joiner should be a dead spectator, got %+v", p)
		}
	}
}

func TestSanitizeRoomFor(t *testing.T) {
	room := inGameRoom(map[string]string{
		"p1": ROLE_WEREWOLF,
		"p2": ROLE_SEER,
		"p3": ROLE_VILLAGER,
		"p4": ROLE_VILLAGER,
	}, PHASE_DAY)
	room.Chat = []ChatMessage{
		{ID: "m1", SenderID: "p1", Message: "今晚刀p3", Audience: AUDIENCE_WEREWOLVES},
		{ID: "m2", SenderID: "p3", Message: "大家好", Audience: AUDIENCE_ALL},
	}
	room.LastNight = &NightResult{
		SeerResult: &SeerResult{TargetID: "p1", Role: ROLE_WEREWOLF},
	}

	forVillager := SanitizeRoomFor("p3", room)
	if len(forVillager.Chat) != 1 || forVillager.Chat[0].ID != "m2" {
		t.Fatalf("villager should not see the werewolf channel, got %+v", forVillager.Chat)
	}
	if forVillager.LastNight.SeerResult != nil {
		t.Fatalf("villager should not see the seer result")
	}

	forWolf := SanitizeRoomFor("p1", room)
	if len(forWolf.Chat) != 2 {
		t.Fatalf("werewolf should see both messages, got %d", len(forWolf.Chat))
	}

	forSeer := SanitizeRoomFor("p2", room)
	if forSeer.LastNight.SeerResult == nil {
		t.Fatalf("seer should keep the seer result")
	}

	// 原始文档不受裁剪影响
	if len(room.Chat) != 2 || room.LastNight.SeerResult == nil {
		t.Fatalf("sanitize must not mutate the source room")
	}
}
