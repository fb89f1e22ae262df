package game

type JoinGameRequest struct {
	RoomCode   string `json:"room_code"`
	PlayerID   string `json:"player_id,omitempty"`
	PlayerName string `json:"player_name"`

	RespCh chan ResponseWrapper `json:"-"`
}

type JoinGameResponse struct {
	RoomCode string `json:"room_code"`
	Joiner   Player `json:"joiner"`
	HostID   string `json:"host_id"`
}

type ExitGameRequest struct {
	PlayerID string `json:"player_id"`

	RespCh chan ResponseWrapper `json:"-"`
}

type ExitGameResponse struct {
	LeftPlayerID   string `json:"left_player_id"`
	LeftPlayerName string `json:"left_player_name"`
}

type UpdateNameRequest struct {
	Name string `json:"name"`
}

type SetGameModeRequest struct {
	Mode string `json:"mode"`
}

type SetCustomRoleRequest struct {
	Role  string `json:"role"`
	Count int    `json:"count"`
}

type KickPlayerRequest struct {
	TargetID string `json:"target_id"`
}

type VoteRequest struct {
	TargetID string `json:"target_id"`
}

// 终审投票，Vote 只能是 save 或 kill
type FinalVoteRequest struct {
	Vote string `json:"vote"`
}

// main 子阶段的角色动作，键为动作字段名，值为目标玩家 ID
// 提交内容按发送者角色的白名单过滤
type NightActionRequest struct {
	Actions map[string]string `json:"actions"`
}

// 女巫决定，Action 只能是 heal / poison / pass
type WitchActionRequest struct {
	Action   string `json:"action"`
	TargetID string `json:"target_id,omitempty"`
}

type CupidActionRequest struct {
	TargetIDs []string `json:"target_ids"`
}

type HunterShotRequest struct {
	TargetID string `json:"target_id"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

// 状态机内部的定时事件，Seq 用于丢弃已被新计时器取代的过期触发
type TimeoutRequest struct {
	Phase string `json:"phase"`
	Step  string `json:"step,omitempty"`
	Seq   int    `json:"seq"`
}

type GameResultResponse struct {
	Winner    string `json:"winner"`
	WinReason string `json:"win_reason"`
}
