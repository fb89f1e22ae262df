package game

import "time"

// 游戏阶段
// lobby → night → day → voting → (final) → night → … → results
const (
	PHASE_LOBBY   = "lobby"
	PHASE_NIGHT   = "night"
	PHASE_DAY     = "day"
	PHASE_VOTING  = "voting"
	PHASE_FINAL   = "final"
	PHASE_RESULTS = "results"
)

// 夜晚子阶段，丘比特只在第一晚出现，女巫只在有可用药水时出现
const (
	NIGHT_STEP_CUPID = "cupid"
	NIGHT_STEP_MAIN  = "main"
	NIGHT_STEP_WITCH = "witch"
)

// 角色
const (
	ROLE_WEREWOLF  = "werewolf"
	ROLE_SEER      = "seer"
	ROLE_BODYGUARD = "bodyguard"
	ROLE_WITCH     = "witch"
	ROLE_HUNTER    = "hunter"
	ROLE_FOOL      = "fool"
	ROLE_DETECTIVE = "detective"
	ROLE_SILENCER  = "silencer"
	ROLE_CUPID     = "cupid"
	ROLE_VILLAGER  = "villager"
)

// 游戏模式
const (
	MODE_CLASSIC = "classic"
	MODE_CUSTOM  = "custom"
)

// 胜利方
const (
	WINNER_VILLAGERS  = "villagers"
	WINNER_WEREWOLVES = "werewolves"
	WINNER_FOOL       = "fool"
)

// 投票哨兵值与终审投票选项
const (
	VOTE_SKIP       = "skip"
	FINAL_VOTE_SAVE = "save"
	FINAL_VOTE_KILL = "kill"
)

// 聊天可见范围
const (
	AUDIENCE_ALL        = "all"
	AUDIENCE_WEREWOLVES = "werewolves"
)

const MIN_PLAYERS = 4

// 各阶段时长；lobby 和 results 没有计时器
var phaseDurations = map[string]time.Duration{
	PHASE_NIGHT:  45 * time.Second,
	PHASE_DAY:    120 * time.Second,
	PHASE_VOTING: 45 * time.Second,
	PHASE_FINAL:  30 * time.Second,
}

// 猎人开枪的等待窗口，超时按不开枪处理
const hunterWindow = 30 * time.Second

// 自定义模式下构建牌堆的固定角色顺序
var roleOrder = []string{
	ROLE_WEREWOLF,
	ROLE_SEER,
	ROLE_BODYGUARD,
	ROLE_WITCH,
	ROLE_HUNTER,
	ROLE_FOOL,
	ROLE_DETECTIVE,
	ROLE_SILENCER,
	ROLE_CUPID,
	ROLE_VILLAGER,
}

type RoleCounts map[string]int

// 新房间的默认自定义角色配置
func DefaultCustomRoles() RoleCounts {
	return RoleCounts{
		ROLE_WEREWOLF:  1,
		ROLE_SEER:      1,
		ROLE_BODYGUARD: 1,
		ROLE_WITCH:     0,
		ROLE_HUNTER:    0,
		ROLE_FOOL:      0,
		ROLE_DETECTIVE: 0,
		ROLE_SILENCER:  0,
		ROLE_CUPID:     0,
		ROLE_VILLAGER:  1,
	}
}

type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsHost      bool   `json:"isHost"`
	IsAlive     bool   `json:"isAlive"`
	IsReady     bool   `json:"isReady"`
	IsSpectator bool   `json:"isSpectator"`
	Role        string `json:"role,omitempty"`
	JoinedAt    int64  `json:"joinedAt"`
}

// 女巫的两瓶药，整局游戏各只能用一次，只增不减
type WitchState struct {
	HealUsed   bool `json:"healUsed"`
	PoisonUsed bool `json:"poisonUsed"`
}

// 女巫决策窗口期间暴露的临时状态
type WitchTurn struct {
	PendingVictimID string `json:"pendingVictimId,omitempty"`
	Action          string `json:"action,omitempty"`
}

// 当晚提交的所有角色动作，每晚清空
type NightActions struct {
	WerewolfTarget    string   `json:"werewolfTarget,omitempty"`
	BodyguardProtect  string   `json:"bodyguardProtect,omitempty"`
	SeerInspect       string   `json:"seerInspect,omitempty"`
	DetectiveTargetA  string   `json:"detectiveTargetA,omitempty"`
	DetectiveTargetB  string   `json:"detectiveTargetB,omitempty"`
	SilencerTarget    string   `json:"silencerTarget,omitempty"`
	WitchHeal         bool     `json:"witchHeal,omitempty"`
	WitchPoisonTarget string   `json:"witchPoisonTarget,omitempty"`
	CupidLoverIDs     []string `json:"cupidLoverIds,omitempty"`
}

type SeerResult struct {
	TargetID string `json:"targetId"`
	Role     string `json:"role"`
}

type DetectiveResult struct {
	TargetIDs [2]string `json:"targetIds"`
	SameTeam  bool      `json:"sameTeam"`
}

// 一晚结算的完整结果，用于白天展示和猎人触发
type NightResult struct {
	KilledIDs        []string         `json:"killedIds,omitempty"`
	BodyguardSavedID string           `json:"bodyguardSavedId,omitempty"`
	WitchSavedID     string           `json:"witchSavedId,omitempty"`
	WitchPoisonedID  string           `json:"witchPoisonedId,omitempty"`
	SeerResult       *SeerResult      `json:"seerResult,omitempty"`
	DetectiveResult  *DetectiveResult `json:"detectiveResult,omitempty"`
}

type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
	Audience   string `json:"audience"`
	CreatedAt  int64  `json:"createdAt"`
}

// Room 是单个房间的完整文档，也是存储中持久化的聚合根
type Room struct {
	Code      string `json:"code"`
	HostID    string `json:"hostId"`
	Status    string `json:"status"`
	DayCount  int    `json:"dayCount"`
	GameMode  string `json:"gameMode"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`

	Players     map[string]*Player `json:"players"`
	CustomRoles RoleCounts         `json:"customRoles,omitempty"`

	PhaseEndsAt int64  `json:"phaseEndsAt,omitempty"`
	NightStep   string `json:"nightStep,omitempty"`

	Votes             map[string]string `json:"votes,omitempty"`
	FinalVotes        map[string]string `json:"finalVotes,omitempty"`
	FinalAccusedID    string            `json:"finalAccusedId,omitempty"`
	FinalAccusedVotes int               `json:"finalAccusedVotes,omitempty"`

	NightActions             *NightActions `json:"nightActions,omitempty"`
	WitchState               *WitchState   `json:"witchState,omitempty"`
	WitchTurn                *WitchTurn    `json:"witchTurn,omitempty"`
	BodyguardLastProtectedID string        `json:"bodyguardLastProtectedId,omitempty"`

	Lovers           []string `json:"lovers,omitempty"`
	SilencedPlayerID string   `json:"silencedPlayerId,omitempty"`
	SilencedDayCount int      `json:"silencedDayCount,omitempty"`

	LastNight      *NightResult `json:"lastNight,omitempty"`
	LastEliminated []string     `json:"lastEliminated,omitempty"`
	HunterPending  string       `json:"hunterPending,omitempty"`

	Winner    string `json:"winner,omitempty"`
	WinReason string `json:"winReason,omitempty"`

	Chat []ChatMessage `json:"chat,omitempty"`
}

// NewRoom 构建以 creator 为房主的新大厅文档，房间码由调用方填入
func NewRoom(creator Player) *Room {
	now := time.Now().UnixMilli()

	return &Room{
		HostID:      creator.ID,
		Status:      PHASE_LOBBY,
		GameMode:    MODE_CLASSIC,
		CreatedAt:   now,
		UpdatedAt:   now,
		Players:     map[string]*Player{creator.ID: &creator},
		CustomRoles: DefaultCustomRoles(),
	}
}
