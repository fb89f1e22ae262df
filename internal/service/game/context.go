package game

import (
	"encoding/json"
	"fmt"
	"time"

	"werewolf-be/internal/store"

	"go.uber.org/zap"
)

// GameContext 是单个房间状态机的运行时上下文
// Room 是文档的类型化视图，每次变更都先写穿到存储再从存储回读，
// 保证存储里的文档永远是唯一权威状态
type GameContext struct {
	Code  string
	Room  *Room
	Store store.RoomStore

	// 连接层的响应通道，按玩家 ID 索引，不进文档
	RespChs map[string]chan ResponseWrapper

	// 定时事件通道，状态机事件循环消费
	TmoCh chan RequestWrapper

	timer    *time.Timer
	timerSeq int
}

func NewGameContext(code string, st store.RoomStore) *GameContext {
	return &GameContext{
		Code:    code,
		Store:   st,
		RespChs: make(map[string]chan ResponseWrapper),
		TmoCh:   make(chan RequestWrapper, 64),
	}
}

// Apply 以一个批次把字段更新写入存储，然后回读刷新类型化视图
// 所有状态变更都必须走这里，补丁里统一带上 updatedAt
func (gc *GameContext) Apply(fields map[string]any) error {
	fields["updatedAt"] = nowMillis()

	if err := gc.Store.Patch(gc.Code, fields); err != nil {
		return fmt.Errorf("写入房间 %s 失败: %w", gc.Code, err)
	}

	return gc.Reload()
}

// Reload 从存储回读最新文档并刷新 Room
func (gc *GameContext) Reload() error {
	doc, err := gc.Store.Get(gc.Code)
	if err != nil {
		return fmt.Errorf("读取房间 %s 失败: %w", gc.Code, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化房间 %s 文档失败: %w", gc.Code, err)
	}

	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return fmt.Errorf("解析房间 %s 文档失败: %w", gc.Code, err)
	}

	gc.Room = &room

	return nil
}

func (gc *GameContext) BroadcastResp(resp ResponseWrapper) {
	for playerID, ch := range gc.RespChs {
		select {
		case ch <- resp:
		default:
			zap.L().Warn(
				"发送广播响应失败：玩家响应通道已满",
				zap.String("player_id", playerID),
			)
		}
	}
}

func (gc *GameContext) UnicastResp(playerID string, resp ResponseWrapper) {
	ch, ok := gc.RespChs[playerID]
	if !ok {
		zap.L().Debug(
			"玩家没有在线连接，跳过单播响应",
			zap.String("player_id", playerID),
		)
		return
	}

	select {
	case ch <- resp:
	default:
		zap.L().Warn(
			"发送单播响应失败：玩家响应通道已满",
			zap.String("player_id", playerID),
		)
	}
}

// SetTimeout 重置阶段计时器，到点后向事件循环投递一个定时事件
// 每次重置都会递增序号，旧计时器的触发会被事件循环丢弃
func (gc *GameContext) SetTimeout(d time.Duration) {
	gc.ClearTimeout()

	gc.timerSeq++

	req := &TimeoutRequest{
		Phase: gc.Room.Status,
		Step:  gc.Room.NightStep,
		Seq:   gc.timerSeq,
	}

	gc.timer = time.AfterFunc(d, func() {
		wrapper := RequestWrapper{
			ReqType:    REQ_TIMEOUT,
			NativeData: req,
		}

		select {
		case gc.TmoCh <- wrapper:
		default:
			zap.L().Warn(
				"投递定时事件失败：通道已满",
				zap.String("room_code", gc.Code),
			)
		}
	})
}

// ArmPhaseTimer 按文档里的 phaseEndsAt 重新武装计时器
func (gc *GameContext) ArmPhaseTimer() {
	if gc.Room.PhaseEndsAt == 0 {
		gc.ClearTimeout()
		return
	}

	remaining := time.Duration(gc.Room.PhaseEndsAt-nowMillis()) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}

	gc.SetTimeout(remaining)
}

func (gc *GameContext) ClearTimeout() {
	if gc.timer != nil {
		gc.timer.Stop()
		gc.timer = nil
	}
}

// StaleTimeout 判断定时事件是否已经过期（被更新的计时器取代）
func (gc *GameContext) StaleTimeout(req *TimeoutRequest) bool {
	return req.Seq != gc.timerSeq
}

func (gc *GameContext) GetPlayer(playerID string) *Player {
	return gc.Room.Players[playerID]
}

// CountActive 统计非观战玩家数
func (gc *GameContext) CountActive() int {
	count := 0
	for _, p := range gc.Room.Players {
		if !p.IsSpectator {
			count++
		}
	}

	return count
}
