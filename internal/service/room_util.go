package service

import (
	"time"

	"werewolf-be/internal/service/game"
	"werewolf-be/internal/store"
)

type CreateRoomRequest struct {
	CreatorName string `json:"creator_name"`
}

type CreateRoomResponse struct {
	RoomCode string      `json:"room_code"`
	Creator  game.Player `json:"creator"`
}

// 结算后的房间超过这个时长无人操作就回收
const finishedRoomTTL = 30 * time.Minute

// isRoomExpired 根据存储里的文档判断房间是否该被回收：
// 没有玩家的房间直接回收，停在结算页太久的房间也回收
func isRoomExpired(doc store.Document) bool {
	players, ok := doc["players"].(map[string]any)
	if !ok || len(players) == 0 {
		return true
	}

	status, _ := doc["status"].(string)
	if status != game.PHASE_RESULTS {
		return false
	}

	updatedAt, ok := doc["updatedAt"].(float64)
	if !ok {
		return true
	}

	idle := time.Now().UnixMilli() - int64(updatedAt)
	return idle > finishedRoomTTL.Milliseconds()
}
