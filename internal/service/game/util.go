package game

import (
	"encoding/json"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
)

// 房间码字符表，去掉了容易看混的 0/O/1/I
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomCodeLength = 5

func GenID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("Failed to generate UUID: " + err.Error())
	}

	return id.String()
}

// ShortID 取 UUID 的后八位作为玩家标识
func ShortID() string {
	id := GenID()
	return id[len(id)-8:]
}

func NewRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[rand.IntN(len(roomCodeAlphabet))]
	}

	return string(code)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// sortedPlayers 按加入时间返回玩家列表，时间相同按 ID 兜底
// 牌堆分配、房主顺位都依赖这个确定性顺序
func sortedPlayers(players map[string]*Player) []*Player {
	out := make([]*Player, 0, len(players))
	for _, p := range players {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].ID < out[j].ID
	})

	return out
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("Failed to marshal: " + err.Error())
	}

	return data
}
