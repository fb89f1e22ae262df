package game

import (
	"encoding/json"

	"go.uber.org/zap"
)

// 请求类型
const (
	REQ_JOIN_GAME       = "JoinGame"
	REQ_EXIT_GAME       = "ExitGame"
	REQ_TOGGLE_READY    = "ToggleReady"
	REQ_UPDATE_NAME     = "UpdateName"
	REQ_SET_GAME_MODE   = "SetGameMode"
	REQ_SET_CUSTOM_ROLE = "SetCustomRole"
	REQ_START_GAME      = "StartGame"
	REQ_ADVANCE_PHASE   = "AdvancePhase"
	REQ_RESET_LOBBY     = "ResetLobby"
	REQ_KICK_PLAYER     = "KickPlayer"
	REQ_VOTE            = "Vote"
	REQ_FINAL_VOTE      = "FinalVote"
	REQ_NIGHT_ACTION    = "NightAction"
	REQ_WITCH_ACTION    = "WitchAction"
	REQ_CUPID_ACTION    = "CupidAction"
	REQ_HUNTER_SHOT     = "HunterShot"
	REQ_CHAT            = "Chat"
	REQ_TIMEOUT         = "Timeout"
)

type RequestWrapper struct {
	ReqType string          `json:"request_type"`
	Data    json.RawMessage `json:"data"`

	// 由连接层填充的发送者身份，状态机以此为准，不信任载荷里的 ID
	SenderID string `json:"-"`
	// 进程内请求（加入、退出、超时）直接携带本地对象，跳过序列化
	NativeData any `json:"-"`
}

// TryUnwrap 按类型解出请求载荷，类型不匹配或解析失败返回 nil
func TryUnwrap[T any](wrapper RequestWrapper, reqType string) *T {
	if wrapper.ReqType != reqType {
		return nil
	}

	if wrapper.NativeData != nil {
		req, ok := wrapper.NativeData.(*T)
		if !ok {
			zap.L().Error(
				"本地请求类型不匹配",
				zap.String("request_type", reqType),
			)
			return nil
		}
		return req
	}

	var req T

	if len(wrapper.Data) == 0 {
		return &req
	}

	if err := json.Unmarshal(wrapper.Data, &req); err != nil {
		zap.L().Error(
			"解析请求载荷失败",
			zap.Error(err),
			zap.String("request_type", reqType),
		)
		return nil
	}

	return &req
}

// 响应类型
const (
	RESP_ERROR = "Error"

	RESP_JOIN_GAME   = "JoinGame"
	RESP_EXIT_GAME   = "ExitGame"
	RESP_ROOM_STATE  = "RoomState"
	RESP_GAME_RESULT = "GameResult"
)

type ResponseWrapper struct {
	RespType string `json:"response_type"`
	Data     any    `json:"data,omitempty"`
	ErrMsg   string `json:"error_message,omitempty"`
}

func WrapResponse(respType string, data any) ResponseWrapper {
	return ResponseWrapper{
		RespType: respType,
		Data:     data,
	}
}

func WrapErrResponse(errMsg string) ResponseWrapper {
	return ResponseWrapper{
		RespType: RESP_ERROR,
		ErrMsg:   errMsg,
	}
}
