package game

import (
	"time"

	"go.uber.org/zap"
)

// GameMachine 是房间的状态机，负责阶段切换和事件循环
// 每个房间只有这一个写者，所有对房间文档的修改都由它串行执行
type GameMachine struct {
	ctx     *GameContext
	handler StageHandler
	// 所有客户端请求汇总的通道
	reqCh chan RequestWrapper
	// 结束通道，用于通知状态机退出事件循环
	doneCh chan struct{}

	createdAt time.Time
}

func NewGameMachine(ctx *GameContext, doneCh chan struct{}) *GameMachine {
	return &GameMachine{
		ctx:       ctx,
		handler:   newStageHandler(ctx.Room.Status),
		reqCh:     make(chan RequestWrapper, 64),
		doneCh:    doneCh,
		createdAt: time.Now(),
	}
}

func (gm *GameMachine) GetReqCh() chan RequestWrapper {
	return gm.reqCh
}

func (gm *GameMachine) Start() {
	// 执行初始 handler 的 OnEnter
	gm.handler.OnEnter(gm.ctx)

	// 进入事件循环
	for {
		var req RequestWrapper

		select {
		case req = <-gm.reqCh:
			zap.L().Debug(
				"接收到客户端请求",
				zap.String("room_code", gm.ctx.Code),
				zap.String("request_type", req.ReqType),
				zap.String("sender_id", req.SenderID),
			)
		case req = <-gm.ctx.TmoCh:
			zap.L().Debug(
				"接收到定时事件",
				zap.String("room_code", gm.ctx.Code),
			)
		case <-gm.doneCh:
			gm.ctx.ClearTimeout()
			zap.L().Info(
				"收到退出信号，结束房间状态机",
				zap.String("room_code", gm.ctx.Code),
			)
			return
		}

		// 处理请求；校验类错误回给发送者，静默跳过类错误在 handler 里直接返回 nil
		err := gm.handler.OnHandle(gm.ctx, req)
		if err != nil {
			zap.L().Debug(
				"处理请求失败",
				zap.Error(err),
				zap.String("stage", gm.handler.Stage()),
				zap.String("request_type", req.ReqType),
			)

			if req.SenderID != "" {
				gm.ctx.UnicastResp(req.SenderID, WrapErrResponse(err.Error()))
			}
		}

		// 文档里的阶段变了就切换 handler
		if gm.ctx.Room.Status != gm.handler.Stage() {
			gm.switchStage()
		}
	}
}

func (gm *GameMachine) switchStage() {
	gm.handler.OnExit(gm.ctx)

	gm.handler = newStageHandler(gm.ctx.Room.Status)

	zap.L().Info(
		"房间进入新阶段",
		zap.String("room_code", gm.ctx.Code),
		zap.String("stage", gm.handler.Stage()),
	)

	gm.handler.OnEnter(gm.ctx)
}

func (gm *GameMachine) CreatedAt() time.Time {
	return gm.createdAt
}

func newStageHandler(phase string) StageHandler {
	switch phase {
	case PHASE_LOBBY:
		return NewLobbyStageHandler()
	case PHASE_NIGHT:
		return NewNightStageHandler()
	case PHASE_DAY:
		return NewDayStageHandler()
	case PHASE_VOTING:
		return NewVotingStageHandler()
	case PHASE_FINAL:
		return NewFinalStageHandler()
	case PHASE_RESULTS:
		return NewResultsStageHandler()
	default:
		zap.L().Error(
			"未知的游戏阶段，回退到大厅",
			zap.String("stage", phase),
		)
		return NewLobbyStageHandler()
	}
}
