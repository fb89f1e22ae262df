package service

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"werewolf-be/internal/service/game"
	"werewolf-be/internal/store"
)

// 生成房间码的碰撞重试上限
const maxRoomCodeRetries = 5

type RoomService struct {
	state *roomServiceState
	store store.RoomStore
}

type roomServiceState struct {
	mu sync.RWMutex

	// 均为从房间码到实体的映射
	machines map[string]*game.GameMachine
	reqChs   map[string]chan game.RequestWrapper
	doneChs  map[string]chan struct{}

	cleanUpDone chan struct{}
}

func NewRoomService(st store.RoomStore) *RoomService {
	state := &roomServiceState{
		machines:    make(map[string]*game.GameMachine),
		reqChs:      make(map[string]chan game.RequestWrapper),
		doneChs:     make(map[string]chan struct{}),
		cleanUpDone: make(chan struct{}),
	}

	rs := &RoomService{
		state: state,
		store: st,
	}

	// 启动一个 goroutine 定期清理过期的房间
	go rs.startCleanupLoop()

	return rs
}

func (rs *RoomService) startCleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rs.state.cleanUpDone:
			return

		case <-ticker.C:
			rs.state.mu.Lock()

			for code := range rs.state.machines {
				doc, err := rs.store.Get(code)
				if err != nil && !errors.Is(err, store.ErrRoomNotFound) {
					zap.S().Warnf("清理时读取房间 %s 失败: %v", code, err)
					continue
				}
				if err == nil && !isRoomExpired(doc) {
					continue
				}

				zap.S().Infof("房间 %s 状态失效，开始清理", code)

				// 通知对应的状态机 goroutine 退出
				close(rs.state.doneChs[code])
				delete(rs.state.doneChs, code)

				delete(rs.state.machines, code)
				delete(rs.state.reqChs, code)

				if err := rs.store.Delete(code); err != nil && !errors.Is(err, store.ErrRoomNotFound) {
					zap.S().Warnf("删除房间 %s 文档失败: %v", code, err)
				}
			}

			rs.state.mu.Unlock()
		}
	}
}

func (rs *RoomService) Close() {
	close(rs.state.cleanUpDone)

	rs.state.mu.Lock()
	defer rs.state.mu.Unlock()

	for code, doneCh := range rs.state.doneChs {
		close(doneCh)
		delete(rs.state.doneChs, code)
	}
}

// CreateRoom 创建房间并启动其状态机，房主先占座，
// 之后通过 WebSocket 带 player_id 加入时换绑连接
func (rs *RoomService) CreateRoom(req CreateRoomRequest) (CreateRoomResponse, error) {
	creatorName := strings.TrimSpace(req.CreatorName)
	if creatorName == "" {
		return CreateRoomResponse{}, errors.New("创建者昵称不能为空")
	}

	creator := game.Player{
		ID:       game.ShortID(),
		Name:     creatorName,
		IsHost:   true,
		IsAlive:  true,
		JoinedAt: time.Now().UnixMilli(),
	}

	room := game.NewRoom(creator)

	// 房间码空间足够大，连续碰撞说明出了别的问题
	var code string
	for retry := 0; ; retry++ {
		if retry >= maxRoomCodeRetries {
			return CreateRoomResponse{}, errors.New("生成房间码失败")
		}

		code = game.NewRoomCode()
		room.Code = code

		err := rs.store.Put(code, room)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrRoomExists) {
			continue
		}
		return CreateRoomResponse{}, err
	}

	ctx := game.NewGameContext(code, rs.store)
	if err := ctx.Reload(); err != nil {
		return CreateRoomResponse{}, err
	}

	doneCh := make(chan struct{})
	machine := game.NewGameMachine(ctx, doneCh)

	rs.state.mu.Lock()
	rs.state.machines[code] = machine
	rs.state.reqChs[code] = machine.GetReqCh()
	rs.state.doneChs[code] = doneCh
	rs.state.mu.Unlock()

	go machine.Start()

	zap.S().Infof("房间 %s 由 %s 创建", code, creatorName)

	return CreateRoomResponse{
		RoomCode: code,
		Creator:  creator,
	}, nil
}

// JoinRoom 把加入请求投递给房间状态机，返回该房间的请求通道
// 加入结果由状态机通过 req.RespCh 异步回复
func (rs *RoomService) JoinRoom(req *game.JoinGameRequest) (chan game.RequestWrapper, error) {
	if req.RoomCode == "" {
		return nil, errors.New("房间码不能为空")
	}

	rs.state.mu.RLock()
	reqCh, ok := rs.state.reqChs[req.RoomCode]
	rs.state.mu.RUnlock()

	if !ok {
		return nil, errors.New("房间不存在")
	}

	wrapper := game.RequestWrapper{
		ReqType:    game.REQ_JOIN_GAME,
		NativeData: req,
	}

	reqTimer := time.NewTimer(5 * time.Second)
	defer reqTimer.Stop()

	select {
	case reqCh <- wrapper:
		return reqCh, nil

	case <-reqTimer.C:
		zap.S().Warnf("房间 %s 无法及时处理加入请求，%s 发送失败", req.RoomCode, req.PlayerName)
		return nil, errors.New("加入房间失败")
	}
}
