package main

import (
	"fmt"

	"werewolf-be/internal/api/http"
	"werewolf-be/internal/config"
	"werewolf-be/internal/logger"
	"werewolf-be/internal/service"
	"werewolf-be/internal/state"
	"werewolf-be/internal/store"
)

func main() {
	// 加载配置
	cfg := config.InitConfig()

	// 初始化日志器
	logger.InitLogger(cfg.LogLevel)

	// 按配置选择房间存储后端
	roomStore := newRoomStore(cfg)

	// 组装应用状态
	appState := state.NewAppState(
		cfg,
		service.NewRoomService(roomStore),
		roomStore,
	)

	// 启动服务器
	http.RunServer(appState)
}

func newRoomStore(cfg *config.AppConfig) store.RoomStore {
	switch cfg.Store {
	case "redis":
		st, err := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			panic(fmt.Errorf("连接 Redis 失败: %w", err))
		}
		return st
	case "", "memory":
		return store.NewMemoryStore()
	default:
		panic(fmt.Errorf("未知的存储后端: %s", cfg.Store))
	}
}
