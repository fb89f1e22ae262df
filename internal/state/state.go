package state

import (
	"werewolf-be/internal/config"
	"werewolf-be/internal/service"
	"werewolf-be/internal/store"
)

type AppState struct {
	Cfg     *config.AppConfig
	RoomSvc *service.RoomService
	Store   store.RoomStore
}

func NewAppState(
	cfg *config.AppConfig,
	roomSvc *service.RoomService,
	st store.RoomStore,
) *AppState {
	return &AppState{
		Cfg:     cfg,
		RoomSvc: roomSvc,
		Store:   st,
	}
}
