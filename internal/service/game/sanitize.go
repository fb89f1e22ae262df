package game

// SanitizeRoomFor 按观察者视角裁剪房间快照:
// 狼频道聊天只发给活着的狼人和发送者本人, 预言家/侦探的查验结果只发给对应角色
func SanitizeRoomFor(viewerID string, room *Room) *Room {
	if room == nil {
		return nil
	}

	out := *room
	viewer := room.Players[viewerID]

	if len(room.Chat) > 0 {
		visible := make([]ChatMessage, 0, len(room.Chat))
		for _, msg := range room.Chat {
			if msg.Audience == AUDIENCE_WEREWOLVES {
				if msg.SenderID != viewerID &&
					(viewer == nil || !viewer.IsAlive || !IsWerewolfTeam(viewer.Role)) {
					continue
				}
			}
			visible = append(visible, msg)
		}
		out.Chat = visible
	}

	if room.LastNight != nil {
		ln := *room.LastNight
		if viewer == nil || viewer.Role != ROLE_SEER {
			ln.SeerResult = nil
		}
		if viewer == nil || viewer.Role != ROLE_DETECTIVE {
			ln.DetectiveResult = nil
		}
		out.LastNight = &ln
	}

	return &out
}
