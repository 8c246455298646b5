package controller

import "sudooom.im.client/internal/presence"

func presenceEvent(userID int64, online bool) presence.Event {
	return presence.Event{UserID: userID, Online: online}
}
