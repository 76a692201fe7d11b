package controller

import (
	"github.com/syncroom/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	// router error replies share the sender's write lock
	mux := wsrouter.New(c.sender.SendRaw)

	mux.Use(c.sessionMw)

	// membership
	mux.Handle("joinRoom", c.handleJoinRoom)
	mux.Handle("leaveRoom", c.handleLeaveRoom)

	// playback
	mux.Handle("playContent", c.handlePlayContent)
	mux.Handle("loaded", c.handleLoaded)
	mux.Handle("finished", c.handleFinished)
	mux.Handle("pause", c.handlePause)
	mux.Handle("resume", c.handleResume)
	mux.Handle("seekTo", c.handleSeekTo)
	mux.Handle("resync", c.handleResync)
	mux.Handle("reportTime", c.handleReportTime)
	mux.Handle("playbackError", c.handlePlaybackError)
	mux.Handle("loop", c.handleLoop)
	mux.Handle("blockedToggle", c.handleBlockedToggle)
	mux.Handle("changePlaybackSpeed", c.handleChangePlaybackSpeed)

	// queue
	mux.Handle("queue", c.handleQueue)
	mux.Handle("clearQueue", c.handleClearQueue)
	mux.Handle("playQueued", c.handlePlayQueued)
	mux.Handle("removeQueued", c.handleRemoveQueued)

	// moderation
	mux.Handle("givePermission", c.handleGivePermission)
	mux.Handle("removePermission", c.handleRemovePermission)

	// chat
	mux.Handle("message", c.handleMessage)

	return mux
}
