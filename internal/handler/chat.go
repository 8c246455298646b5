package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"sudooom.im.client/internal/store"
	"sudooom.im.client/pkg/response"
	appErrors "sudooom.im.client/shared/errors"
)

// Actions 同步控制器对外动作
type Actions interface {
	OpenConversation(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, content []byte) error
	ToggleConversationView(ctx context.Context) error
	ToggleChat(ctx context.Context) error
	RefreshConversations(ctx context.Context) error
}

// ChatHandler 本地 UI 接口：读取会话存储，转发用户动作
type ChatHandler struct {
	actions Actions
	store   *store.Store
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(actions Actions, st *store.Store) *ChatHandler {
	return &ChatHandler{actions: actions, store: st}
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Content string `json:"content"`
}

// GetState 完整状态快照
func (h *ChatHandler) GetState(c *gin.Context) {
	response.Success(c, h.store.Snapshot())
}

// GetStateYAML 以 YAML 输出状态快照，便于命令行查看
func (h *ChatHandler) GetStateYAML(c *gin.Context) {
	out, err := yaml.Marshal(h.store.Snapshot())
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	c.Data(http.StatusOK, "application/x-yaml; charset=utf-8", out)
}

// GetConversations 会话列表
func (h *ChatHandler) GetConversations(c *gin.Context) {
	response.Success(c, h.store.Conversations())
}

// GetConversationMessages 指定会话的消息日志
func (h *ChatHandler) GetConversationMessages(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.store.Conversation(id); !ok {
		response.ErrorFromAppError(c, appErrors.ErrConversationNotFound)
		return
	}
	response.Success(c, h.store.Messages(id))
}

// GetActiveMessages 当前会话消息日志
func (h *ChatHandler) GetActiveMessages(c *gin.Context) {
	response.Success(c, gin.H{
		"conversationId": h.store.ActiveConversationID(),
		"messages":       h.store.ActiveMessages(),
	})
}

// GetUnread 各会话未读数
func (h *ChatHandler) GetUnread(c *gin.Context) {
	response.Success(c, h.store.UnreadCounts())
}

// GetPresence 当前会话对方在线状态
func (h *ChatHandler) GetPresence(c *gin.Context) {
	response.Success(c, gin.H{
		"conversationId": h.store.ActiveConversationID(),
		"online":         h.store.Online(),
	})
}

// Events 以 SSE 推送状态快照，消费慢时只收到最新快照
func (h *ChatHandler) Events(c *gin.Context) {
	updates, cancel := h.store.Watch()
	defer cancel()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("state", snap)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// OpenConversation 打开会话
func (h *ChatHandler) OpenConversation(c *gin.Context) {
	h.reply(c, h.actions.OpenConversation(c.Request.Context(), c.Param("id")))
}

// SendMessage 向当前会话发送消息
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidParams, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		response.ErrorFromAppError(c, appErrors.ErrEmptyContent)
		return
	}
	h.reply(c, h.actions.SendMessage(c.Request.Context(), []byte(req.Content)))
}

// ToggleChat 打开或关闭聊天窗口
func (h *ChatHandler) ToggleChat(c *gin.Context) {
	h.reply(c, h.actions.ToggleChat(c.Request.Context()))
}

// ToggleView 切换会话视图
func (h *ChatHandler) ToggleView(c *gin.Context) {
	h.reply(c, h.actions.ToggleConversationView(c.Request.Context()))
}

// RefreshConversations 重新拉取会话列表
func (h *ChatHandler) RefreshConversations(c *gin.Context) {
	h.reply(c, h.actions.RefreshConversations(c.Request.Context()))
}

func (h *ChatHandler) reply(c *gin.Context, err error) {
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}
	response.Success(c, nil)
}
