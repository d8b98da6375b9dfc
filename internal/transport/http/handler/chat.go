package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsvc "docqa/internal/app"
	"docqa/internal/model"
	"docqa/internal/transport/http/response"
)

// ChatService drives multi-turn sessions.
type ChatService interface {
	Open(ctx context.Context, id string, existing *appsvc.Session) (*appsvc.Session, error)
	Ask(ctx context.Context, sess *appsvc.Session, input appsvc.SendInput) (*appsvc.SendResult, error)
	Clear(ctx context.Context, sess *appsvc.Session) error
}

// ChatHandler keeps live sessions in memory and restores unknown ids from
// the chat store.
type ChatHandler struct {
	chat ChatService

	mu       sync.Mutex
	sessions map[string]*appsvc.Session
}

type sendMessageRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k" binding:"omitempty,min=1,max=50"`
}

type sessionView struct {
	ID    string           `json:"id"`
	Turns []model.ChatTurn `json:"turns"`
}

func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat, sessions: make(map[string]*appsvc.Session)}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	sess, err := h.chat.Open(c.Request.Context(), uuid.NewString(), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	h.mu.Lock()
	h.sessions[sess.ID] = sess
	h.mu.Unlock()

	c.JSON(http.StatusCreated, response.APIResponse{
		Code:    response.CodeOK,
		Message: "ok",
		Data:    sessionView{ID: sess.ID, Turns: []model.ChatTurn{}},
	})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	sess, err := h.lookup(c)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, sessionView{ID: sess.ID, Turns: sess.Turns()})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}
	sess, err := h.lookup(c)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.chat.Ask(c.Request.Context(), sess, appsvc.SendInput{
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sess, err := h.lookup(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.chat.Clear(c.Request.Context(), sess); err != nil {
		writeError(c, err)
		return
	}
	h.mu.Lock()
	delete(h.sessions, sess.ID)
	h.mu.Unlock()
	response.OK(c, gin.H{"id": sess.ID})
}

// lookup returns the live session for the :id path parameter. Unknown ids
// are restored from the store and are not found when it holds no turns.
func (h *ChatHandler) lookup(c *gin.Context) (*appsvc.Session, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, appsvc.ErrInvalidInput
	}

	h.mu.Lock()
	sess, ok := h.sessions[id]
	h.mu.Unlock()
	if ok {
		return sess, nil
	}

	sess, err := h.chat.Open(c.Request.Context(), id, nil)
	if err != nil {
		return nil, err
	}
	if sess.Len() == 0 {
		return nil, appsvc.ErrSessionNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if live, ok := h.sessions[id]; ok {
		return live, nil
	}
	h.sessions[id] = sess
	return sess, nil
}
