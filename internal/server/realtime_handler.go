package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/service/realtime"
)

// newUpgrader builds the handshake upgrader. An empty allow list accepts any
// origin, which suits local development; deployments set WS_ALLOWED_ORIGINS.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}
}

// handleWebsocket authenticates via the token query parameter (browsers
// cannot set headers on websocket handshakes) and hands the connection to a
// Session.
func (s *Server) handleWebsocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	userID, err := s.authSvc.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.appCtx.Logger.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	session := realtime.NewSession(s.appCtx, s.realtimeSvc, userID, conn)
	go session.Run()
}

func (s *Server) handleNotificationCount(c *gin.Context) {
	unread, err := s.realtimeSvc.UnreadNotificationCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": unread})
}

func (s *Server) handleNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"

	notifs, err := s.realtimeSvc.Notifications(
		c.Request.Context(), currentUserID(c),
		intQuery(c, "limit", 20), intQuery(c, "offset", 0), unreadOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(notifs))
	for _, n := range notifs {
		entry := gin.H{
			"id":         n.ID,
			"type":       n.Type,
			"content":    n.Content,
			"is_read":    n.IsRead,
			"created_at": n.CreatedAt.UTC().Format(time.RFC3339),
		}
		if n.SenderID != nil {
			entry["sender_id"] = *n.SenderID
		}
		out = append(out, entry)
	}

	unread, err := s.realtimeSvc.UnreadNotificationCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out, "unread_count": unread})
}

func (s *Server) handleMarkNotificationRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	if err := s.realtimeSvc.MarkNotificationRead(c.Request.Context(), id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMarkAllNotificationsRead(c *gin.Context) {
	count, err := s.realtimeSvc.MarkAllNotificationsRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": count})
}

func userIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

func messageView(m *db.Message) gin.H {
	return gin.H{
		"id":           m.ID,
		"sender_id":    m.SenderID,
		"recipient_id": m.RecipientID,
		"content":      m.Content,
		"is_read":      m.IsRead,
		"created_at":   m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleMessages(c *gin.Context) {
	otherID, ok := userIDParam(c)
	if !ok {
		return
	}

	messages, err := s.realtimeSvc.MessagesWith(
		c.Request.Context(), currentUserID(c), otherID,
		intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(messages))
	for i := range messages {
		out = append(out, messageView(&messages[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	otherID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := s.realtimeSvc.SendMessage(c.Request.Context(), currentUserID(c), otherID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, messageView(msg))
}

func (s *Server) handleConversations(c *gin.Context) {
	convos, err := s.realtimeSvc.Conversations(
		c.Request.Context(), currentUserID(c), intQuery(c, "limit", 20), intQuery(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(convos))
	for _, convo := range convos {
		entry := gin.H{
			"peer_user_id": convo.PeerUserID,
			"peer": gin.H{
				"id":         convo.Peer.ID,
				"username":   convo.Peer.Username,
				"first_name": convo.Peer.FirstName,
				"is_online":  s.realtimeSvc.IsOnline(c.Request.Context(), convo.PeerUserID),
			},
			"unread_count": convo.UnreadCount,
		}
		if convo.LastMessage != nil {
			entry["last_message"] = messageView(convo.LastMessage)
		}
		out = append(out, entry)
	}

	totalUnread, err := s.realtimeSvc.UnreadMessageCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out, "total_unread": totalUnread})
}
