package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func profileIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("profileID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleLike(c *gin.Context) {
	profileID, ok := profileIDParam(c)
	if !ok {
		return
	}

	res, err := s.interactionsSvc.Like(c.Request.Context(), currentUserID(c), profileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_match": res.IsMatch})
}

func (s *Server) handleUnlike(c *gin.Context) {
	profileID, ok := profileIDParam(c)
	if !ok {
		return
	}

	if err := s.interactionsSvc.Unlike(c.Request.Context(), currentUserID(c), profileID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBlock(c *gin.Context) {
	profileID, ok := profileIDParam(c)
	if !ok {
		return
	}

	if err := s.interactionsSvc.Block(c.Request.Context(), currentUserID(c), profileID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnblock(c *gin.Context) {
	profileID, ok := profileIDParam(c)
	if !ok {
		return
	}

	if err := s.interactionsSvc.Unblock(c.Request.Context(), currentUserID(c), profileID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleVisit(c *gin.Context) {
	profileID, ok := profileIDParam(c)
	if !ok {
		return
	}

	if err := s.interactionsSvc.Visit(c.Request.Context(), currentUserID(c), profileID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reportRequest struct {
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) handleReport(c *gin.Context) {
	profileID, ok := profileIDParam(c)
	if !ok {
		return
	}

	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.interactionsSvc.Report(c.Request.Context(), currentUserID(c), profileID, req.Reason, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleLikesReceived(c *gin.Context) {
	var token *string
	if raw, ok := c.GetQuery("token"); ok && raw != "" {
		token = &raw
	}

	entries, next, err := s.interactionsSvc.LikesReceived(
		c.Request.Context(), currentUserID(c), token, intQuery(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	total, err := s.interactionsSvc.LikeCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		out = append(out, gin.H{
			"profile":  toProfileView(&entries[i].Profile),
			"liked_at": entries[i].OccurredAt.UTC().Format(time.RFC3339),
		})
	}

	resp := gin.H{"likes": out, "total": total}
	if next != nil {
		resp["next_token"] = *next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleVisitsReceived(c *gin.Context) {
	var token *string
	if raw, ok := c.GetQuery("token"); ok && raw != "" {
		token = &raw
	}

	entries, next, err := s.interactionsSvc.VisitsReceived(
		c.Request.Context(), currentUserID(c), token, intQuery(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	total, err := s.interactionsSvc.VisitCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		out = append(out, gin.H{
			"profile":    toProfileView(&entries[i].Profile),
			"visited_at": entries[i].OccurredAt.UTC().Format(time.RFC3339),
		})
	}

	resp := gin.H{"visits": out, "total": total}
	if next != nil {
		resp["next_token"] = *next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMatches(c *gin.Context) {
	matches, err := s.interactionsSvc.Matches(
		c.Request.Context(), currentUserID(c), intQuery(c, "limit", 20), intQuery(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(matches))
	for i := range matches {
		out = append(out, gin.H{
			"profile":    toProfileView(&matches[i].Profile),
			"matched_at": matches[i].Connection.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}
