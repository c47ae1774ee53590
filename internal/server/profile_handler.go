package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/service/suggest"
)

// profileView is the public JSON shape of a profile.
type profileView struct {
	ID               uint64     `json:"id"`
	UserID           uint64     `json:"user_id"`
	Gender           string     `json:"gender,omitempty"`
	SexualPreference string     `json:"sexual_preference,omitempty"`
	Biography        string     `json:"biography,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	Age              int        `json:"age,omitempty"`
	FameRating       float64    `json:"fame_rating"`
	IsComplete       bool       `json:"is_complete"`
	Pictures         []gin.H    `json:"pictures"`
	Tags             []string   `json:"tags"`
}

func toProfileView(p *db.Profile) profileView {
	pics := make([]gin.H, 0, len(p.Pictures))
	for _, pic := range p.Pictures {
		pics = append(pics, gin.H{
			"id":         pic.ID,
			"file_path":  pic.FilePath,
			"is_primary": pic.IsPrimary,
		})
	}
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.Name)
	}

	view := profileView{
		ID:               p.ID,
		UserID:           p.UserID,
		Gender:           p.Gender,
		SexualPreference: p.SexualPreference,
		Biography:        p.Biography,
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		BirthDate:        p.BirthDate,
		FameRating:       p.FameRating,
		IsComplete:       p.IsComplete,
		Pictures:         pics,
		Tags:             tags,
	}
	if age := p.Age(time.Now().UTC()); age >= 0 {
		view.Age = age
	}
	return view
}

func (s *Server) handleGetMyProfile(c *gin.Context) {
	p, err := s.profiles.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileView(p))
}

func (s *Server) handleGetProfile(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return
	}

	p, err := s.profiles.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileView(p))
}

type updateProfileRequest struct {
	Gender           *string  `json:"gender"`
	SexualPreference *string  `json:"sexual_preference"`
	Biography        *string  `json:"biography"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	BirthDate        *string  `json:"birth_date"` // YYYY-MM-DD
}

func (s *Server) handleUpdateMyProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if req.Gender != nil {
		updates["gender"] = *req.Gender
	}
	if req.SexualPreference != nil {
		updates["sexual_preference"] = *req.SexualPreference
	}
	if req.Biography != nil {
		updates["biography"] = *req.Biography
	}
	if req.Latitude != nil {
		updates["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		updates["longitude"] = *req.Longitude
	}
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "birth_date must be YYYY-MM-DD"})
			return
		}
		updates["birth_date"] = birth
	}

	me, err := s.profiles.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := s.profiles.UpdateAttributes(c.Request.Context(), me.ID, updates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileView(updated))
}

type replaceTagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

func (s *Server) handleReplaceTags(c *gin.Context) {
	var req replaceTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	me, err := s.profiles.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	tags, err := s.profiles.ReplaceTags(c.Request.Context(), me.ID, req.Tags)
	if err != nil {
		respondError(c, err)
		return
	}

	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	c.JSON(http.StatusOK, gin.H{"tags": names})
}

type addPictureRequest struct {
	FilePath  string `json:"file_path" binding:"required"`
	IsPrimary bool   `json:"is_primary"`
}

func (s *Server) handleAddPicture(c *gin.Context) {
	var req addPictureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	me, err := s.profiles.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	pic, err := s.profiles.AddPicture(c.Request.Context(), me.ID, req.FilePath, req.IsPrimary)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "picture limit reached"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         pic.ID,
		"file_path":  pic.FilePath,
		"is_primary": pic.IsPrimary,
	})
}

func (s *Server) handleRemovePicture(c *gin.Context) {
	picID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid picture id"})
		return
	}

	me, err := s.profiles.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.profiles.RemovePicture(c.Request.Context(), me.ID, picID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetPrimaryPicture(c *gin.Context) {
	picID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid picture id"})
		return
	}

	me, err := s.profiles.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.profiles.SetPrimaryPicture(c.Request.Context(), me.ID, picID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSuggestions(c *gin.Context) {
	params := suggest.Params{
		Limit:  intQuery(c, "limit", 20),
		Offset: intQuery(c, "offset", 0),
		Tags:   c.QueryArray("tags"),
	}
	if v, ok := optionalIntQuery(c, "min_age"); ok {
		params.MinAge = &v
	}
	if v, ok := optionalIntQuery(c, "max_age"); ok {
		params.MaxAge = &v
	}
	if v, ok := optionalFloatQuery(c, "min_fame"); ok {
		params.MinFame = &v
	}
	if v, ok := optionalFloatQuery(c, "max_fame"); ok {
		params.MaxFame = &v
	}
	if v, ok := optionalFloatQuery(c, "max_distance"); ok {
		params.MaxDistance = &v
	}

	results, err := s.suggestSvc.Suggestions(c.Request.Context(), currentUserID(c), params)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(results))
	for i := range results {
		r := results[i]
		entry := gin.H{
			"profile":     toProfileView(&r.Profile),
			"common_tags": r.CommonTags,
			"has_liked":   r.HasLiked,
		}
		if r.DistanceKm != nil {
			entry["distance_km"] = *r.DistanceKm
		}
		if r.Age >= 0 {
			entry["age"] = r.Age
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": out})
}

func intQuery(c *gin.Context, key string, def int) int {
	if v, ok := optionalIntQuery(c, key); ok {
		return v
	}
	return def
}

func optionalIntQuery(c *gin.Context, key string) (int, bool) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func optionalFloatQuery(c *gin.Context, key string) (float64, bool) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
