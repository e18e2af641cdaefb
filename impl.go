package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"nestling/api"
	"nestling/services/child"
	"nestling/services/family"
	"nestling/services/invite"
	"nestling/services/notification"
	"nestling/services/resolver"
	"nestling/services/tracking"
	"nestling/store"
	"nestling/validator"
)

type Server struct {
	FamilyService       family.Service
	InviteService       invite.Service
	ResolverService     resolver.Service
	ChildService        child.Service
	TrackingService     tracking.Service
	NotificationService notification.Service
	Users               store.UserStore
}

func NewServer(
	familyService family.Service,
	inviteService invite.Service,
	resolverService resolver.Service,
	childService child.Service,
	trackingService tracking.Service,
	notificationService notification.Service,
	users store.UserStore,
) Server {
	return Server{
		FamilyService:       familyService,
		InviteService:       inviteService,
		ResolverService:     resolverService,
		ChildService:        childService,
		TrackingService:     trackingService,
		NotificationService: notificationService,
		Users:               users,
	}
}

// RegisterRoutes mounts the authenticated API. The caller applies the
// auth middleware to the group before passing it in.
func (s Server) RegisterRoutes(r gin.IRouter) {
	r.POST("/family", s.CreateFamily)
	r.GET("/family", s.GetFamily)
	r.POST("/family/join", s.JoinFamily)
	r.POST("/family/leave", s.LeaveFamily)
	r.POST("/family/invite-code", s.RegenerateInviteCode)
	r.DELETE("/family/members/:userId", s.RemoveMember)
	r.PATCH("/family/members/:userId/role", s.UpdateMemberRole)
	r.DELETE("/family/guests/:userId", s.RevokeGuest)

	r.POST("/invites", s.CreateGuestInvite)
	r.POST("/invites/redeem", s.RedeemInvite)

	r.GET("/children/active", s.ActiveChildren)
	r.POST("/children", s.CreateChild)
	r.GET("/children", s.ListChildren)
	r.GET("/children/:childId", s.GetChild)
	r.PATCH("/children/:childId", s.UpdateChild)
	r.PUT("/children/:childId/photo", s.SetChildPhoto)
	r.GET("/children/:childId/events", s.ListEvents)
	r.GET("/children/:childId/timers", s.ActiveTimers)

	r.POST("/events", s.RecordEvent)
	r.DELETE("/events/:eventId", s.DeleteEvent)
	r.POST("/timers", s.StartTimer)
	r.POST("/timers/:timerId/stop", s.StopTimer)

	r.GET("/notifications", s.ListNotifications)
	r.POST("/notifications/:id/read", s.MarkNotificationRead)

	r.PUT("/me/push-token", s.SetPushToken)
}

func identity(c *gin.Context) (api.Identity, bool) {
	ac, ok := validator.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return api.Identity{}, false
	}
	return ac.Identity(), true
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, family.ErrNoFamily):
		return http.StatusNotFound
	case errors.Is(err, family.ErrNotAuthorized),
		errors.Is(err, invite.ErrNotAuthorized),
		errors.Is(err, child.ErrNotAuthorized),
		errors.Is(err, tracking.ErrNotAuthorized),
		errors.Is(err, notification.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, invite.ErrSelfInvite),
		errors.Is(err, invite.ErrChildMismatch),
		errors.Is(err, family.ErrSelfRemoval),
		errors.Is(err, family.ErrSelfRoleChange),
		errors.Is(err, family.ErrInvalidRole),
		errors.Is(err, tracking.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, invite.ErrExpired):
		return http.StatusGone
	case errors.Is(err, invite.ErrAlreadyUsed),
		errors.Is(err, invite.ErrAlreadyMember),
		errors.Is(err, family.ErrAlreadyMember),
		errors.Is(err, tracking.ErrTimerRunning),
		errors.Is(err, tracking.ErrTimerStopped):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s Server) CreateFamily(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.CreateFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := s.FamilyService.Create(c.Request.Context(), ident, req.ChildID, req.ChildName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (s Server) GetFamily(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	f, err := s.FamilyService.GetForUser(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s Server) JoinFamily(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.JoinFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := s.FamilyService.Join(c.Request.Context(), ident, req.Code, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s Server) LeaveFamily(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	if err := s.FamilyService.Leave(c.Request.Context(), ident); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Server) RegenerateInviteCode(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	code, err := s.FamilyService.RegenerateInviteCode(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.InviteCodeResponse{Code: code})
}

func (s Server) RemoveMember(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	if err := s.FamilyService.RemoveMember(c.Request.Context(), ident, c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Server) UpdateMemberRole(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.FamilyService.UpdateMemberRole(c.Request.Context(), ident, c.Param("userId"), req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Server) RevokeGuest(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	f, err := s.FamilyService.GetForUser(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.InviteService.RevokeGuestAccess(c.Request.Context(), ident, c.Param("userId"), f.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Server) CreateGuestInvite(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.CreateGuestInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := s.InviteService.CreateGuestInvite(c.Request.Context(), ident, req.ChildID, req.FamilyID, req.Expiry(), req.Babysitter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (s Server) RedeemInvite(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.RedeemInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := s.InviteService.JoinAsGuest(c.Request.Context(), ident, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s Server) ActiveChildren(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	children, err := s.ResolverService.Resolve(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, children)
}

func (s Server) CreateChild(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.CreateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := s.ChildService.Create(c.Request.Context(), ident, req.Name, req.BirthDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (s Server) ListChildren(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	children, err := s.ChildService.List(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, children)
}

func (s Server) GetChild(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	ch, err := s.ChildService.Get(c.Request.Context(), ident, c.Param("childId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s Server) UpdateChild(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.UpdateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := s.ChildService.Update(c.Request.Context(), ident, c.Param("childId"), req.Name, req.BirthDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s Server) SetChildPhoto(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	url, err := s.ChildService.SetPhoto(c.Request.Context(), ident, c.Param("childId"), f, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.PhotoResponse{URL: url})
}

func (s Server) RecordEvent(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev, err := s.TrackingService.Record(c.Request.Context(), ident, req.Event())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s Server) DeleteEvent(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	if err := s.TrackingService.Delete(c.Request.Context(), ident, c.Param("eventId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Server) ListEvents(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}
	events, err := s.TrackingService.List(c.Request.Context(), ident, c.Param("childId"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func parseTimeQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
		return time.Time{}, false
	}
	return t, true
}

func (s Server) StartTimer(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.StartTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	timer, err := s.TrackingService.StartTimer(c.Request.Context(), ident, req.ChildID, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, timer)
}

func (s Server) StopTimer(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	ev, err := s.TrackingService.StopTimer(c.Request.Context(), ident, c.Param("timerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s Server) ActiveTimers(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	timers, err := s.TrackingService.ActiveTimers(c.Request.Context(), ident, c.Param("childId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, timers)
}

func (s Server) ListNotifications(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	list, err := s.NotificationService.List(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s Server) MarkNotificationRead(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	if err := s.NotificationService.MarkRead(c.Request.Context(), ident, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Server) SetPushToken(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req api.PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Users.SetPushToken(c.Request.Context(), ident.UserID, req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
