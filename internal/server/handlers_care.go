package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
)

func (a *App) requireRepo(c *gin.Context) (AuthUser, bool) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return AuthUser{}, false
	}
	if a.repo == nil {
		writeError(c, http.StatusServiceUnavailable, "Storage is not configured")
		return AuthUser{}, false
	}
	return user, true
}

func (a *App) listReminders(c *gin.Context) {
	user, ok := a.requireRepo(c)
	if !ok {
		return
	}
	day := a.resolver.Today()
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, a.resolver.Location())
		if err != nil {
			writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	reminders, err := a.repo.RemindersBetween(c.Request.Context(), user.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		log.Printf("list reminders failed user_id=%s err=%v", user.ID, err)
		writeError(c, http.StatusInternalServerError, "Failed to load reminders")
		return
	}
	c.JSON(http.StatusOK, listRemindersResponse{Date: day.Format("2006-01-02"), Reminders: reminders})
}

func (a *App) createReminder(c *gin.Context) {
	user, ok := a.requireRepo(c)
	if !ok {
		return
	}
	var payload createReminderRequest
	if !mustJSON(c, &payload) {
		return
	}
	title := strings.TrimSpace(payload.Title)
	if title == "" {
		writeError(c, http.StatusBadRequest, "title is required")
		return
	}

	var startAt time.Time
	switch {
	case payload.StartAt != nil:
		startAt = payload.StartAt.In(a.resolver.Location())
	case strings.TrimSpace(payload.When) != "":
		resolved, _, err := a.resolver.Resolve(payload.When, datetime.DefaultClock)
		if err != nil {
			writeError(c, http.StatusBadRequest, "when could not be understood")
			return
		}
		startAt = resolved
	default:
		writeError(c, http.StatusBadRequest, "startAt or when is required")
		return
	}
	if payload.EndAt != nil && payload.EndAt.Before(startAt) {
		writeError(c, http.StatusBadRequest, "endAt must not be before startAt")
		return
	}

	category := assistant.Category(strings.ToLower(strings.TrimSpace(payload.Category)))
	if category == "" {
		category = assistant.CategoryFor(title)
	}
	if !category.Valid() {
		writeError(c, http.StatusBadRequest, "Invalid category")
		return
	}
	remindAt := startAt
	if payload.RemindAt != nil {
		remindAt = *payload.RemindAt
	}

	saved, err := a.repo.CreateReminder(c.Request.Context(), assistant.Reminder{
		UserID:      user.ID,
		Title:       title,
		Category:    category,
		Description: strings.TrimSpace(payload.Description),
		Location:    strings.TrimSpace(payload.Location),
		StartAt:     startAt,
		EndAt:       payload.EndAt,
		RemindAt:    remindAt,
	})
	if err != nil {
		log.Printf("create reminder failed user_id=%s err=%v", user.ID, err)
		writeError(c, http.StatusInternalServerError, "Failed to create reminder")
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (a *App) completeReminder(c *gin.Context) {
	user, ok := a.requireRepo(c)
	if !ok {
		return
	}
	reminderID := strings.TrimSpace(c.Param("id"))
	err := a.repo.CompleteReminder(c.Request.Context(), user.ID, reminderID, a.resolver.Now())
	if errors.Is(err, assistant.ErrNoSuchItem) {
		writeError(c, http.StatusNotFound, "Reminder not found")
		return
	}
	if err != nil {
		log.Printf("complete reminder failed user_id=%s reminder_id=%s err=%v", user.ID, reminderID, err)
		writeError(c, http.StatusInternalServerError, "Failed to complete reminder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": reminderID, "completed": true})
}

func (a *App) listFriendInvites(c *gin.Context) {
	user, ok := a.requireRepo(c)
	if !ok {
		return
	}
	invites, err := a.repo.PendingFriendInvites(c.Request.Context(), user.ID)
	if err != nil {
		log.Printf("list friend invites failed user_id=%s err=%v", user.ID, err)
		writeError(c, http.StatusInternalServerError, "Failed to load friend invites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (a *App) respondFriendInvite(c *gin.Context) {
	user, ok := a.requireRepo(c)
	if !ok {
		return
	}
	var payload respondInviteRequest
	if !mustJSON(c, &payload) {
		return
	}
	if payload.Accept == nil {
		writeError(c, http.StatusBadRequest, "accept is required")
		return
	}
	inviteID := strings.TrimSpace(c.Param("id"))
	err := a.repo.RespondFriendInvite(c.Request.Context(), user.ID, inviteID, *payload.Accept)
	if errors.Is(err, assistant.ErrNoSuchItem) {
		writeError(c, http.StatusNotFound, "Friend invite not found")
		return
	}
	if err != nil {
		log.Printf("respond friend invite failed user_id=%s invite_id=%s err=%v", user.ID, inviteID, err)
		writeError(c, http.StatusInternalServerError, "Failed to respond to friend invite")
		return
	}
	status := "declined"
	if *payload.Accept {
		status = "accepted"
	}
	c.JSON(http.StatusOK, gin.H{"id": inviteID, "status": status})
}

func (a *App) listActivityInvites(c *gin.Context) {
	user, ok := a.requireRepo(c)
	if !ok {
		return
	}
	invites, err := a.repo.PendingActivityInvites(c.Request.Context(), user.ID)
	if err != nil {
		log.Printf("list activity invites failed user_id=%s err=%v", user.ID, err)
		writeError(c, http.StatusInternalServerError, "Failed to load activity invites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (a *App) respondActivityInvite(c *gin.Context) {
	user, ok := a.requireRepo(c)
	if !ok {
		return
	}
	var payload respondInviteRequest
	if !mustJSON(c, &payload) {
		return
	}
	if payload.Accept == nil {
		writeError(c, http.StatusBadRequest, "accept is required")
		return
	}
	eventID := strings.TrimSpace(c.Param("id"))
	err := a.repo.RespondActivityInvite(c.Request.Context(), user.ID, eventID, *payload.Accept)
	if errors.Is(err, assistant.ErrNoSuchItem) {
		writeError(c, http.StatusNotFound, "Activity invite not found")
		return
	}
	if err != nil {
		log.Printf("respond activity invite failed user_id=%s event_id=%s err=%v", user.ID, eventID, err)
		writeError(c, http.StatusInternalServerError, "Failed to respond to activity invite")
		return
	}
	status := "declined"
	if *payload.Accept {
		status = "going"
	}
	c.JSON(http.StatusOK, gin.H{"eventId": eventID, "status": status})
}

func (a *App) getWizardSession(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if a.wizard == nil {
		c.JSON(http.StatusOK, wizardSessionResponse{})
		return
	}
	session, found, err := a.wizard.Session(c.Request.Context(), user.ID)
	if err != nil {
		log.Printf("load wizard session failed user_id=%s err=%v", user.ID, err)
		writeError(c, http.StatusInternalServerError, "Failed to load activity session")
		return
	}
	if !found {
		c.JSON(http.StatusOK, wizardSessionResponse{})
		return
	}
	c.JSON(http.StatusOK, wizardSessionResponse{Active: true, Session: &session})
}

func (a *App) cancelWizardSession(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if a.wizard != nil {
		if err := a.wizard.Cancel(c.Request.Context(), user.ID); err != nil {
			log.Printf("cancel wizard session failed user_id=%s err=%v", user.ID, err)
			writeError(c, http.StatusInternalServerError, "Failed to cancel activity session")
			return
		}
	}
	c.Status(http.StatusNoContent)
}
