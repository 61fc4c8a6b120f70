package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/willsmith28/Cookbook/internal/mealplans"
)

const resourceMealPlan = "Meal plan"

type realtimeEventPayload struct {
	PlanIDs   []int64 `json:"planIds"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

func (h *httpHandler) mealPlanID(c *gin.Context) (int64, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		h.respondError(c, notFound(resourceMealPlan))
	}
	return id, ok
}

func (h *httpHandler) handleListMealPlans(c *gin.Context) {
	historical, _ := strconv.ParseBool(c.Query("historical"))
	plans, err := h.mealPlans.List(c.Request.Context(), actorFromContext(c), historical)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (h *httpHandler) handleGetMealPlan(c *gin.Context) {
	id, ok := h.mealPlanID(c)
	if !ok {
		return
	}
	plan, err := h.mealPlans.Get(c.Request.Context(), id, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *httpHandler) handleCreateMealPlan(c *gin.Context) {
	var request mealPlanRequest
	if _, err := bindRequest(c, &request); err != nil {
		h.respondError(c, err)
		return
	}
	plan, err := h.mealPlans.Create(c.Request.Context(), mealplans.PlanInput{
		RecipeID:    request.RecipeID,
		PlannedDate: request.PlannedDate,
		Meal:        request.Meal,
		Cooked:      request.Cooked,
	}, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishPlanChange(plan.UserID, plan.ID)
	c.JSON(http.StatusCreated, plan)
}

func (h *httpHandler) handleUpdateMealPlan(c *gin.Context) {
	id, ok := h.mealPlanID(c)
	if !ok {
		return
	}
	var request mealPlanPatchRequest
	keys, err := bindRequest(c, &request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	_, hasMeal := keys["meal"]
	plan, err := h.mealPlans.Update(c.Request.Context(), id, mealplans.PlanPatch{
		RecipeID:    request.RecipeID,
		PlannedDate: request.PlannedDate,
		Meal:        request.Meal,
		HasMeal:     hasMeal,
		Cooked:      request.Cooked,
	}, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishPlanChange(plan.UserID, plan.ID)
	c.JSON(http.StatusOK, plan)
}

func (h *httpHandler) handleDeleteMealPlan(c *gin.Context) {
	id, ok := h.mealPlanID(c)
	if !ok {
		return
	}
	actor := actorFromContext(c)
	plan, err := h.mealPlans.Get(c.Request.Context(), id, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.mealPlans.Delete(c.Request.Context(), id, actor); err != nil {
		h.respondError(c, err)
		return
	}
	h.publishPlanChange(plan.UserID, plan.ID)
	c.Status(http.StatusNoContent)
}

// handleMealPlanStream keeps a server sent events stream open and emits an
// event whenever one of the caller's plans changes.
func (h *httpHandler) handleMealPlanStream(c *gin.Context) {
	userID := actorFromContext(c).UserID
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{PlanIDs: []int64{}, Timestamp: time.Now().UTC().Format(time.RFC3339), Source: realtimeSourceBackend})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				PlanIDs:   message.PlanIDs,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{PlanIDs: []int64{}, Timestamp: tick.UTC().Format(time.RFC3339), Source: realtimeSourceBackend})
			return true
		}
	})
}

func (h *httpHandler) publishPlanChange(userID string, planID int64) {
	h.realtime.Publish(RealtimeMessage{
		UserID:    userID,
		EventType: RealtimeEventMealPlanChanged,
		PlanIDs:   []int64{planID},
		Timestamp: time.Now().UTC(),
	})
}
