package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/willsmith28/Cookbook/internal/recipes"
)

func (h *httpHandler) recipeID(c *gin.Context) (int64, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceRecipe))
	}
	return id, ok
}

func (h *httpHandler) stepOrder(c *gin.Context) (int, bool) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil || order <= 0 {
		h.respondError(c, notFound(recipes.ResourceStep))
		return 0, false
	}
	return order, true
}

func (h *httpHandler) handleListRecipes(c *gin.Context) {
	var filter recipes.ListFilter
	if raw := strings.TrimSpace(c.Query("tag")); raw != "" {
		tagID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || tagID <= 0 {
			h.respondError(c, recipes.NewValidationError("tag", "tag ID must be either a string or an integer"))
			return
		}
		filter.TagID = tagID
	}
	filter.AuthorID = strings.TrimSpace(c.Query("author"))
	if favorites, _ := strconv.ParseBool(c.Query("favorites")); favorites {
		actor := actorFromContext(c)
		if actor.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		filter.FavoritedBy = actor.UserID
	}

	summaries, err := h.recipes.ListRecipes(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *httpHandler) handleGetRecipe(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	detail, err := h.recipes.GetRecipe(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleCreateRecipe(c *gin.Context) {
	payload, err := decodePayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	draft, err := recipes.ValidateRecipePayload(payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	detail, err := h.recipes.CreateRecipe(c.Request.Context(), draft, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	// the collection endpoint answers in its list shape
	c.JSON(http.StatusCreated, detail.Summary())
}

// handleUpdateRecipe applies the keys present in the body. Collections that
// are sent replace the stored ones; collections left out are kept.
func (h *httpHandler) handleUpdateRecipe(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	payload, err := decodePayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	patch, err := recipes.ValidateRecipePatch(payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	detail, err := h.recipes.UpdateRecipe(c.Request.Context(), id, patch, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleDeleteRecipe(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	if err := h.recipes.DeleteRecipe(c.Request.Context(), id, actorFromContext(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleFavoriteRecipe(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	if err := h.recipes.FavoriteRecipe(c.Request.Context(), id, actorFromContext(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUnfavoriteRecipe(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	if err := h.recipes.UnfavoriteRecipe(c.Request.Context(), id, actorFromContext(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListRecipeIngredients(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	links, err := h.recipes.ListRecipeIngredients(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

func (h *httpHandler) handleAddRecipeIngredient(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	payload, err := decodePayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	draft, err := recipes.ValidateIngredientLinkPayload(payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	link, err := h.recipes.AddRecipeIngredient(c.Request.Context(), id, draft, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (h *httpHandler) handleGetRecipeIngredient(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	ingredientID, ok := pathID(c, "ingredient_id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceRecipeIngredient))
		return
	}
	link, err := h.recipes.GetRecipeIngredient(c.Request.Context(), id, ingredientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *httpHandler) handleUpdateRecipeIngredient(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	ingredientID, ok := pathID(c, "ingredient_id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceRecipeIngredient))
		return
	}
	payload, err := decodePayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	patch, err := recipes.ValidateIngredientLinkPatch(payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	link, err := h.recipes.UpdateRecipeIngredient(c.Request.Context(), id, ingredientID, patch, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *httpHandler) handleRemoveRecipeIngredient(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	ingredientID, ok := pathID(c, "ingredient_id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceRecipeIngredient))
		return
	}
	if err := h.recipes.RemoveRecipeIngredient(c.Request.Context(), id, ingredientID, actorFromContext(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListSteps(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	steps, err := h.recipes.ListSteps(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

func (h *httpHandler) handleAppendStep(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	instruction, ok := h.stepInstruction(c)
	if !ok {
		return
	}
	step, err := h.recipes.AppendStep(c.Request.Context(), id, instruction, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, step)
}

func (h *httpHandler) handleGetStep(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	order, ok := h.stepOrder(c)
	if !ok {
		return
	}
	step, err := h.recipes.GetStep(c.Request.Context(), id, order)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

func (h *httpHandler) handleUpdateStep(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	order, ok := h.stepOrder(c)
	if !ok {
		return
	}
	instruction, ok := h.stepInstruction(c)
	if !ok {
		return
	}
	step, err := h.recipes.UpdateStep(c.Request.Context(), id, order, instruction, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

func (h *httpHandler) handleDeleteStep(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	order, ok := h.stepOrder(c)
	if !ok {
		return
	}
	if err := h.recipes.DeleteStep(c.Request.Context(), id, order, actorFromContext(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) stepInstruction(c *gin.Context) (string, bool) {
	payload, err := decodePayload(c)
	if err != nil {
		h.respondError(c, err)
		return "", false
	}
	instruction, err := recipes.ValidateStepPayload(payload)
	if err != nil {
		h.respondError(c, err)
		return "", false
	}
	return instruction, true
}

func (h *httpHandler) handleListRecipeTags(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	tags, err := h.recipes.ListRecipeTags(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (h *httpHandler) handleAddRecipeTag(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	var request recipeTagRequest
	if _, err := bindRequest(c, &request); err != nil {
		h.respondError(c, err)
		return
	}
	tag, err := h.recipes.AddRecipeTag(c.Request.Context(), id, request.TagID, actorFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (h *httpHandler) handleRemoveRecipeTag(c *gin.Context) {
	id, ok := h.recipeID(c)
	if !ok {
		return
	}
	tagID, ok := pathID(c, "tag_id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceRecipeTag))
		return
	}
	if err := h.recipes.RemoveRecipeTag(c.Request.Context(), id, tagID, actorFromContext(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
