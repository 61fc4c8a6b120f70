package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/willsmith28/Cookbook/internal/recipes"
)

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *httpHandler) handleListIngredients(c *gin.Context) {
	ingredients, err := h.recipes.ListIngredients(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ingredients)
}

func (h *httpHandler) handleListUnits(c *gin.Context) {
	c.JSON(http.StatusOK, recipes.Units())
}

func (h *httpHandler) handleGetIngredient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceIngredient))
		return
	}
	ingredient, err := h.recipes.GetIngredient(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ingredient)
}

func (h *httpHandler) handleCreateIngredient(c *gin.Context) {
	var request ingredientRequest
	if _, err := bindRequest(c, &request); err != nil {
		h.respondError(c, err)
		return
	}
	ingredient, created, err := h.recipes.CreateIngredient(c.Request.Context(), recipes.IngredientInput{
		Name:     request.Name,
		RecipeID: request.RecipeID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(createdStatus(created), ingredient)
}

func (h *httpHandler) handleDeleteIngredient(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceIngredient))
		return
	}
	if err := h.recipes.DeleteIngredient(c.Request.Context(), id, actorFromContext(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListTags(c *gin.Context) {
	var kind *recipes.TagKind
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		parsed, ok := recipes.ParseTagKind(raw)
		if !ok {
			h.respondError(c, recipes.NewValidationError("kind", "Invalid Tag Kind"))
			return
		}
		kind = &parsed
	}
	tags, err := h.recipes.ListTags(c.Request.Context(), kind)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (h *httpHandler) handleListTagKinds(c *gin.Context) {
	c.JSON(http.StatusOK, recipes.TagKinds())
}

func (h *httpHandler) handleGetTag(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		h.respondError(c, notFound(recipes.ResourceTag))
		return
	}
	tag, err := h.recipes.GetTag(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (h *httpHandler) handleCreateTag(c *gin.Context) {
	var request tagRequest
	if _, err := bindRequest(c, &request); err != nil {
		h.respondError(c, err)
		return
	}
	input := recipes.TagInput{Value: request.Value}
	if request.Kind != nil {
		kind, _ := recipes.ParseTagKind(*request.Kind)
		input.Kind = &kind
	}
	tag, created, err := h.recipes.CreateTag(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(createdStatus(created), tag)
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}
