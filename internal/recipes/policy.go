package recipes

// Authorize reports whether actor may mutate a recipe owned by ownerID.
// Recipes whose author was removed can only be edited by privileged users.
func Authorize(ownerID *string, actor Actor) bool {
	if actor.Privileged {
		return true
	}
	if ownerID == nil || actor.UserID == "" {
		return false
	}
	return *ownerID == actor.UserID
}

func authorizeRecipe(recipe Recipe, actor Actor) error {
	if !Authorize(recipe.AuthorID, actor) {
		return &ForbiddenError{}
	}
	return nil
}
