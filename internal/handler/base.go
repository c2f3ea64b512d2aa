package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/labnode/lims-api/internal/model"
)

// ContextActor is the gin context key under which the auth middleware stores
// the validated actor identity.
const ContextActor = "actor"

// Actor returns the ActorContext the auth middleware attached to the request.
func Actor(c *gin.Context) model.ActorContext {
	if v, exists := c.Get(ContextActor); exists {
		if actor, ok := v.(model.ActorContext); ok {
			return actor
		}
	}
	return model.ActorContext{}
}
