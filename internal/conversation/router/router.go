package router

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"conversation_sync_service/internal/conversation/api/handlers"
	"conversation_sync_service/internal/conversation/app"
	"conversation_sync_service/pkg/middlewares"
)

// RegisterRoutes wire the REST and websocket surface
func RegisterRoutes(
	r *fiber.App,
	convHandler *handlers.ConversationHandler,
	msgHandler *handlers.MessageHandler,
	profileHandler *handlers.ProfileHandler,
	syncWebsocket *app.SyncWebsocketHandler,
) {
	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		syncWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Post("/conversations", convHandler.CreateConversation)
	r.Get("/conversations", convHandler.ListConversations)
	r.Patch("/conversations/:id", convHandler.UpdateGroup)
	r.Get("/conversations/:id/participants", convHandler.ListParticipants)
	r.Post("/conversations/:id/participants", convHandler.AddParticipant)
	r.Delete("/conversations/:id/participants/:userID", convHandler.RemoveParticipant)
	r.Post("/conversations/:id/leave", convHandler.LeaveConversation)
	r.Post("/conversations/:id/read", convHandler.MarkRead)

	r.Post("/conversations/:id/messages", msgHandler.SendMessage)
	r.Get("/conversations/:id/messages", msgHandler.GetMessages)
	r.Patch("/messages/:id", msgHandler.EditMessage)
	r.Delete("/messages/:id", msgHandler.DeleteMessage)
	r.Get("/messages/:id/share-link", msgHandler.GetShareLink)
	r.Get("/conversations/:id/archived", msgHandler.GetArchivedCount)
	r.Get("/unread", msgHandler.GetUnreadCount)

	r.Put("/profile", profileHandler.UpsertProfile)
	r.Get("/profiles/:userID", profileHandler.GetProfile)
	r.Put("/organizations/profile", profileHandler.UpsertOrganizationProfile)
	r.Get("/organizations/:orgID", profileHandler.GetOrganizationProfile)
}
