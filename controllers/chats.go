package controllers

import (
	"net/http"
	"strings"

	"chatbridge/models"
	"chatbridge/services"

	"github.com/gin-gonic/gin"
)

type chatView struct {
	models.ChatThread
	Sources models.SourceSet `json:"sources"`
}

func newChatView(thread models.ChatThread) chatView {
	return chatView{ChatThread: thread, Sources: thread.SourceSet()}
}

func newChatViews(threads []models.ChatThread) []chatView {
	out := make([]chatView, 0, len(threads))
	for _, t := range threads {
		out = append(out, newChatView(t))
	}
	return out
}

// loadThreadFor loads :id and checks that user may see it. CRM admins see
// every thread; everyone else only the ones they take part in.
func loadThreadFor(c *gin.Context, app *services.App, user models.User) (*models.ChatThread, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		RespondError(c, "id é obrigatório", http.StatusBadRequest)
		return nil, false
	}
	thread, err := app.Threads.GetThread(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return nil, false
	}
	if !user.IsAdmin() && !thread.HasParticipant(user.ID) {
		RespondError(c, "sem acesso a este chat", http.StatusForbidden)
		return nil, false
	}
	return thread, true
}

func isThreadAdmin(thread models.ChatThread, user models.User) bool {
	if user.IsAdmin() {
		return true
	}
	for _, p := range thread.Participants {
		if p.UserID == user.ID {
			return p.Role == models.PARTICIPANT_ROLE_ADMIN
		}
	}
	return false
}

// chatRequest resolves the logged user and the services in one go.
func chatRequest(c *gin.Context) (*services.App, models.User, bool) {
	app, ok := requireApp(c)
	if !ok {
		return nil, models.User{}, false
	}
	user, ok := GetUserLogged(c)
	if !ok {
		RespondError(c, "unauthorized", http.StatusUnauthorized)
		return nil, models.User{}, false
	}
	return app, user, true
}

// GET /api/chats
func ListChats(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	threads, err := app.Threads.ListThreads(c.Request.Context(), user.ID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newChatViews(threads))
}

type createGroupReq struct {
	Title   string  `json:"title"`
	Members []int64 `json:"members"`
}

// POST /api/chats/groups
func CreateGroupChat(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	var req createGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	thread, err := app.Threads.CreateGroup(c.Request.Context(), req.Title, user, req.Members)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newChatView(*thread))
}

type createDirectReq struct {
	UserID int64 `json:"user_id"`
}

// POST /api/chats/direct
// Returns the existing conversation when there is one.
func CreateDirectChat(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	var req createDirectReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		RespondError(c, "user_id inválido", http.StatusBadRequest)
		return
	}
	thread, err := app.Threads.CreateDirect(c.Request.Context(), user, req.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newChatView(*thread))
}

type createClientReq struct {
	ClientID       string `json:"client_id"`
	ClientName     string `json:"client_name"`
	WhatsAppNumber string `json:"whatsapp_number"`
}

// POST /api/chats/clients
// whatsapp_number is optional; when present the new chat is linked right away
// and nothing is created if the number already belongs to another chat.
func CreateClientChat(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	var req createClientReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		thread *models.ChatThread
		err    error
	)
	if strings.TrimSpace(req.WhatsAppNumber) != "" {
		thread, err = app.Bridge.CreateLinkedClientThread(c.Request.Context(), req.ClientID, req.ClientName, user, req.WhatsAppNumber)
	} else {
		thread, err = app.Threads.CreateClientThread(c.Request.Context(), req.ClientID, req.ClientName, user)
	}
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newChatView(*thread))
}

// GET /api/chats/:id
func GetChat(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	RespondSuccess(c, newChatView(*thread))
}

// DELETE /api/chats/:id
// Only groups can be deleted, and only by one of their admins.
func DeleteChat(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	if !isThreadAdmin(*thread, user) {
		RespondError(c, "apenas administradores do chat", http.StatusForbidden)
		return
	}
	if err := app.Threads.DeleteGroup(c.Request.Context(), thread.ID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

// POST /api/chats/:id/read
func MarkChatRead(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	if err := app.Threads.MarkRead(c.Request.Context(), thread.ID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

type addParticipantReq struct {
	UserID int64 `json:"user_id"`
}

// POST /api/chats/:id/participants
func AddChatParticipant(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	if !isThreadAdmin(*thread, user) {
		RespondError(c, "apenas administradores do chat", http.StatusForbidden)
		return
	}
	var req addParticipantReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		RespondError(c, "user_id inválido", http.StatusBadRequest)
		return
	}
	updated, err := app.Threads.AddParticipant(c.Request.Context(), thread.ID, req.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newChatView(*updated))
}

// DELETE /api/chats/:id/participants/:userId
// A participant may always leave; removing someone else needs chat admin.
func RemoveChatParticipant(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	target, ok := ParamID(c, "userId")
	if !ok {
		return
	}
	if target != user.ID && !isThreadAdmin(*thread, user) {
		RespondError(c, "apenas administradores do chat", http.StatusForbidden)
		return
	}
	updated, err := app.Threads.RemoveParticipant(c.Request.Context(), thread.ID, target)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newChatView(*updated))
}

// POST /api/chats/:id/participants/:userId/promote
func PromoteChatParticipant(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	target, ok := ParamID(c, "userId")
	if !ok {
		return
	}
	if !isThreadAdmin(*thread, user) {
		RespondError(c, "apenas administradores do chat", http.StatusForbidden)
		return
	}
	updated, err := app.Threads.PromoteParticipant(c.Request.Context(), thread.ID, target)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newChatView(*updated))
}

type linkWhatsAppReq struct {
	WhatsAppNumber string `json:"whatsapp_number"`
}

// POST /api/chats/:id/whatsapp
// Links the chat to a WhatsApp number. 409 when another chat already owns it.
func LinkChatWhatsApp(c *gin.Context) {
	app, user, ok := chatRequest(c)
	if !ok {
		return
	}
	thread, ok := loadThreadFor(c, app, user)
	if !ok {
		return
	}
	var req linkWhatsAppReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	if err := app.Bridge.LinkWhatsAppToInternalChat(ctx, thread.ID, req.WhatsAppNumber); err != nil {
		RespondServiceError(c, err)
		return
	}
	updated, err := app.Threads.GetThread(ctx, thread.ID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, newChatView(*updated))
}
