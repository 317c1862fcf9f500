// Package api exposes the HTTP endpoints and the WebSocket upgrade path.
// The HTTP handlers are thin: they call the storage service directly and
// never touch the fan-out core.
package api

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/harborchat/harbor/src/auth"
	"github.com/harborchat/harbor/src/hub"
	"github.com/harborchat/harbor/src/presence"
	"github.com/harborchat/harbor/src/session"
	"github.com/harborchat/harbor/src/store"
	"github.com/harborchat/harbor/src/store/sqlite"
	"github.com/harborchat/harbor/src/types"
)

// API wires the HTTP and WebSocket surface of the server.
type API struct {
	store    *sqlite.Store
	tokens   *auth.Service
	hub      *hub.Hub
	session  *session.Handler
	presence presence.Tracker
	logger   zerolog.Logger
}

// New creates the API surface.
func New(st *sqlite.Store, tokens *auth.Service, h *hub.Hub, sess *session.Handler, tracker presence.Tracker, logger zerolog.Logger) *API {
	if tracker == nil {
		tracker = presence.Nop{}
	}
	return &API{
		store:    st,
		tokens:   tokens,
		hub:      h,
		session:  sess,
		presence: tracker,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the HTTP routes. The WebSocket upgrade itself is
// served by FastHTTPHandler, registered at the server level since Fiber v3
// does not expose *fasthttp.RequestCtx.
func (a *API) RegisterRoutes(app fiber.Router) {
	api := app.Group("/api")
	api.Post("/register", a.handleRegister)
	api.Post("/login", a.handleLogin)
	api.Get("/profile", a.handleProfile)
	api.Get("/users/search", a.handleSearchUsers)
	api.Get("/users/:id/presence", a.handleUserPresence)
	api.Post("/friends/requests", a.handleSendFriendRequest)
	api.Post("/friends/requests/:id", a.handleRespondFriendRequest)
	api.Get("/friends/requests", a.handleListFriendRequests)
	api.Get("/friends", a.handleListFriends)
	api.Post("/rooms", a.handleCreateRoom)
	api.Get("/rooms", a.handleListRooms)
	api.Get("/rooms/:id/messages", a.handleRoomMessages)
	api.Get("/rooms/:id/online", a.handleRoomOnline)

	app.Get("/ws/info", a.handleInfo)
}

// currentUser resolves the bearer token on a request to a stored user.
func (a *API) currentUser(c fiber.Ctx) (store.User, error) {
	token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if token == "" {
		return store.User{}, errors.New("authentication required")
	}
	identity, err := a.tokens.Verify(token)
	if err != nil {
		return store.User{}, errors.New("authentication required")
	}
	return a.store.UserByID(c.Context(), identity.UserID)
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
}

func (a *API) handleRegister(c fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username and password required"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	user, err := a.store.CreateUser(c.Context(), req.Username, req.Email, string(hash))
	if errors.Is(err, store.ErrUsernameTaken) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username already exists"})
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("register failed")
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "User created successfully",
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (a *API) handleLogin(c fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	user, err := a.store.UserByUsername(c.Context(), req.Username)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	}
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	token, err := a.tokens.Issue(user.ID, user.Username)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issue failed")
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{
		"token":    token,
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (a *API) handleProfile(c fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}
	return c.JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

func (a *API) handleSearchUsers(c fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return c.JSON(fiber.Map{"users": []any{}})
	}

	results, err := a.store.SearchUsers(c.Context(), user.ID, query)
	if err != nil {
		a.logger.Error().Err(err).Msg("user search failed")
		return fiber.ErrInternalServerError
	}
	users := make([]fiber.Map, 0, len(results))
	for _, r := range results {
		users = append(users, fiber.Map{
			"id":                r.ID,
			"username":          r.Username,
			"email":             r.Email,
			"friendship_status": r.FriendshipStatus,
		})
	}
	return c.JSON(fiber.Map{"users": users})
}

func (a *API) handleUserPresence(c fiber.Ctx) error {
	if _, err := a.currentUser(c); err != nil {
		return unauthorized(c)
	}
	userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	online, lastSeen, err := a.presence.Status(c.Context(), userID)
	if err != nil {
		a.logger.Warn().Err(err).Int64("user_id", userID).Msg("presence lookup failed")
		return fiber.ErrInternalServerError
	}
	resp := fiber.Map{"user_id": userID, "online": online}
	if !lastSeen.IsZero() {
		resp["last_seen"] = lastSeen
	}
	return c.JSON(resp)
}

func (a *API) handleSendFriendRequest(c fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}
	var req struct {
		ReceiverID int64 `json:"receiver_id"`
	}
	if err := c.Bind().Body(&req); err != nil || req.ReceiverID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "receiver_id required"})
	}

	fr, err := a.store.CreateFriendRequest(c.Context(), user.ID, req.ReceiverID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, store.ErrSelfRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot send friend request to yourself"})
	case errors.Is(err, store.ErrAlreadyFriends):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Already friends"})
	case errors.Is(err, store.ErrRequestExists):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Friend request already exists"})
	case err != nil:
		a.logger.Error().Err(err).Msg("friend request failed")
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Friend request sent",
		"request_id": fr.ID,
	})
}

func (a *API) handleRespondFriendRequest(c fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}
	requestID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request id"})
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := c.Bind().Body(&req); err != nil || (req.Action != "accept" && req.Action != "reject") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid action"})
	}

	err = a.store.RespondFriendRequest(c.Context(), requestID, user.ID, req.Action == "accept")
	if errors.Is(err, store.ErrRequestNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Friend request not found"})
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("friend request response failed")
		return fiber.ErrInternalServerError
	}
	if req.Action == "accept" {
		return c.JSON(fiber.Map{"message": "Friend request accepted"})
	}
	return c.JSON(fiber.Map{"message": "Friend request rejected"})
}

func (a *API) handleListFriendRequests(c fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}
	received, sent, err := a.store.PendingRequests(c.Context(), user.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("friend request listing failed")
		return fiber.ErrInternalServerError
	}

	receivedData := make([]fiber.Map, 0, len(received))
	for _, fr := range received {
		receivedData = append(receivedData, fiber.Map{
			"id":              fr.ID,
			"sender_id":       fr.SenderID,
			"sender_username": fr.SenderName,
			"created_at":      fr.CreatedAt,
		})
	}
	sentData := make([]fiber.Map, 0, len(sent))
	for _, fr := range sent {
		sentData = append(sentData, fiber.Map{
			"id":                fr.ID,
			"receiver_id":       fr.ReceiverID,
			"receiver_username": fr.ReceiverName,
			"created_at":        fr.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"received": receivedData, "sent": sentData})
}

func (a *API) handleListFriends(c fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}
	friends, err := a.store.Friends(c.Context(), user.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("friend listing failed")
		return fiber.ErrInternalServerError
	}
	data := make([]fiber.Map, 0, len(friends))
	for _, f := range friends {
		data = append(data, fiber.Map{
			"id":       f.ID,
			"username": f.Username,
			"email":    f.Email,
		})
	}
	return c.JSON(fiber.Map{"friends": data})
}

func (a *API) handleCreateRoom(c fiber.Ctx) error {
	var req struct {
		RoomType    string `json:"room_type"`
		Name        string `json:"name"`
		OtherUserID int64  `json:"other_user_id"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.RoomType == "" {
		req.RoomType = store.RoomTypePrivate
	}

	// Anonymous rooms can be created without an account.
	if req.RoomType == store.RoomTypeAnonymous {
		room, err := a.store.CreateAnonymousRoom(c.Context(), req.Name)
		if err != nil {
			a.logger.Error().Err(err).Msg("room creation failed")
			return fiber.ErrInternalServerError
		}
		return roomCreated(c, room)
	}

	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}

	var room store.ChatRoom
	switch req.RoomType {
	case store.RoomTypePrivate:
		if req.OtherUserID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "other_user_id required for private chat"})
		}
		room, err = a.store.PrivateRoom(c.Context(), user.ID, req.OtherUserID)
		if errors.Is(err, store.ErrNotFriends) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You must be friends to chat"})
		}
	case store.RoomTypeGroup:
		room, err = a.store.CreateGroupRoom(c.Context(), req.Name, user.ID)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid room_type"})
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("room creation failed")
		return fiber.ErrInternalServerError
	}
	return roomCreated(c, room)
}

func roomCreated(c fiber.Ctx, room store.ChatRoom) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"room_id":   room.ID,
		"room_type": room.Type,
		"name":      room.Name,
	})
}

func (a *API) handleListRooms(c fiber.Ctx) error {
	user, err := a.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}
	roomList, err := a.store.RoomsForUser(c.Context(), user.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("room listing failed")
		return fiber.ErrInternalServerError
	}
	data := make([]fiber.Map, 0, len(roomList))
	for _, room := range roomList {
		data = append(data, fiber.Map{
			"id":         room.ID,
			"name":       room.Name,
			"room_type":  room.Type,
			"created_at": room.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"chatrooms": data})
}

func (a *API) handleRoomMessages(c fiber.Ctx) error {
	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid room id"})
	}
	room, err := a.store.Lookup(c.Context(), roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chat room not found"})
	}
	if err != nil {
		return fiber.ErrInternalServerError
	}

	// Closed-room history is participant-only; open rooms are public.
	if room.Kind == types.RoomClosed {
		user, err := a.currentUser(c)
		if err != nil || !room.HasParticipant(user.ID) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
		}
	}

	history, err := a.store.Messages(c.Context(), roomID)
	if err != nil {
		a.logger.Error().Err(err).Msg("message listing failed")
		return fiber.ErrInternalServerError
	}
	data := make([]fiber.Map, 0, len(history))
	for _, msg := range history {
		data = append(data, fiber.Map{
			"id":           msg.ID,
			"content":      msg.Content,
			"sender_name":  msg.SenderName,
			"sender_id":    msg.SenderID,
			"is_anonymous": msg.AnonymousName != "",
			"timestamp":    msg.Timestamp,
		})
	}
	return c.JSON(fiber.Map{"messages": data})
}

func (a *API) handleRoomOnline(c fiber.Ctx) error {
	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid room id"})
	}
	return c.JSON(fiber.Map{"online_users": a.hub.RoomSubscriberCount(roomID)})
}

func (a *API) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   a.hub.ClientCount(),
		"rooms":     len(a.hub.Rooms()),
	})
}
