package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
	"conversation_sync_service/internal/conversation/view"
	"conversation_sync_service/pkg/logger"
	"conversation_sync_service/pkg/middlewares"
)

// SyncWebsocketHandler drives the live views over one websocket connection.
// Each watch action opens a view session whose snapshots are pushed to the
// client; mutation outcomes arrive on a separate push action.
type SyncWebsocketHandler struct {
	convUC       *ConversationUseCase
	msgUC        *MessageUseCase
	feed         repository.ChangeFeed
	bus          *OutcomeBus
	coalescer    *view.Coalescer
	fetchTimeout time.Duration
}

// NewSyncWebsocketHandler create SyncWebsocketHandler
func NewSyncWebsocketHandler(
	convUC *ConversationUseCase,
	msgUC *MessageUseCase,
	feed repository.ChangeFeed,
	bus *OutcomeBus,
	coalescer *view.Coalescer,
	fetchTimeout time.Duration,
) *SyncWebsocketHandler {
	return &SyncWebsocketHandler{
		convUC:       convUC,
		msgUC:        msgUC,
		feed:         feed,
		bus:          bus,
		coalescer:    coalescer,
		fetchTimeout: fetchTimeout,
	}
}

// wsState per-connection view sessions; all torn down together when the
// connection closes.
type wsState struct {
	mu            sync.Mutex
	conversations *view.ConversationListView
	unread        *view.UnreadView
	messages      map[string]*view.MessageView
	participants  map[string]*view.ParticipantView
}

func (s *wsState) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversations != nil {
		s.conversations.Close()
	}
	if s.unread != nil {
		s.unread.Close()
	}
	for _, v := range s.messages {
		v.Close()
	}
	for _, v := range s.participants {
		v.Close()
	}
}

// HandleConnection entry point for one websocket connection
func (h *SyncWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, _ := conn.Locals(middlewares.TokenUserID).(string)
	orgID, _ := conn.Locals(middlewares.TokenOrgID).(string)
	logger.Log.Info("websocket connected", zap.String("user_id", userID))

	ctxClose, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(10 * time.Minute)
	state := &wsState{
		messages:     map[string]*view.MessageView{},
		participants: map[string]*view.ParticipantView{},
	}
	var writeMu sync.Mutex

	defer func() {
		ticker.Stop()
		state.closeAll()
		cancel()
		conn.Close()
		logger.Log.Info("websocket closed", zap.String("user_id", userID))
	}()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// Mutation outcomes are pushed out of band so screens can surface
	// success or failure without polling.
	if h.bus != nil {
		outcomes, stop := h.bus.Subscribe(16)
		defer stop()
		go func() {
			for {
				select {
				case o, ok := <-outcomes:
					if !ok {
						return
					}
					h.write(conn, &writeMu, domain.WSResponse{
						Action:  string(domain.NotifyOutcome),
						Success: o.Succeeded(),
						Payload: map[string]interface{}{"outcome": o},
						Error:   o.Error,
					})
				case <-ctxClose.Done():
					return
				}
			}
		}()
	}

	go func() {
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, []byte("ping"))
				writeMu.Unlock()
				if err != nil {
					logger.Log.Errorf("ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("websocket connection closed", zap.String("user_id", userID))
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.execAction(ctxClose, conn, &writeMu, state, userID, orgID, message)
	}
}

func (h *SyncWebsocketHandler) execAction(
	ctx context.Context,
	conn *websocket.Conn,
	writeMu *sync.Mutex,
	state *wsState,
	userID, orgID string,
	msg []byte,
) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.write(conn, writeMu, domain.WSResponse{Success: false, Error: "bad request"})
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: true, Payload: map[string]interface{}{}}
	switch domain.Action(req.Action) {
	case domain.WatchConversations:
		err := h.watchConversations(ctx, conn, writeMu, state, userID, orgID)
		h.reply(conn, writeMu, resp, err)

	case domain.WatchUnread:
		err := h.watchUnread(ctx, conn, writeMu, state, userID)
		h.reply(conn, writeMu, resp, err)

	case domain.WatchMessages:
		err := h.watchMessages(ctx, conn, writeMu, state, req.ConversationID, req.Limit)
		h.reply(conn, writeMu, resp, err)

	case domain.WatchParticipants:
		err := h.watchParticipants(ctx, conn, writeMu, state, req.ConversationID)
		h.reply(conn, writeMu, resp, err)

	case domain.LoadMore:
		state.mu.Lock()
		v := state.messages[req.ConversationID]
		state.mu.Unlock()
		if v == nil {
			h.reply(conn, writeMu, resp, ErrConversationNotFound)
			return
		}
		h.reply(conn, writeMu, resp, v.LoadMore(ctx))

	case domain.MarkRead:
		err := h.convUC.MarkRead(ctx, req.ConversationID, userID, time.Now().UTC())
		h.reply(conn, writeMu, resp, err)

	case domain.SendMessage:
		metadata := domain.Metadata{}
		if req.Metadata != nil {
			metadata = *req.Metadata
		}
		messageType := domain.MessageType(req.MessageType)
		if req.MessageType == "" {
			messageType = domain.MessageText
		}
		sent, err := h.msgUC.SendMessage(ctx, req.ConversationID, userID, req.Content, messageType, metadata)
		if err == nil {
			resp.Payload["message"] = sent
		}
		h.reply(conn, writeMu, resp, err)

	case domain.StopWatch:
		h.stopWatch(state, req.ConversationID)
		h.write(conn, writeMu, resp)

	default:
		resp.Success = false
		resp.Error = "unknown action"
		h.write(conn, writeMu, resp)
	}
}

func (h *SyncWebsocketHandler) watchConversations(
	ctx context.Context,
	conn *websocket.Conn,
	writeMu *sync.Mutex,
	state *wsState,
	userID, orgID string,
) error {
	state.mu.Lock()
	if state.conversations != nil {
		state.mu.Unlock()
		return nil
	}
	state.mu.Unlock()

	var organizationID *string
	if orgID != "" {
		organizationID = &orgID
	}
	v, err := view.OpenConversationList(ctx, h.convUC, h.feed, h.coalescer, h.fetchTimeout, userID, organizationID)
	if err != nil {
		return err
	}
	v.OnChange(func(snap view.Snapshot[[]domain.ConversationSummary]) {
		h.pushSnapshot(conn, writeMu, "conversations", "", snap.Phase, snap.Data, snap.Error)
	})

	state.mu.Lock()
	state.conversations = v
	state.mu.Unlock()
	return nil
}

func (h *SyncWebsocketHandler) watchUnread(
	ctx context.Context,
	conn *websocket.Conn,
	writeMu *sync.Mutex,
	state *wsState,
	userID string,
) error {
	state.mu.Lock()
	if state.unread != nil {
		state.mu.Unlock()
		return nil
	}
	state.mu.Unlock()

	v, err := view.OpenUnread(ctx, h.msgUC, h.feed, h.coalescer, h.fetchTimeout, userID)
	if err != nil {
		return err
	}
	v.OnChange(func(snap view.Snapshot[domain.UnreadCount]) {
		h.pushSnapshot(conn, writeMu, "unread", "", snap.Phase, snap.Data, snap.Error)
	})

	state.mu.Lock()
	state.unread = v
	state.mu.Unlock()
	return nil
}

func (h *SyncWebsocketHandler) watchMessages(
	ctx context.Context,
	conn *websocket.Conn,
	writeMu *sync.Mutex,
	state *wsState,
	conversationID string,
	limit int,
) error {
	if conversationID == "" {
		return ErrConversationNotFound
	}
	state.mu.Lock()
	if _, ok := state.messages[conversationID]; ok {
		state.mu.Unlock()
		return nil
	}
	state.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	v, err := view.OpenMessages(ctx, h.msgUC, h.feed, h.coalescer, h.fetchTimeout, conversationID, limit)
	if err != nil {
		return err
	}
	v.OnChange(func(snap view.Snapshot[[]domain.Message]) {
		h.pushSnapshot(conn, writeMu, "messages", conversationID, snap.Phase, snap.Data, snap.Error)
	})

	state.mu.Lock()
	state.messages[conversationID] = v
	state.mu.Unlock()
	return nil
}

func (h *SyncWebsocketHandler) watchParticipants(
	ctx context.Context,
	conn *websocket.Conn,
	writeMu *sync.Mutex,
	state *wsState,
	conversationID string,
) error {
	if conversationID == "" {
		return ErrConversationNotFound
	}
	state.mu.Lock()
	if _, ok := state.participants[conversationID]; ok {
		state.mu.Unlock()
		return nil
	}
	state.mu.Unlock()

	v, err := view.OpenParticipants(ctx, h.convUC, h.feed, h.coalescer, h.fetchTimeout, conversationID)
	if err != nil {
		return err
	}
	v.OnChange(func(snap view.Snapshot[[]domain.Participant]) {
		h.pushSnapshot(conn, writeMu, "participants", conversationID, snap.Phase, snap.Data, snap.Error)
	})

	state.mu.Lock()
	state.participants[conversationID] = v
	state.mu.Unlock()
	return nil
}

func (h *SyncWebsocketHandler) stopWatch(state *wsState, conversationID string) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if conversationID != "" {
		if v, ok := state.messages[conversationID]; ok {
			v.Close()
			delete(state.messages, conversationID)
		}
		if v, ok := state.participants[conversationID]; ok {
			v.Close()
			delete(state.participants, conversationID)
		}
		return
	}

	if state.conversations != nil {
		state.conversations.Close()
		state.conversations = nil
	}
	if state.unread != nil {
		state.unread.Close()
		state.unread = nil
	}
	for id, v := range state.messages {
		v.Close()
		delete(state.messages, id)
	}
	for id, v := range state.participants {
		v.Close()
		delete(state.participants, id)
	}
}

func (h *SyncWebsocketHandler) pushSnapshot(
	conn *websocket.Conn,
	writeMu *sync.Mutex,
	viewName, conversationID string,
	phase view.Phase,
	data interface{},
	snapErr error,
) {
	resp := domain.WSResponse{
		Action:  string(domain.NotifySnapshot),
		Success: phase != view.PhaseError,
		Payload: map[string]interface{}{
			"view":  viewName,
			"phase": phase,
			"data":  data,
		},
	}
	if conversationID != "" {
		resp.Payload["conversation_id"] = conversationID
	}
	if snapErr != nil {
		resp.Error = snapErr.Error()
	}
	h.write(conn, writeMu, resp)
}

func (h *SyncWebsocketHandler) reply(conn *websocket.Conn, writeMu *sync.Mutex, resp domain.WSResponse, err error) {
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
	}
	h.write(conn, writeMu, resp)
}

func (h *SyncWebsocketHandler) write(conn *websocket.Conn, writeMu *sync.Mutex, resp domain.WSResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Errorf("websocket marshal error:", err)
		return
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Log.Errorf("websocket write error:", err)
	}
}
