package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/events"
	"ai-assistant-be/pkg/nats"
	"ai-assistant-be/pkg/rag/executor"
	"ai-assistant-be/pkg/rag/pipeline"
	"ai-assistant-be/pkg/rag/state"
	"ai-assistant-be/pkg/rag/stream"
	"ai-assistant-be/pkg/tasks"
	"ai-assistant-be/pkg/watchlist"

	"github.com/google/uuid"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("conversation does not belong to user")
)

// IConversationService drives conversational turns and conversation CRUD.
type IConversationService interface {
	CreateConversation(ctx context.Context, userId uuid.UUID, request *dto.CreateConversationRequest) (*dto.CreateConversationResponse, error)
	GetAllConversations(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllConversationsResponse, error)
	GetMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.GetMessagesResponse, error)
	DeleteConversation(ctx context.Context, userId uuid.UUID, request *dto.DeleteConversationRequest) error
	GetWatchlist(ctx context.Context, userId uuid.UUID) ([]*dto.WatchlistItemResponse, error)

	// Chat runs a blocking turn.
	Chat(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (*dto.ChatResponse, error)

	// ChatStream runs a streamed turn. The returned channel closes after the
	// terminal done frame; the request id tags every emitted frame.
	ChatStream(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (<-chan stream.Event, string, error)
}

type conversationService struct {
	uowFactory       unitofwork.RepositoryFactory
	pipeline         *pipeline.Pipeline
	taskManager      *tasks.Manager
	summarizer       ISummarizerService
	memoryService    IMemoryService
	episodicService  IEpisodicService
	watchlistCapture *watchlist.CaptureService
	natsPub          *nats.Publisher
	wsHub            *websocket.Hub
}

func NewConversationService(
	uowFactory unitofwork.RepositoryFactory,
	turnPipeline *pipeline.Pipeline,
	taskManager *tasks.Manager,
	summarizer ISummarizerService,
	memoryService IMemoryService,
	episodicService IEpisodicService,
	watchlistCapture *watchlist.CaptureService,
	natsPub *nats.Publisher,
	wsHub *websocket.Hub,
) IConversationService {
	return &conversationService{
		uowFactory:       uowFactory,
		pipeline:         turnPipeline,
		taskManager:      taskManager,
		summarizer:       summarizer,
		memoryService:    memoryService,
		episodicService:  episodicService,
		watchlistCapture: watchlistCapture,
		natsPub:          natsPub,
		wsHub:            wsHub,
	}
}

// --- CRUD ---

func (cs *conversationService) CreateConversation(ctx context.Context, userId uuid.UUID, request *dto.CreateConversationRequest) (*dto.CreateConversationResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	title := request.Title
	if title == "" {
		title = "New conversation"
	}
	conversation := entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		Incognito: request.Incognito,
		CreatedAt: time.Now(),
	}
	if err := uow.ConversationRepository().Create(ctx, &conversation); err != nil {
		return nil, err
	}
	return &dto.CreateConversationResponse{Id: conversation.Id}, nil
}

func (cs *conversationService) GetAllConversations(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllConversationsResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.Filter("user_id", userId),
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetAllConversationsResponse, len(conversations))
	for i, c := range conversations {
		responses[i] = &dto.GetAllConversationsResponse{
			Id:        c.Id,
			Title:     c.Title,
			Incognito: c.Incognito,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		}
	}
	return responses, nil
}

func (cs *conversationService) GetMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.GetMessagesResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	if _, err := cs.ownedConversation(ctx, uow, userId, conversationId); err != nil {
		return nil, err
	}

	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetMessagesResponse, len(messages))
	for i, m := range messages {
		responses[i] = &dto.GetMessagesResponse{
			Id:            m.Id,
			Role:          m.Role,
			Content:       m.Content,
			Completed:     m.Completed,
			RouteDecision: json.RawMessage(m.RouteDecision),
			CreatedAt:     m.CreatedAt,
		}
	}
	return responses, nil
}

func (cs *conversationService) DeleteConversation(ctx context.Context, userId uuid.UUID, request *dto.DeleteConversationRequest) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	if _, err := cs.ownedConversation(ctx, uow, userId, request.ConversationId); err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.EpisodeRepository().DeleteByConversationId(ctx, request.ConversationId); err != nil {
		return err
	}
	if err := uow.ConversationSummaryRepository().DeleteByConversationId(ctx, request.ConversationId); err != nil {
		return err
	}
	if err := uow.MessageRepository().DeleteByConversationId(ctx, request.ConversationId); err != nil {
		return err
	}
	if err := uow.ConversationRepository().Delete(ctx, request.ConversationId); err != nil {
		return err
	}
	return uow.Commit()
}

func (cs *conversationService) GetWatchlist(ctx context.Context, userId uuid.UUID) ([]*dto.WatchlistItemResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	items, err := uow.WatchlistRepository().FindAll(ctx,
		specification.Filter("user_id", userId),
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.WatchlistItemResponse, len(items))
	for i, item := range items {
		responses[i] = &dto.WatchlistItemResponse{
			Id:        item.Id,
			Title:     item.Title,
			Source:    item.Source,
			CreatedAt: item.CreatedAt,
		}
	}
	return responses, nil
}

// --- turns ---

func (cs *conversationService) Chat(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (*dto.ChatResponse, error) {
	turn, err := cs.beginTurn(ctx, userId, request, false)
	if err != nil {
		return nil, err
	}

	finalState, err := cs.pipeline.Invoke(ctx, turn.state)
	if err != nil {
		// The turn failed after the user message was persisted; record an
		// incomplete assistant message so history reflects the failure.
		if errors.Is(err, pipeline.ErrTotalRetrievalFailure) {
			_, _ = cs.persistReply(ctx, turn, executor.ApologyMessage, nil, false)
		}
		return nil, err
	}

	reply, err := cs.persistReply(ctx, turn, finalState.Response, finalState.RouteDecision, finalState.Completed)
	if err != nil {
		return nil, err
	}

	cs.finishTurn(turn, reply, finalState.Completed)

	var routeJSON json.RawMessage
	if raw, err := json.Marshal(finalState.RouteDecision); err == nil {
		routeJSON = raw
	}

	return &dto.ChatResponse{
		ConversationId: turn.conversationId,
		RequestId:      turn.requestId,
		Sent: &dto.ChatResponseMessage{
			Id:        turn.userMessage.Id,
			Role:      turn.userMessage.Role,
			Content:   turn.userMessage.Content,
			Completed: true,
			CreatedAt: turn.userMessage.CreatedAt,
		},
		Reply: &dto.ChatResponseMessage{
			Id:        reply.Id,
			Role:      reply.Role,
			Content:   reply.Content,
			Completed: reply.Completed,
			CreatedAt: reply.CreatedAt,
		},
		RouteDecision: routeJSON,
	}, nil
}

func (cs *conversationService) ChatStream(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest) (<-chan stream.Event, string, error) {
	turn, err := cs.beginTurn(ctx, userId, request, true)
	if err != nil {
		return nil, "", err
	}

	finalize := func(fctx context.Context, st state.State, outcome *executor.TurnOutcome) ([]stream.Event, error) {
		reply, err := cs.persistReply(fctx, turn, outcome.Answer, st.RouteDecision, outcome.Completed)
		if err != nil {
			return nil, err
		}

		var extra []stream.Event
		if added := cs.finishTurn(turn, reply, outcome.Completed); len(added) > 0 {
			extra = append(extra, stream.WatchlistCapture{Added: added})
		}
		return extra, nil
	}

	return cs.pipeline.Stream(ctx, turn.state, finalize), turn.requestId, nil
}

// activeTurn carries the persisted context of one in-flight turn.
type activeTurn struct {
	requestId      string
	userId         uuid.UUID
	conversationId uuid.UUID
	incognito      bool
	userMessage    *entity.Message
	state          state.State
}

// beginTurn resolves the conversation and persists the user message. A
// persistence failure here is fatal for the turn.
func (cs *conversationService) beginTurn(ctx context.Context, userId uuid.UUID, request *dto.ChatRequest, streaming bool) (*activeTurn, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	var conversation *entity.Conversation
	if request.ConversationId != uuid.Nil {
		found, err := cs.ownedConversation(ctx, uow, userId, request.ConversationId)
		if err != nil {
			return nil, err
		}
		conversation = found
	} else {
		conversation = &entity.Conversation{
			Id:        uuid.New(),
			UserId:    userId,
			Title:     truncateTitle(request.Message),
			Incognito: request.Incognito,
			CreatedAt: time.Now(),
		}
		if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	userMessage := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Role:           "user",
		Content:        request.Message,
		Completed:      true,
		CreatedAt:      time.Now(),
	}
	if err := uow.MessageRepository().Create(ctx, userMessage); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	requestId := uuid.NewString()
	return &activeTurn{
		requestId:      requestId,
		userId:         userId,
		conversationId: conversation.Id,
		incognito:      conversation.Incognito,
		userMessage:    userMessage,
		state: state.State{
			RequestID:      requestId,
			ConversationID: conversation.Id.String(),
			UserID:         userId.String(),
			UserMessageID:  userMessage.Id.String(),
			Message:        request.Message,
			Stream:         streaming,
			Debug:          request.Debug,
			Incognito:      conversation.Incognito,
			KBPrefix:       request.KBPrefix,
			AgentType:      request.AgentType,
		},
	}, nil
}

func (cs *conversationService) persistReply(ctx context.Context, turn *activeTurn, content string, decision interface{}, completed bool) (*entity.Message, error) {
	var routeJSON []byte
	if decision != nil {
		if raw, err := json.Marshal(decision); err == nil {
			routeJSON = raw
		}
	}

	reply := &entity.Message{
		Id:             uuid.New(),
		ConversationId: turn.conversationId,
		Role:           "assistant",
		Content:        content,
		RouteDecision:  routeJSON,
		Completed:      completed,
		CreatedAt:      time.Now(),
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.MessageRepository().Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	return reply, nil
}

// finishTurn runs the best-effort post-turn side effects and returns any
// auto-captured watchlist titles. Nothing here can fail the turn.
func (cs *conversationService) finishTurn(turn *activeTurn, reply *entity.Message, completed bool) []string {
	if turn.incognito {
		return nil
	}

	cs.memoryService.MaybeWrite(context.Background(), turn.userId.String(), turn.userMessage.Content)

	if completed {
		userMsg := turn.userMessage.Content
		replyContent := reply.Content
		conversationId := turn.conversationId
		replyId := reply.Id
		userId := turn.userId

		cs.taskManager.Schedule("episode:"+replyId.String(), func(taskCtx context.Context) error {
			return cs.episodicService.IndexTurn(taskCtx, conversationId, replyId, userId, userMsg, replyContent)
		})

		if err := cs.summarizer.RequestUpdate(turn.conversationId); err != nil {
			log.Printf("[WARN] Failed to request summary update: %v", err)
		}
	}

	added := cs.watchlistCapture.Capture(context.Background(), turn.userId.String(), turn.userMessage.Content)
	if len(added) > 0 && cs.wsHub != nil {
		cs.wsHub.Send(turn.userId, websocket.Notice{
			Type:  "watchlist_auto_capture",
			Title: "Watchlist updated",
			Body:  fmt.Sprintf("Added %d title(s) to your watchlist", len(added)),
		})
	}

	cs.publishTurnCompleted(turn, reply, completed)
	return added
}

func (cs *conversationService) publishTurnCompleted(turn *activeTurn, reply *entity.Message, completed bool) {
	if cs.natsPub == nil {
		return
	}

	event := events.BaseEvent{
		Type: "TURN_COMPLETED",
		Data: map[string]interface{}{
			"request_id":      turn.requestId,
			"conversation_id": turn.conversationId.String(),
			"user_id":         turn.userId.String(),
			"message_id":      reply.Id.String(),
			"completed":       completed,
		},
		OccurredAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cs.natsPub.Publish(ctx, event); err != nil {
		log.Printf("[WARN] Failed to publish turn event: %v", err)
	}
}

func (cs *conversationService) ownedConversation(ctx context.Context, uow unitofwork.UnitOfWork, userId, conversationId uuid.UUID) (*entity.Conversation, error) {
	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	if conversation.UserId != userId {
		return nil, ErrForbidden
	}
	return conversation, nil
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) > 60 {
		return string(runes[:60]) + "…"
	}
	return message
}
