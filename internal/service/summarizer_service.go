package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/pkg/llm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// ISummarizerService consumes summary-update requests and maintains the
// rolling conversation summaries. Requests are published fire-and-forget
// after each completed turn.
type ISummarizerService interface {
	Consume(ctx context.Context) error
	RequestUpdate(conversationId uuid.UUID) error
}

type summarizerService struct {
	pubSub      *gochannel.GoChannel
	topicName   string
	uowFactory  unitofwork.RepositoryFactory
	llmProvider llm.LLMProvider
}

func NewSummarizerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	llmProvider llm.LLMProvider,
) ISummarizerService {
	return &summarizerService{
		pubSub:      pubSub,
		topicName:   topicName,
		uowFactory:  uowFactory,
		llmProvider: llmProvider,
	}
}

func (ss *summarizerService) RequestUpdate(conversationId uuid.UUID) error {
	payload, err := json.Marshal(dto.SummaryUpdateMessage{ConversationId: conversationId})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return ss.pubSub.Publish(ss.topicName, msg)
}

func (ss *summarizerService) Consume(ctx context.Context) error {
	messages, err := ss.pubSub.Subscribe(ctx, ss.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			ss.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (ss *summarizerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.SummaryUpdateMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal summary request: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	if err := ss.update(ctx, payload.ConversationId); err != nil {
		log.Printf("[ERROR] Summary update failed for %s: %v", payload.ConversationId, err)
		msg.Nack()
		return
	}

	msg.Ack()
}

func (ss *summarizerService) update(ctx context.Context, conversationId uuid.UUID) error {
	uow := ss.uowFactory.NewUnitOfWork(ctx)

	existing, err := uow.ConversationSummaryRepository().FindByConversationId(ctx, conversationId)
	if err != nil {
		return err
	}

	msgs, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.CompletedOnly{},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: 20},
	)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	// Nothing new since the last summary; skip the LLM call.
	if existing != nil && existing.MessageCount >= len(msgs) {
		return nil
	}

	transcript := buildTranscript(msgs)
	previous := ""
	if existing != nil {
		previous = existing.Summary
	}

	summary, err := ss.summarize(ctx, previous, transcript)
	if err != nil {
		return err
	}

	record := &entity.ConversationSummary{
		ConversationId: conversationId,
		Summary:        summary,
		MessageCount:   len(msgs),
		CreatedAt:      time.Now(),
	}
	if existing != nil {
		record.Id = existing.Id
		record.CreatedAt = existing.CreatedAt
	}

	log.Printf("[SUMMARY] Updated summary for conversation %s (%d messages)", conversationId, len(msgs))
	return uow.ConversationSummaryRepository().Upsert(ctx, record)
}

// buildTranscript renders messages oldest first; the repository returns them
// newest first.
func buildTranscript(msgs []*entity.Message) string {
	var b strings.Builder
	for i := len(msgs) - 1; i >= 0; i-- {
		b.WriteString(fmt.Sprintf("%s: %s\n", msgs[i].Role, msgs[i].Content))
	}
	return b.String()
}

func (ss *summarizerService) summarize(ctx context.Context, previous, transcript string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the conversation below in at most 5 sentences. Keep user preferences and open topics.

Previous summary:
%s

Conversation:
%s`, previous, transcript)

	llmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return ss.llmProvider.Chat(llmCtx, []llm.Message{
		{Role: "user", Content: prompt},
	})
}
