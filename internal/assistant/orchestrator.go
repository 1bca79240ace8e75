package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskhive/server/internal/db"
	"taskhive/server/internal/provider"
	"taskhive/server/internal/task"
)

// transcriptLimit caps how many persisted messages are replayed to the
// completion endpoint as context.
const transcriptLimit = 10

type Orchestrator struct {
	db          *gorm.DB
	tasks       *task.Service
	exec        *Executor
	client      provider.Client
	log         *slog.Logger
	creatorInfo string
	now         func() time.Time
}

func NewOrchestrator(gdb *gorm.DB, tasks *task.Service, client provider.Client, log *slog.Logger, creatorInfo string) *Orchestrator {
	return &Orchestrator{
		db:          gdb,
		tasks:       tasks,
		exec:        NewExecutor(tasks),
		client:      client,
		log:         log,
		creatorInfo: creatorInfo,
		now:         time.Now,
	}
}

// EnsureConversation returns the user's conversation singleton, creating it
// when absent.
func (o *Orchestrator) EnsureConversation(userID string) (*db.Conversation, error) {
	var conv db.Conversation
	err := o.db.Where("user_id = ?", userID).Take(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	now := o.now().UTC().Unix()
	conv = db.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.db.Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (o *Orchestrator) Messages(userID string) ([]db.Message, error) {
	conv, err := o.EnsureConversation(userID)
	if err != nil {
		return nil, err
	}
	var rows []db.Message
	err = o.db.Where("conversation_id = ?", conv.ID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Reset hard-deletes the conversation with its messages and immediately
// creates a fresh empty one.
func (o *Orchestrator) Reset(userID string) (*db.Conversation, error) {
	err := o.db.Transaction(func(tx *gorm.DB) error {
		var conv db.Conversation
		err := tx.Where("user_id = ?", userID).Take(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&db.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", conv.ID).Delete(&db.Conversation{}).Error
	})
	if err != nil {
		return nil, err
	}
	return o.EnsureConversation(userID)
}

// ChatTurn runs one assistant turn: persist the user message, call the
// completion endpoint with the tool schema, execute any requested tool calls,
// obtain a natural-language confirmation and persist it. Text chunks are
// forwarded through onChunk as they arrive.
func (o *Orchestrator) ChatTurn(ctx context.Context, userID, text string, onChunk func(string)) error {
	conv, err := o.EnsureConversation(userID)
	if err != nil {
		return o.fail(userID, err)
	}
	if err := o.appendMessage(conv.ID, text, false); err != nil {
		return o.fail(userID, err)
	}

	transcript, err := o.recentTranscript(conv.ID)
	if err != nil {
		return o.fail(userID, err)
	}
	system, err := o.systemMessage(userID, text)
	if err != nil {
		return o.fail(userID, err)
	}

	messages := append([]provider.Message{system}, transcript...)
	first, err := o.client.Chat(ctx, provider.ChatRequest{
		Messages: messages,
		Tools:    ToolDefs(),
	}, onChunk)
	if err != nil {
		return o.fail(userID, err)
	}

	final := first.Content
	if len(first.ToolCalls) > 0 {
		results := make([]ToolResult, 0, len(first.ToolCalls))
		for _, call := range first.ToolCalls {
			// Isolated per call: one failure never aborts its siblings.
			results = append(results, o.exec.Execute(userID, call))
		}

		// Rebuild the snapshot so the confirmation references actual state.
		system, err = o.systemMessage(userID, text)
		if err != nil {
			return o.fail(userID, err)
		}
		followupMessages := append([]provider.Message{system}, transcript...)
		followupMessages = append(followupMessages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   first.Content,
			ToolCalls: first.ToolCalls,
		})
		for i, call := range first.ToolCalls {
			payload, err := json.Marshal(results[i])
			if err != nil {
				payload = []byte(fmt.Sprintf(`{"success":false,"message":%q}`, err.Error()))
			}
			followupMessages = append(followupMessages, provider.Message{
				Role:       provider.RoleTool,
				ToolCallID: call.ID,
				Content:    string(payload),
			})
		}

		// Tool calling disabled: force a natural-language confirmation.
		followup, err := o.client.Chat(ctx, provider.ChatRequest{Messages: followupMessages}, onChunk)
		if err != nil {
			return o.fail(userID, err)
		}
		final = joinTurnText(first.Content, followup.Content)
		if strings.TrimSpace(final) == "" {
			final = fallbackText(results)
			if onChunk != nil && final != "" {
				onChunk(final)
			}
		}
	}

	if strings.TrimSpace(final) != "" {
		if err := o.appendMessage(conv.ID, final, true); err != nil {
			return o.fail(userID, err)
		}
	}
	return nil
}

func (o *Orchestrator) systemMessage(userID, incoming string) (provider.Message, error) {
	active, err := o.tasks.List(userID, task.ListFilters{})
	if err != nil {
		return provider.Message{}, err
	}
	archived, err := o.tasks.ListArchived(userID)
	if err != nil {
		return provider.Message{}, err
	}
	creator := ""
	if o.creatorInfo != "" && wantsCreatorInfo(incoming) {
		creator = o.creatorInfo
	}
	return provider.Message{
		Role:    provider.RoleSystem,
		Content: buildSystemPrompt(active, archived, creator),
	}, nil
}

// recentTranscript returns the last transcriptLimit messages in
// chronological order, mapped to provider roles.
func (o *Orchestrator) recentTranscript(conversationID string) ([]provider.Message, error) {
	var rows []db.Message
	err := o.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(transcriptLimit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]provider.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		role := provider.RoleUser
		if rows[i].FromAssistant {
			role = provider.RoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: rows[i].Content})
	}
	return out, nil
}

func (o *Orchestrator) appendMessage(conversationID, content string, fromAssistant bool) error {
	row := db.Message{
		ConversationID: conversationID,
		Content:        content,
		FromAssistant:  fromAssistant,
		CreatedAt:      o.now().UTC().Unix(),
	}
	return o.db.Create(&row).Error
}

func (o *Orchestrator) fail(userID string, err error) error {
	o.log.Error("chat turn failed", "user_id", userID, "error", err)
	return err
}

func joinTurnText(first, followup string) string {
	first = strings.TrimSpace(first)
	followup = strings.TrimSpace(followup)
	switch {
	case first == "":
		return followup
	case followup == "":
		return first
	default:
		return first + "\n\n" + followup
	}
}

// fallbackText covers the degenerate case where the follow-up completion
// yields no text: concatenate each tool result's human-readable message.
func fallbackText(results []ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		msg := strings.TrimSpace(r.Message)
		if msg == "" {
			msg = "Completed."
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, " ")
}
