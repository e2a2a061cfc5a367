package models

import "time"

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation groups the messages of one chat thread owned by a user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// MessageMetadata is stored alongside assistant messages.
type MessageMetadata struct {
	Model  string `json:"model"`
	Cached bool   `json:"cached"`
}

// Message is one persisted entry of a conversation log.
type Message struct {
	ID             int64            `json:"id"`
	ConversationID string           `json:"-"`
	Role           string           `json:"type"`
	Content        string           `json:"content"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AssistantMessage is the reply half of a send result.
type AssistantMessage struct {
	Message
	Cached bool   `json:"cached"`
	Model  string `json:"model"`
}

// SendResult is returned for every accepted chat message.
type SendResult struct {
	ConversationID   string           `json:"conversationId"`
	UserMessage      Message          `json:"userMessage"`
	AssistantMessage AssistantMessage `json:"assistantMessage"`
}
