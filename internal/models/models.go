package models

import "time"

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleRJE   Role = "RJE"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleRJE
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	JuniorID     *string   `json:"juniorId,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Party is the slice of a user joined onto a message.
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
	Sender     *Party    `json:"sender,omitempty"`
	Receiver   *Party    `json:"receiver,omitempty"`
}

type SenderUnread struct {
	SenderID string `json:"senderId"`
	Count    int64  `json:"count"`
}

// MessagesRead is the payload pushed to a sender once the receiver has read
// that sender's messages.
type MessagesRead struct {
	SenderID string `json:"senderId"`
	ReaderID string `json:"readerId"`
	Count    int64  `json:"count"`
}
