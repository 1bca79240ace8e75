package db

type User struct {
	ID           string `gorm:"column:id;primaryKey"`
	Name         string `gorm:"column:name;not null;default:''"`
	Email        string `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash string `gorm:"column:password_hash;not null;default:''"`
	Role         string `gorm:"column:role;not null;default:'user'"`
	Banned       bool   `gorm:"column:banned;not null;default:false"`
	CreatedAt    int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt    int64  `gorm:"column:updated_at;not null;default:0"`
}

func (User) TableName() string { return "users" }

type Category struct {
	ID          string `gorm:"column:id;primaryKey"`
	Name        string `gorm:"column:name;not null"`
	Description string `gorm:"column:description;not null;default:''"`
	Color       string `gorm:"column:color;not null;default:''"`
	CreatedAt   int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt   int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Category) TableName() string { return "categories" }

type Task struct {
	ID          string `gorm:"column:id;primaryKey"`
	UserID      string `gorm:"column:user_id;not null;index"`
	CategoryID  string `gorm:"column:category_id;not null;default:'';index"`
	Title       string `gorm:"column:title;not null"`
	Description string `gorm:"column:description;not null;default:''"`
	Priority    string `gorm:"column:priority;not null;default:'medium'"`
	Status      string `gorm:"column:status;not null;default:'todo'"`
	// Single-slot history: the status held immediately before the last
	// status change. Empty means no recorded history.
	PreviousStatus string `gorm:"column:previous_status;not null;default:''"`
	DueDate        string `gorm:"column:due_date;not null;default:''"`
	Notes          string `gorm:"column:notes;not null;default:''"`
	CreatedAt      int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt      int64  `gorm:"column:updated_at;not null;default:0"`

	Category *Category `gorm:"foreignKey:CategoryID;references:ID"`
}

func (Task) TableName() string { return "tasks" }

type Conversation struct {
	ID        string `gorm:"column:id;primaryKey"`
	UserID    string `gorm:"column:user_id;not null;uniqueIndex"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;default:0"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ConversationID string `gorm:"column:conversation_id;not null;index"`
	Content        string `gorm:"column:content;not null;default:''"`
	FromAssistant  bool   `gorm:"column:from_assistant;not null;default:false"`
	CreatedAt      int64  `gorm:"column:created_at;not null;default:0"`
}

func (Message) TableName() string { return "messages" }

type RefreshToken struct {
	Token     string `gorm:"column:token;primaryKey"`
	UserID    string `gorm:"column:user_id;not null;index"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;default:0"`
	RevokedAt int64  `gorm:"column:revoked_at;not null;default:0"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

type PasswordReset struct {
	Token     string `gorm:"column:token;primaryKey"`
	UserID    string `gorm:"column:user_id;not null;index"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;default:0"`
	UsedAt    int64  `gorm:"column:used_at;not null;default:0"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
}

func (PasswordReset) TableName() string { return "password_resets" }
