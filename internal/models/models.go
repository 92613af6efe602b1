package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null"     json:"username"`
	Email        string         `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash string         `gorm:"not null"                 json:"-"`
	Verified     bool           `gorm:"default:false"            json:"verified"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index"                    json:"-"`
}

type Role struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"uniqueIndex;not null"     json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                    json:"-"`
}

type UserRole struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint           `gorm:"index;not null"           json:"user_id"`
	RoleID    uint           `gorm:"index;not null"           json:"role_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                    json:"-"`
}

// Price is in currency minor units, BIGINT in the schema.
type Product struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name        string         `gorm:"not null"                  json:"name"`
	Description string         `json:"description"`
	Price       int64          `gorm:"not null;check:price >= 0" json:"price"`
	Stock       int64          `gorm:"not null;check:stock >= 0" json:"stock"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index"                     json:"-"`
}

type Order struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"        json:"id"`
	UserID     uint           `gorm:"index;not null"                  json:"user_id"`
	TotalPrice int64          `gorm:"not null;check:total_price >= 0" json:"total_price"`
	Items      []OrderItem    `gorm:"foreignKey:OrderID"              json:"items,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index"                           json:"-"`
}

// UnitPrice is the catalog price snapshotted at order time; it is never
// re-read from the catalog afterwards.
type OrderItem struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"       json:"id"`
	OrderID   uint           `gorm:"index;not null"                 json:"order_id"`
	ProductID uint           `gorm:"index;not null"                 json:"product_id"`
	Quantity  int64          `gorm:"not null;check:quantity > 0"    json:"quantity"`
	UnitPrice int64          `gorm:"not null;check:unit_price >= 0" json:"unit_price"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                          json:"-"`
}

// Token stores the SHA-256 digest of the signed token, never the raw value.
// A soft-deleted row is a rotated or revoked token.
type RefreshToken struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint           `gorm:"index;not null"           json:"user_id"`
	Token     string         `gorm:"uniqueIndex;not null"     json:"-"`
	JTI       string         `gorm:"uniqueIndex;not null"     json:"jti"`
	ExpiresAt int64          `gorm:"not null"                 json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                    json:"-"`
}

// At most one live reset token per user: issuing a new one soft-deletes the
// previous row, redeeming soft-deletes the redeemed row.
type ResetToken struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint           `gorm:"index;not null"           json:"user_id"`
	Token     string         `gorm:"uniqueIndex;not null"     json:"-"`
	ExpiresAt int64          `gorm:"not null"                 json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                    json:"-"`
}

// ProcessedEvent is the consumer-side idempotency ledger. Rows are written
// once on first successful handling and never mutated.
type ProcessedEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   string    `gorm:"uniqueIndex;not null"     json:"event_id"`
	Topic     string    `gorm:"index;not null"           json:"topic"`
	EventType string    `gorm:"not null"                 json:"event_type"`
	EntityID  string    `gorm:"not null"                 json:"entity_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is the worker's recorded side effect; rendering and delivery
// belong to the mailer collaborator.
type Notification struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint           `gorm:"index;not null"           json:"user_id"`
	Kind      string         `gorm:"not null"                 json:"kind"`
	Subject   string         `gorm:"not null"                 json:"subject"`
	Payload   string         `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                    json:"-"`
}
