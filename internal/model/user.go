package model

// UserStatus 用户状态枚举
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User 用户模型
// 调度器只读取投递所需的字段：聊天地址、时区和免打扰窗口。
// 用户的注册、认证等由上游服务负责。
type User struct {
	BaseModel
	PublicID   int64      `gorm:"uniqueIndex;not null" json:"public_id"`
	ChatID     int64      `gorm:"not null" json:"chat_id"` // Telegram chat id，即投递地址
	Timezone   string     `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	QuietStart string     `gorm:"type:varchar(8)" json:"quiet_start"` // "23:00"，空表示无免打扰窗口
	QuietEnd   string     `gorm:"type:varchar(8)" json:"quiet_end"`   // "08:00"
	Status     UserStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// HasQuietWindow 判断用户是否配置了免打扰窗口
func (u *User) HasQuietWindow() bool {
	return u.QuietStart != "" && u.QuietEnd != ""
}
