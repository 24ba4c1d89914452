package models

import "time"

// UserName 用户名历史表，每次显示名变化新增一行
type UserName struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"index:idx_user_names_user_date,priority:1;not null" json:"user_id"`
	Date        time.Time `gorm:"index:idx_user_names_user_date,priority:2;not null" json:"date"`
	Username    *string   `gorm:"type:varchar(255)" json:"username"`     // @用户名，没有时为全名
	DisplayName *string   `gorm:"type:varchar(255)" json:"display_name"` // 全名
}

// TableName 指定表名
func (UserName) TableName() string {
	return "user_names"
}

// Identity 用户身份（短名称, 全名），任一字段都可能未知
type Identity struct {
	ShortName *string
	FullName  *string
}

// NewIdentity 创建两个字段都已知的身份
func NewIdentity(shortName, fullName string) Identity {
	return Identity{ShortName: &shortName, FullName: &fullName}
}

// Identity 转换为身份
func (u *UserName) Identity() Identity {
	return Identity{ShortName: u.Username, FullName: u.DisplayName}
}

// Name 返回用于显示的名称：优先短名称，其次全名
func (i Identity) Name() string {
	if i.ShortName != nil && *i.ShortName != "" {
		return *i.ShortName
	}
	if i.FullName != nil {
		return *i.FullName
	}
	return ""
}

// Equal 两个字段都已知且相同才相等，未知字段视为总是不同
func (i Identity) Equal(other Identity) bool {
	return sameField(i.ShortName, other.ShortName) && sameField(i.FullName, other.FullName)
}

// SameFullName 全名已知且相同
func (i Identity) SameFullName(other Identity) bool {
	return sameField(i.FullName, other.FullName)
}

func sameField(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
