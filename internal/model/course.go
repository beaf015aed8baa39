package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ChapterStatus 章节生成状态，status 是唯一的状态来源
type ChapterStatus string

const (
	ChapterIdle    ChapterStatus = "idle"
	ChapterLoading ChapterStatus = "loading"
	ChapterSuccess ChapterStatus = "success"
	ChapterError   ChapterStatus = "error"
)

// swagger:model Course
type Course struct {
	UUIDBase
	Topic       string `gorm:"size:255;not null" json:"courseTopic"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	OwnerID     uint   `gorm:"index" json:"ownerId"`
	IsPublic    bool   `gorm:"default:false" json:"isPublic"`
	// Loading 课程级生成标志，任一章节管线在途时为 true
	Loading bool   `gorm:"default:false" json:"loading"`
	Units   []Unit `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"units"`
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model Unit
type Unit struct {
	UUIDBase
	CourseID string    `gorm:"index;type:varchar(36)" json:"-"`
	Title    string    `gorm:"size:255;not null" json:"title"`
	Order    int       `gorm:"column:sort_order;default:0" json:"order"`
	Chapters []Chapter `gorm:"foreignKey:UnitID;constraint:OnDelete:CASCADE" json:"chapters"`
}

func (Unit) TableName() string {
	return "units"
}

// Chapter 最小生成单元：一个视频 + 讲解内容 + 测验
// 不变式：status=success 时 VideoID 与 Quiz 必须存在；
// status=error 时 Error 非空，内容字段只保留最后一个成功步骤的产物
// swagger:model Chapter
type Chapter struct {
	UUIDBase
	UnitID      string        `gorm:"index;type:varchar(36)" json:"-"`
	Title       string        `gorm:"size:255;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description,omitempty"`
	Order       int           `gorm:"column:sort_order;default:0" json:"order"`
	Status      ChapterStatus `gorm:"size:20;default:'idle'" json:"status"`
	VideoID     string        `gorm:"size:20" json:"videoId,omitempty"`
	Content     string        `gorm:"type:text" json:"content,omitempty"`
	Summary     string        `gorm:"type:text" json:"summary,omitempty"`
	Error       string        `gorm:"size:500" json:"error,omitempty"`
	Quiz        Quiz          `gorm:"type:json" json:"quiz"`
	Views       int           `gorm:"default:0" json:"views"`
}

func (Chapter) TableName() string {
	return "chapters"
}

type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

type Quiz struct {
	Title     string         `json:"title"`
	Questions []QuizQuestion `json:"questions"`
}

func (q Quiz) IsZero() bool {
	return q.Title == "" && len(q.Questions) == 0
}

func (q Quiz) Value() (driver.Value, error) {
	if q.IsZero() {
		return nil, nil
	}
	return json.Marshal(q)
}

func (q *Quiz) Scan(value interface{}) error {
	if value == nil {
		*q = Quiz{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, q)
	case string:
		return json.Unmarshal([]byte(v), q)
	default:
		return fmt.Errorf("unsupported quiz column type %T", value)
	}
}

// Enrollment 用户课程关联（个人课程列表）
type Enrollment struct {
	BaseModel
	UserID   uint   `gorm:"index;uniqueIndex:idx_user_course" json:"userId"`
	CourseID string `gorm:"type:varchar(36);uniqueIndex:idx_user_course" json:"courseId"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
