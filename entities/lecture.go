package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"lecture-narrator/constant"
)

type Lecture struct {
	ID                 uuid.UUID                           `json:"id" gorm:"type:uuid;primary_key"`
	OwnerID            string                              `json:"ownerId" gorm:"type:varchar(128);not null;index:idx_lectures_owner_id"`
	Name               string                              `json:"name" gorm:"type:varchar(255);not null"`
	Language           constant.Language                   `json:"language" gorm:"type:varchar(32);not null"`
	CustomInstructions string                              `json:"customInstructions,omitempty" gorm:"type:text"`
	IsPublic           bool                                `json:"isPublic" gorm:"not null;default:false;index:idx_lectures_is_public"`
	Tags               datatypes.JSONSlice[string]         `json:"tags" gorm:"type:jsonb"`
	Status             constant.LectureStatus              `json:"status" gorm:"type:varchar(20);not null;default:'uploading'"`
	Progress           int                                 `json:"progress" gorm:"type:integer;not null;default:0"`
	Slides             datatypes.JSONSlice[Slide]          `json:"slides" gorm:"type:jsonb"`
	SlideCount         int                                 `json:"slideCount" gorm:"type:integer;not null;default:0"`
	TotalDuration      float64                             `json:"totalDuration" gorm:"not null;default:0"`
	ErrorMessage       string                              `json:"errorMessage,omitempty" gorm:"type:text"`
	FileKey            string                              `json:"-" gorm:"type:varchar(500)"`
	FileFormat         constant.FileFormat                 `json:"fileFormat" gorm:"type:varchar(8)"`
	RunID              uuid.UUID                           `json:"-" gorm:"type:uuid"`
	Metadata           datatypes.JSONType[LectureMetadata] `json:"metadata" gorm:"type:jsonb"`
	CreatedAt          time.Time                           `json:"createdAt" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time                           `json:"updatedAt" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Lecture) TableName() string {
	return "lectures"
}

// LectureMetadata is recorded when a run reaches ready.
type LectureMetadata struct {
	SlideCount       int               `json:"slideCount"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	FallbackScripts  int               `json:"fallbackScripts"`
	FailedAudio      int               `json:"failedAudio"`
	Language         constant.Language `json:"language,omitempty"`
	Voice            string            `json:"voice,omitempty"`
}

// VisibleTo reports whether the viewer may read the lecture.
func (l *Lecture) VisibleTo(viewer string) bool {
	return l.IsPublic || (viewer != "" && viewer == l.OwnerID)
}
