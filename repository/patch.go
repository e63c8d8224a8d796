package repository

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"lecture-narrator/constant"
	"lecture-narrator/entities"
)

// LecturePatch is a partial lecture update. Nil fields are left untouched.
type LecturePatch struct {
	Name               *string
	Language           *constant.Language
	CustomInstructions *string
	IsPublic           *bool
	Tags               *[]string
	Status             *constant.LectureStatus
	Progress           *int
	Slides             *[]entities.Slide
	SlideCount         *int
	TotalDuration      *float64
	ErrorMessage       *string
	FileKey            *string
	FileFormat         *constant.FileFormat
	RunID              *uuid.UUID
	Metadata           *entities.LectureMetadata
}

// Empty reports whether the patch changes no column.
func (p LecturePatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields maps the patch onto column names for gorm's Updates.
func (p LecturePatch) Fields() map[string]any {
	fields := map[string]any{}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Language != nil {
		fields["language"] = *p.Language
	}
	if p.CustomInstructions != nil {
		fields["custom_instructions"] = *p.CustomInstructions
	}
	if p.IsPublic != nil {
		fields["is_public"] = *p.IsPublic
	}
	if p.Tags != nil {
		fields["tags"] = datatypes.NewJSONSlice(*p.Tags)
	}
	if p.Status != nil {
		fields["status"] = *p.Status
	}
	if p.Progress != nil {
		fields["progress"] = *p.Progress
	}
	if p.Slides != nil {
		fields["slides"] = datatypes.NewJSONSlice(*p.Slides)
	}
	if p.SlideCount != nil {
		fields["slide_count"] = *p.SlideCount
	}
	if p.TotalDuration != nil {
		fields["total_duration"] = *p.TotalDuration
	}
	if p.ErrorMessage != nil {
		fields["error_message"] = *p.ErrorMessage
	}
	if p.FileKey != nil {
		fields["file_key"] = *p.FileKey
	}
	if p.FileFormat != nil {
		fields["file_format"] = *p.FileFormat
	}
	if p.RunID != nil {
		fields["run_id"] = *p.RunID
	}
	if p.Metadata != nil {
		fields["metadata"] = datatypes.NewJSONType(*p.Metadata)
	}
	return fields
}

// Apply copies the patch onto an in-memory lecture.
func (p LecturePatch) Apply(l *entities.Lecture) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Language != nil {
		l.Language = *p.Language
	}
	if p.CustomInstructions != nil {
		l.CustomInstructions = *p.CustomInstructions
	}
	if p.IsPublic != nil {
		l.IsPublic = *p.IsPublic
	}
	if p.Tags != nil {
		l.Tags = datatypes.NewJSONSlice(append([]string(nil), *p.Tags...))
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.Progress != nil {
		l.Progress = *p.Progress
	}
	if p.Slides != nil {
		l.Slides = datatypes.NewJSONSlice(append([]entities.Slide(nil), *p.Slides...))
	}
	if p.SlideCount != nil {
		l.SlideCount = *p.SlideCount
	}
	if p.TotalDuration != nil {
		l.TotalDuration = *p.TotalDuration
	}
	if p.ErrorMessage != nil {
		l.ErrorMessage = *p.ErrorMessage
	}
	if p.FileKey != nil {
		l.FileKey = *p.FileKey
	}
	if p.FileFormat != nil {
		l.FileFormat = *p.FileFormat
	}
	if p.RunID != nil {
		l.RunID = *p.RunID
	}
	if p.Metadata != nil {
		l.Metadata = datatypes.NewJSONType(*p.Metadata)
	}
}

func Ptr[T any](v T) *T {
	return &v
}
