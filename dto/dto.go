package dto

import (
	"github.com/google/uuid"
	"lecture-narrator/constant"
	"lecture-narrator/entities"
)

// PipelineMessage is published once the source file is stored and consumed by the pipeline worker.
type PipelineMessage struct {
	LectureId          uuid.UUID           `json:"lectureId"`
	RunId              uuid.UUID           `json:"runId"`
	ObjectKey          string              `json:"objectKey"`
	Format             constant.FileFormat `json:"format"`
	Language           constant.Language   `json:"language"`
	CustomInstructions string              `json:"customInstructions,omitempty"`
}

type CreateLectureForm struct {
	Name               string `form:"name" binding:"required,max=255"`
	Language           string `form:"language" binding:"required,language"`
	CustomInstructions string `form:"customInstructions" binding:"max=2000"`
	IsPublic           bool   `form:"isPublic"`
	Tags               string `form:"tags" binding:"max=1000"`
}

type ReuploadForm struct {
	Language           string  `form:"language" binding:"omitempty,language"`
	CustomInstructions *string `form:"customInstructions" binding:"omitempty,max=2000"`
}

type UpdateLectureRequest struct {
	Name     *string   `json:"name" binding:"omitempty,min=1,max=255"`
	IsPublic *bool     `json:"isPublic"`
	Tags     *[]string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
}

type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return q
}

func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type LectureList struct {
	Items []*entities.Lecture `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int64               `json:"total"`
}

type LectureStatusResponse struct {
	ID         uuid.UUID              `json:"id"`
	Status     constant.LectureStatus `json:"status"`
	Progress   int                    `json:"progress"`
	SlideCount int                    `json:"slideCount"`
	Error      string                 `json:"error,omitempty"`
}
