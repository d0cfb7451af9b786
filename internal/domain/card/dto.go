package card

type CreateTemplateRequest struct {
	Name        string `json:"name" binding:"required"`
	Color       string `json:"color"`
	LessonCount *int   `json:"lesson_count"` // null = unlimited
	ValidDays   int    `json:"valid_days" binding:"required,gt=0"`
}

type TemplateActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type IssueRequest struct {
	TemplateID     int64 `json:"template_id" binding:"required"`
	RelationshipID int64 `json:"relationship_id" binding:"required"`
}
