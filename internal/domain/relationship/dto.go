package relationship

type BindRequest struct {
	CoachID int64 `json:"coach_id" binding:"required"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

type AttachCategoryRequest struct {
	CategoryID int64 `json:"category_id" binding:"required"`
}

type AdjustRequest struct {
	CategoryID int64  `json:"category_id" binding:"required"`
	Delta      int    `json:"delta" binding:"required"`
	ExpireDate string `json:"expire_date,omitempty"` // YYYY-MM-DD, optional
}

type BookingEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
