package relationship

import "errors"

var (
	ErrRelationshipNotFound = errors.New("relationship not found")
	ErrRelationshipDisabled = errors.New("relationship is disabled")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrCategoryNotEmpty     = errors.New("category still has remaining credits")
	ErrDefaultCategory      = errors.New("default category cannot be removed")
	ErrInsufficientCredit   = errors.New("insufficient lesson credits")
	ErrInvalidCount         = errors.New("count must be positive")
	ErrNotRelationshipCoach = errors.New("category does not belong to this coach")
)
