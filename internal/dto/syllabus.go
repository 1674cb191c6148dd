package dto

// CreateSyllabusRequest creates a new draft syllabus owned by the caller.
type CreateSyllabusRequest struct {
	SubjectID string `json:"subjectId" binding:"required"`
	ProgramID string `json:"programId" binding:"required"`
}

// UpdateSyllabusRequest updates a draft. Empty fields keep their current
// value.
type UpdateSyllabusRequest struct {
	SubjectID string `json:"subjectId"`
	ProgramID string `json:"programId"`
}

// DecisionRequest carries the optional note on an approval action.
type DecisionRequest struct {
	Note string `json:"note"`
}

// RejectRequest carries the mandatory reason on a rejection.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ListSyllabiQuery filters the authenticated syllabus listing.
type ListSyllabiQuery struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}
