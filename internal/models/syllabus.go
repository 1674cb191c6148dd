package models

import "time"

// WorkflowStatus captures a syllabus version's position in the approval
// workflow. There is no terminal state: PUBLISHED can return to APPROVED and
// rejections cycle back to earlier states.
type WorkflowStatus string

const (
	StatusDraft           WorkflowStatus = "DRAFT"
	StatusPendingReview   WorkflowStatus = "PENDING_REVIEW"
	StatusPendingApproval WorkflowStatus = "PENDING_APPROVAL"
	StatusApproved        WorkflowStatus = "APPROVED"
	StatusPublished       WorkflowStatus = "PUBLISHED"
)

// KnownStatus reports whether the status is part of the closed enumeration.
func KnownStatus(status WorkflowStatus) bool {
	switch status {
	case StatusDraft, StatusPendingReview, StatusPendingApproval, StatusApproved, StatusPublished:
		return true
	default:
		return false
	}
}

// WorkflowActionType enumerates workflow transitions recorded in the audit
// trail, one value per guarded action.
type WorkflowActionType string

const (
	ActionSubmit     WorkflowActionType = "SUBMIT"
	ActionHODApprove WorkflowActionType = "HOD_APPROVE"
	ActionHODReject  WorkflowActionType = "HOD_REJECT"
	ActionAAApprove  WorkflowActionType = "AA_APPROVE"
	ActionAAReject   WorkflowActionType = "AA_REJECT"
	ActionPublish    WorkflowActionType = "PUBLISH"
	ActionUnpublish  WorkflowActionType = "UNPUBLISH"
)

// Syllabus identifies a subject+program offering owned by one lecturer.
// Ownership never transfers. LifecycleStatus mirrors the workflow status of
// the current version.
type Syllabus struct {
	ID               string         `db:"id" json:"id"`
	SubjectID        string         `db:"subject_id" json:"subjectId"`
	ProgramID        string         `db:"program_id" json:"programId"`
	OwnerLecturerID  string         `db:"owner_lecturer_id" json:"ownerLecturerId"`
	CurrentVersionID *string        `db:"current_version_id" json:"currentVersionId,omitempty"`
	LifecycleStatus  WorkflowStatus `db:"lifecycle_status" json:"lifecycleStatus"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`

	CurrentVersion *SyllabusVersion `db:"-" json:"currentVersion,omitempty"`
}

// SyllabusVersion is one revision of a syllabus's content. The submitted,
// approved and published timestamps are set on first entry into the
// corresponding state and never overwritten by later cycles.
type SyllabusVersion struct {
	ID             string         `db:"id" json:"id"`
	SyllabusID     string         `db:"syllabus_id" json:"syllabusId"`
	AcademicYear   string         `db:"academic_year" json:"academicYear"`
	VersionNo      int            `db:"version_no" json:"versionNo"`
	WorkflowStatus WorkflowStatus `db:"workflow_status" json:"workflowStatus"`
	SubmittedAt    *time.Time     `db:"submitted_at" json:"submittedAt,omitempty"`
	ApprovedAt     *time.Time     `db:"approved_at" json:"approvedAt,omitempty"`
	PublishedAt    *time.Time     `db:"published_at" json:"publishedAt,omitempty"`
	CreatedBy      string         `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// WorkflowAction is one append-only audit row, written in the same database
// transaction as the state change it records.
type WorkflowAction struct {
	ID        string             `db:"id" json:"id"`
	VersionID string             `db:"version_id" json:"versionId"`
	ActorID   string             `db:"actor_id" json:"actorId"`
	Action    WorkflowActionType `db:"action" json:"action"`
	Note      *string            `db:"note" json:"note,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"createdAt"`
}

// SyllabusFilter constrains listing queries.
type SyllabusFilter struct {
	Status  WorkflowStatus
	OwnerID string
	Limit   int
	Offset  int
}
