package enrollment

import (
	"errors"
	"time"

	"github.com/mafunzo/mafunzo/core"
)

var (
	ErrDraftNotFound      = errors.New("enrollment draft not found")
	ErrNotFound           = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("participant is already enrolled in this program")
	ErrProgramInactive    = errors.New("program is not open for enrollment")
	ErrAlreadyFinal       = errors.New("enrollment is already approved or rejected")
	ErrDraftAlreadySubmit = errors.New("enrollment draft was already submitted")
)

// Status is the enrollment lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Draft is a server-held, partially-completed enrollment form keyed by an
// opaque id. The frontend passes the id between form steps instead of
// stashing state client-side.
type Draft struct {
	ID               string    `json:"id"`
	ProgramID        string    `json:"program_id"`
	ParticipantID    string    `json:"participant_id"`
	ParticipantName  string    `json:"participant_name"`
	ParticipantEmail string    `json:"participant_email"`
	ReferralCode     string    `json:"referral_code,omitempty"`
	Submitted        bool      `json:"submitted"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

// Enrollment is a participant's registration to a program, priced at
// creation. Monetary fields are in minor units and fixed once recorded.
type Enrollment struct {
	ID               string    `json:"id"`
	ProgramID        string    `json:"program_id"`
	ParticipantID    string    `json:"participant_id"`
	ParticipantName  string    `json:"participant_name"`
	ParticipantEmail string    `json:"participant_email"`
	BasePrice        int64     `json:"base_price"`
	Discount         int64     `json:"discount"`
	FinalPrice       int64     `json:"final_price"`
	TrackingID       string    `json:"tracking_id,omitempty"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	DecidedAt        time.Time `json:"decided_at,omitempty"`
}

// NewDraft contains information needed to start an enrollment draft.
type NewDraft struct {
	ProgramID        string `json:"program_id" validate:"required"`
	ParticipantID    string `json:"participant_id" validate:"required"`
	ParticipantName  string `json:"participant_name" validate:"required"`
	ParticipantEmail string `json:"participant_email" validate:"required,email"`
	ReferralCode     string `json:"referral_code"`
}

func (nd *NewDraft) Validate() error {
	nd.ProgramID = core.CleanString(nd.ProgramID)
	nd.ParticipantID = core.CleanString(nd.ParticipantID)
	nd.ParticipantName = core.CleanString(nd.ParticipantName)
	nd.ParticipantEmail = core.CleanString(nd.ParticipantEmail, true /* lower */)
	nd.ReferralCode = core.CleanString(nd.ReferralCode)
	return core.Validate.Struct(nd)
}

// UpdateDraft defines the fields a later form step may fill in.
type UpdateDraft struct {
	ParticipantName  string `json:"participant_name"`
	ParticipantEmail string `json:"participant_email" validate:"omitempty,email"`
	ReferralCode     string `json:"referral_code"`
}

func (ud *UpdateDraft) Validate() error {
	ud.ParticipantName = core.CleanString(ud.ParticipantName)
	ud.ParticipantEmail = core.CleanString(ud.ParticipantEmail, true /* lower */)
	ud.ReferralCode = core.CleanString(ud.ReferralCode)
	return core.Validate.Struct(ud)
}
