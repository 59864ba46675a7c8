package types

import (
	"time"

	"github.com/google/uuid"
)

// AdType is the kind of advertisement being requested.
type AdType string

const (
	AdTypePrint   AdType = "print"
	AdTypeDigital AdType = "digital"
	AdTypeSocial  AdType = "social"
	AdTypeVideo   AdType = "video"
	AdTypeOther   AdType = "other"
)

// AdTypes lists every accepted ad type in display order.
var AdTypes = []AdType{AdTypePrint, AdTypeDigital, AdTypeSocial, AdTypeVideo, AdTypeOther}

// Valid reports whether t is one of the accepted ad types.
func (t AdType) Valid() bool {
	for _, known := range AdTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AdRequest is a submitted request for an advertisement together with
// its review state.
type AdRequest struct {
	// ID is the unique identifier of the request, assigned at creation.
	ID uuid.UUID `json:"id" db:"id"`

	// RequesterName is the full name of the person submitting the request.
	RequesterName string `json:"requesterName" db:"requester_name"`

	// RequesterEmail is where confirmation and status updates are sent.
	RequesterEmail string `json:"requesterEmail" db:"requester_email"`

	// RequesterDepartment is the department the request is made for.
	RequesterDepartment string `json:"requesterDepartment" db:"requester_department"`

	// RequesterPhone is a contact phone number for the requester.
	RequesterPhone string `json:"requesterPhone" db:"requester_phone"`

	// AdType is the kind of advertisement requested.
	AdType AdType `json:"adType" db:"ad_type"`

	// AdPurpose describes what the advertisement should achieve.
	AdPurpose string `json:"adPurpose" db:"ad_purpose"`

	// TargetAudience optionally describes who the ad is aimed at.
	TargetAudience string `json:"targetAudience,omitempty" db:"target_audience"`

	// DesiredPlacement optionally names where the ad should run.
	DesiredPlacement string `json:"desiredPlacement,omitempty" db:"desired_placement"`

	// Budget is the optional budget for the ad.
	Budget *float64 `json:"budget,omitempty" db:"budget"`

	// RequestDate is the server timestamp at which the request was created.
	RequestDate time.Time `json:"requestDate" db:"request_date"`

	// DesiredCompletionDate is when the requester needs the ad delivered.
	DesiredCompletionDate time.Time `json:"desiredCompletionDate" db:"desired_completion_date"`

	// AdTitle, AdDescription and SpecialInstructions carry optional
	// free-text content for the ad.
	AdTitle             string `json:"adTitle,omitempty" db:"ad_title"`
	AdDescription       string `json:"adDescription,omitempty" db:"ad_description"`
	SpecialInstructions string `json:"specialInstructions,omitempty" db:"special_instructions"`

	// Files is the ordered list of attachments uploaded with the request.
	Files []FileRef `json:"files" db:"files"`

	// Status is the current lifecycle state of the request.
	Status RequestStatus `json:"status" db:"status"`

	// AssignedTo references the reviewer responsible for the request.
	// Assignment is advisory and only scopes reviewer access.
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty" db:"assigned_to"`

	// AdminNotes is the append-only review log of the request.
	AdminNotes []AdminNote `json:"adminNotes" db:"admin_notes"`

	// LastUpdated is bumped on every successful update.
	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`

	// CreatedAt is the row creation timestamp.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// IsAssignedTo reports whether the request is assigned to the given user.
func (r AdRequest) IsAssignedTo(userID uuid.UUID) bool {
	return r.AssignedTo != nil && *r.AssignedTo == userID
}

// FileRef references an attachment stored in object storage.
type FileRef struct {
	// OriginalName is the file name supplied by the uploader.
	OriginalName string `json:"originalName"`

	// StoredName is the generated name the file is stored under.
	StoredName string `json:"storedName"`

	// MimeType is the declared content type of the upload.
	MimeType string `json:"mimeType"`

	// SizeBytes is the size of the file in bytes.
	SizeBytes int64 `json:"sizeBytes"`

	// URL is the API path from which the file can be downloaded.
	URL string `json:"url"`

	// UploadedAt is when the file was stored.
	UploadedAt time.Time `json:"uploadedAt"`
}

// AdminNote is a single entry of a request's review log.
type AdminNote struct {
	Text      string    `json:"text"`
	AuthorID  uuid.UUID `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdRequestDetail is a request with its user references resolved for
// display. References that no longer resolve are left nil.
type AdRequestDetail struct {
	AdRequest
	Assignee   *UserSummary      `json:"assignee"`
	AdminNotes []AdminNoteDetail `json:"adminNotes"`
}

// AdminNoteDetail is an admin note with its author resolved.
type AdminNoteDetail struct {
	AdminNote
	Author *UserSummary `json:"author"`
}
