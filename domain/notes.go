package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Visibility of a local note.
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityQuietPublic Visibility = "unlisted"
	VisibilityPrivate     Visibility = "followers"
	VisibilityLocal       Visibility = "local"
)

// QuotePolicy says who may quote a note.
type QuotePolicy string

const (
	QuoteAnyone    QuotePolicy = "anyone"
	QuoteFollowers QuotePolicy = "followers"
	QuoteSelf      QuotePolicy = "self"
)

type Note struct {
	Id        uuid.UUID
	AccountId uuid.UUID
	CreatedBy string
	Message   string
	CreatedAt time.Time
	EditedAt  *time.Time // When the note was last edited (nil if never edited)
	// ActivityPub fields
	Visibility     Visibility
	InReplyToURI   string // URI of the note this is replying to
	ObjectURI      string // ActivityPub object URI
	Sensitive      bool
	ContentWarning string
	QuotePolicy    QuotePolicy
}

func (note *Note) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tCreatedBy: %s \n\tObjectURI: %s \n\tCreatedAt: %s)", note.Id, note.CreatedBy, note.ObjectURI, note.CreatedAt)
}
