package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when no row matches.
var ErrNotFound = errors.New("not found")

type Account struct {
	Id                        uuid.UUID
	Username                  string
	DisplayName               string
	Summary                   string
	CreatedAt                 time.Time
	ManuallyApprovesFollowers bool
	WebPublicKey              string
	WebPrivateKey             string
	MovedTo                   string // actor URI this account migrated to, empty if none
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tManuallyApprovesFollowers: %t \n\tCREATED_AT: %s)", acc.Id, acc.Username, acc.ManuallyApprovesFollowers, acc.CreatedAt)
}
