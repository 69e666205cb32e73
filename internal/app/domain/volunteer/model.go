// Package volunteer holds the account entity permitted to manage jars.
package volunteer

import "time"

// Volunteer is an account capable of owning jars. Only active volunteers may
// create, update or delete jars.
type Volunteer struct {
	ID             string
	Email          string
	PasswordHash   string
	PublicName     string
	FirstName      string
	LastName       string
	PhoneNumber    string
	AdditionalInfo string
	PhotoRef       string
	PhotoAlt       string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
