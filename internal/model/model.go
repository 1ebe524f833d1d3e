// Package model defines the domain types used across the application.
package model

import "time"

// User is the Untappd account that made a check-in.
type User struct {
	UserName  string
	FirstName string
	LastName  string
	Avatar    string
}

// DisplayName returns "First Last", falling back to the user name.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.UserName
	}
}

// Beer is the item that was checked in.
type Beer struct {
	ID    int64
	Name  string
	Style string
	Label string
}

// Brewery produces a Beer.
type Brewery struct {
	ID    int64
	Name  string
	Slug  string
	Label string
}

// Venue is where a check-in happened.
type Venue struct {
	ID   int64
	Name string
}

// Badge is an achievement earned alongside a check-in.
type Badge struct {
	Name        string
	Description string
	ImageSmall  string
	ImageMedium string
}

// Checkin is a single activity event from a user's stream.
// IDs increase monotonically within one user's stream.
type Checkin struct {
	ID        int64
	CreatedAt time.Time
	Comment   string
	// Rating is 0 when the user did not rate the beer.
	Rating  float64
	User    User
	Beer    Beer
	Brewery Brewery
	Venue   *Venue
	Badges  []Badge
}

// HasRating reports whether the check-in carries a rating.
func (c Checkin) HasRating() bool {
	return c.Rating > 0
}

// Icon returns the best image to show next to the check-in, or "" if none.
func (c Checkin) Icon() string {
	if c.Beer.Label != "" {
		return c.Beer.Label
	}
	return c.Brewery.Label
}
