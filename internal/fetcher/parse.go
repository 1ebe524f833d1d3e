package fetcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slappd/internal/model"
)

// Untappd formats created_at as RFC 1123 with a numeric zone.
const untappdTimeLayout = time.RFC1123Z

type envelope struct {
	Meta     meta            `json:"meta"`
	Response json.RawMessage `json:"response"`
}

type meta struct {
	Code        int    `json:"code"`
	ErrorType   string `json:"error_type"`
	ErrorDetail string `json:"error_detail"`
}

// checkinsResponse covers both shapes: limit requests nest items under
// "checkins", min_id requests return them at the top level.
type checkinsResponse struct {
	Checkins *itemList     `json:"checkins"`
	Items    []wireCheckin `json:"items"`
}

type itemList struct {
	Count int           `json:"count"`
	Items []wireCheckin `json:"items"`
}

type wireCheckin struct {
	CheckinID int64           `json:"checkin_id"`
	CreatedAt string          `json:"created_at"`
	Comment   string          `json:"checkin_comment"`
	Rating    float64         `json:"rating_score"`
	User      wireUser        `json:"user"`
	Beer      wireBeer        `json:"beer"`
	Brewery   wireBrewery     `json:"brewery"`
	Venue     json.RawMessage `json:"venue"`
	Badges    struct {
		Items []wireBadge `json:"items"`
	} `json:"badges"`
}

type wireUser struct {
	UserName  string `json:"user_name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"user_avatar"`
}

type wireBeer struct {
	ID    int64  `json:"bid"`
	Name  string `json:"beer_name"`
	Style string `json:"beer_style"`
	Label string `json:"beer_label"`
}

type wireBrewery struct {
	ID    int64  `json:"brewery_id"`
	Name  string `json:"brewery_name"`
	Slug  string `json:"brewery_slug"`
	Label string `json:"brewery_label"`
}

type wireVenue struct {
	ID   int64  `json:"venue_id"`
	Name string `json:"venue_name"`
}

type wireBadge struct {
	Name        string `json:"badge_name"`
	Description string `json:"badge_description"`
	Image       struct {
		Small  string `json:"sm"`
		Medium string `json:"md"`
		Large  string `json:"lg"`
	} `json:"badge_image"`
}

var errNoItems = errors.New("response has no check-in items")

// parseCheckins validates a response payload and converts it to model types.
func parseCheckins(raw json.RawMessage) ([]model.Checkin, error) {
	var resp checkinsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	items := resp.Items
	if resp.Checkins != nil {
		items = resp.Checkins.Items
	} else if items == nil && !hasKey(raw, "items") {
		return nil, errNoItems
	}

	out := make([]model.Checkin, 0, len(items))
	for i, w := range items {
		c, err := w.toModel()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (w wireCheckin) toModel() (model.Checkin, error) {
	if w.CheckinID <= 0 {
		return model.Checkin{}, fmt.Errorf("invalid checkin_id %d", w.CheckinID)
	}
	c := model.Checkin{
		ID:      w.CheckinID,
		Comment: w.Comment,
		Rating:  w.Rating,
		User: model.User{
			UserName:  w.User.UserName,
			FirstName: w.User.FirstName,
			LastName:  w.User.LastName,
			Avatar:    w.User.Avatar,
		},
		Beer: model.Beer{
			ID:    w.Beer.ID,
			Name:  w.Beer.Name,
			Style: w.Beer.Style,
			Label: w.Beer.Label,
		},
		Brewery: model.Brewery{
			ID:    w.Brewery.ID,
			Name:  w.Brewery.Name,
			Slug:  w.Brewery.Slug,
			Label: w.Brewery.Label,
		},
		Venue: parseVenue(w.Venue),
	}
	if t, err := time.Parse(untappdTimeLayout, w.CreatedAt); err == nil {
		c.CreatedAt = t.UTC()
	}
	for _, b := range w.Badges.Items {
		c.Badges = append(c.Badges, model.Badge{
			Name:        b.Name,
			Description: b.Description,
			ImageSmall:  b.Image.Small,
			ImageMedium: b.Image.Medium,
		})
	}
	return c, nil
}

// parseVenue handles Untappd sending an empty array instead of null when a
// check-in has no venue.
func parseVenue(raw json.RawMessage) *model.Venue {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var v wireVenue
	if err := json.Unmarshal(raw, &v); err != nil || v.Name == "" {
		return nil
	}
	return &model.Venue{ID: v.ID, Name: v.Name}
}

func hasKey(raw json.RawMessage, key string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
