package notify

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"slappd/internal/model"
)

// Template flavours.
const (
	FlavorSlack = "slack"
	FlavorPlain = "plain"
)

// DefaultIcon is shown when a check-in has no label image.
const DefaultIcon = "https://untappd.akamaized.net/assets/apple-touch-icon.png"

const untappdDomain = "https://untappd.com"

//go:embed templates/*.tmpl
var templateFS embed.FS

var funcs = template.FuncMap{
	"article": article,
}

// Renderer turns check-ins and badges into Messages.
type Renderer struct {
	checkin *template.Template
}

// NewRenderer loads the check-in template for flavor.
func NewRenderer(flavor string) (*Renderer, error) {
	name := "checkin_" + flavor + ".tmpl"
	tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Renderer{checkin: tmpl}, nil
}

// checkinView is the template data. Upstream text is already stripped of markup.
type checkinView struct {
	DisplayName string
	Beer        string
	Brewery     string
	Venue       string
	Rating      string
	Comment     string
	URL         string
}

func newCheckinView(c model.Checkin) checkinView {
	v := checkinView{
		DisplayName: StripMarkup(c.User.DisplayName()),
		Beer:        StripMarkup(c.Beer.Name),
		Brewery:     StripMarkup(c.Brewery.Name),
		Comment:     StripMarkup(c.Comment),
	}
	if c.Venue != nil {
		v.Venue = StripMarkup(c.Venue.Name)
	}
	if c.HasRating() {
		v.Rating = strconv.FormatFloat(c.Rating, 'f', -1, 64)
	}
	if c.User.UserName != "" {
		v.URL = fmt.Sprintf("%s/user/%s/checkin/%d", untappdDomain, c.User.UserName, c.ID)
	}
	return v
}

// Checkin renders the announcement for a check-in.
func (r *Renderer) Checkin(c model.Checkin) (Message, error) {
	var b strings.Builder
	if err := r.checkin.Execute(&b, newCheckinView(c)); err != nil {
		return Message{}, fmt.Errorf("render checkin %d: %w", c.ID, err)
	}
	icon := c.Icon()
	if icon == "" {
		icon = DefaultIcon
	}
	return Message{Text: strings.TrimSpace(b.String()), Icon: icon}, nil
}

// Badge renders the announcement for a badge earned on c.
func (r *Renderer) Badge(c model.Checkin, badge model.Badge) Message {
	user := c.User.UserName
	if user == "" {
		user = c.User.DisplayName()
	}
	return Message{
		Title: fmt.Sprintf("%s earned the %s badge!", user, badge.Name),
		Text:  badge.Description,
		Icon:  badge.ImageSmall,
		Thumb: badge.ImageMedium,
	}
}

func article(word string) string {
	if word == "" {
		return "a"
	}
	switch strings.ToLower(word[:1]) {
	case "a", "e", "i", "o", "u":
		return "an"
	}
	return "a"
}
