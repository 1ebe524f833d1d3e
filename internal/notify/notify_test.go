package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"slappd/internal/model"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNotifier(t *testing.T, sender Sender, flavor string) *Notifier {
	t.Helper()
	r, err := NewRenderer(flavor)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return New(sender, r, 0, discardLogger(), nil)
}

func sampleCheckin() model.Checkin {
	return model.Checkin{
		ID:      105,
		Comment: "<b>nice</b> pour",
		Rating:  4.25,
		User:    model.User{UserName: "alice", FirstName: "Alice", LastName: "Archer"},
		Beer:    model.Beer{ID: 3, Name: "Heady Topper", Label: "https://img.example/heady.png"},
		Brewery: model.Brewery{ID: 30, Name: "The Alchemist"},
		Venue:   &model.Venue{Name: "The Beer Bar"},
	}
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "<b>nice</b> pour", want: "nice pour"},
		{in: "plain", want: "plain"},
		{in: `<a href="x">link</a> text <br/>`, want: "link text"},
		{in: "5 < 6", want: "5 < 6"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, StripMarkup(tt.in)); diff != "" {
			t.Errorf("StripMarkup(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestRenderCheckin(t *testing.T) {
	tests := []struct {
		name    string
		flavor  string
		checkin func() model.Checkin
		want    Message
	}{
		{
			name:    "slack full",
			flavor:  FlavorSlack,
			checkin: sampleCheckin,
			want: Message{
				Text: ":beer: *Alice Archer* is drinking a *Heady Topper* by *The Alchemist* at The Beer Bar (4.25/5)\n" +
					">\"nice pour\"\n" +
					"https://untappd.com/user/alice/checkin/105",
				Icon: "https://img.example/heady.png",
			},
		},
		{
			name:   "slack minimal",
			flavor: FlavorSlack,
			checkin: func() model.Checkin {
				return model.Checkin{
					ID:   7,
					User: model.User{UserName: "bob"},
					Beer: model.Beer{Name: "Old Rasputin"},
				}
			},
			want: Message{
				Text: ":beer: *bob* is drinking an *Old Rasputin*\nhttps://untappd.com/user/bob/checkin/7",
				Icon: DefaultIcon,
			},
		},
		{
			name:    "plain full",
			flavor:  FlavorPlain,
			checkin: sampleCheckin,
			want: Message{
				Text: "🍺 Alice Archer is drinking a Heady Topper by The Alchemist at The Beer Bar (4.25/5)\n" +
					"\"nice pour\"\n" +
					"https://untappd.com/user/alice/checkin/105",
				Icon: "https://img.example/heady.png",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRenderer(tt.flavor)
			if err != nil {
				t.Fatalf("new renderer: %v", err)
			}
			got, err := r.Checkin(tt.checkin())
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Checkin() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewRendererUnknownFlavor(t *testing.T) {
	if _, err := NewRenderer("carrier-pigeon"); err == nil {
		t.Fatal("expected error for unknown flavor")
	}
}

func TestAnnounceBadge(t *testing.T) {
	sender := &recordingSender{}
	n := newTestNotifier(t, sender, FlavorSlack)

	badge := model.Badge{
		Name:        "Hopped Up (Level 5)",
		Description: "That <i>hoppy</i> taste.",
		ImageSmall:  "https://img.example/b1_sm.png",
		ImageMedium: "https://img.example/b1_md.png",
	}
	n.AnnounceBadge(context.Background(), sampleCheckin(), badge)

	want := []Message{{
		Title: "alice earned the Hopped Up (Level 5) badge!",
		Text:  "That hoppy taste.",
		Icon:  "https://img.example/b1_sm.png",
		Thumb: "https://img.example/b1_md.png",
	}}
	if diff := cmp.Diff(want, sender.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if !sender.sent[0].IsAttachment() {
		t.Error("badge message should use the attachment shape")
	}
}

func TestNotifyStripsAndDefaults(t *testing.T) {
	sender := &recordingSender{}
	n := newTestNotifier(t, sender, FlavorPlain)

	n.Notify(context.Background(), Message{Text: "<script>x</script>hello <b>there</b>"})

	want := []Message{{Text: "xhello there", Icon: DefaultIcon}}
	if diff := cmp.Diff(want, sender.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifySwallowsFailures(t *testing.T) {
	sender := &recordingSender{err: errors.New("channel_not_found")}
	n := newTestNotifier(t, sender, FlavorSlack)

	ctx := context.Background()
	n.AnnounceCheckin(ctx, sampleCheckin())
	n.AnnounceCheckin(ctx, sampleCheckin())

	if diff := cmp.Diff(2, len(sender.sent)); diff != "" {
		t.Errorf("send attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyCancelledContext(t *testing.T) {
	sender := &recordingSender{}
	r, err := NewRenderer(FlavorSlack)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	n := New(sender, r, 0.001, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, Message{Text: "hi"})

	if diff := cmp.Diff(0, len(sender.sent)); diff != "" {
		t.Errorf("expected nothing sent after cancel (-want +got):\n%s", diff)
	}
}
