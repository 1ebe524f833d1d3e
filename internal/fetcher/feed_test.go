package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"slappd/internal/model"
)

func TestFeedSourceFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/user_feed.xml")

	tests := []struct {
		name    string
		minID   int64
		wantIDs []int64
	}{
		{name: "seed keeps newest only", minID: 0, wantIDs: []int64{105}},
		{name: "incremental skips seen", minID: 101, wantIDs: []int64{105, 103}},
		{name: "nothing new", minID: 105, wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTransport{body: xml, statusCode: 200}
			f := NewFeedSource(tr, FeedOptions{BaseURL: "https://untappd.example/rss", Key: "k"})

			got, err := f.Fetch(context.Background(), "alice", tt.minID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var ids []int64
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("k", tr.last.URL.Query().Get("key")); diff != "" {
				t.Errorf("key mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeedSourceErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		wantKind  Kind
	}{
		{name: "not found", transport: &mockTransport{body: "nope", statusCode: 404}, wantKind: KindUpstream},
		{name: "rate limited", transport: &mockTransport{body: "", statusCode: 429}, wantKind: KindRateLimited},
		{name: "invalid xml", transport: &mockTransport{body: "not xml at all", statusCode: 200}, wantKind: KindMalformed},
		{name: "network", transport: &mockTransport{err: errors.New("reset by peer")}, wantKind: KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFeedSource(tt.transport, FeedOptions{Key: "k"})
			_, err := f.Fetch(context.Background(), "alice", 1)
			if diff := cmp.Diff(tt.wantKind, KindOf(err)); diff != "" {
				t.Errorf("kind mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeedItemCheckin(t *testing.T) {
	tests := []struct {
		name   string
		item   *gofeed.Item
		want   model.Checkin
		wantOK bool
	}{
		{
			name: "full title with venue",
			item: &gofeed.Item{
				Title:       "Alice A. is drinking a Heady Topper by The Alchemist at The Beer Bar",
				Link:        "https://untappd.com/user/alice/checkin/105",
				Description: "great",
			},
			want: model.Checkin{
				ID:      105,
				Comment: "great",
				User:    model.User{UserName: "alice", FirstName: "Alice A."},
				Beer:    model.Beer{Name: "Heady Topper"},
				Brewery: model.Brewery{Name: "The Alchemist"},
				Venue:   &model.Venue{Name: "The Beer Bar"},
			},
			wantOK: true,
		},
		{
			name: "unrecognised title falls back to beer name",
			item: &gofeed.Item{Title: "Something else", GUID: "https://untappd.com/user/alice/checkin/7"},
			want: model.Checkin{
				ID:   7,
				User: model.User{UserName: "alice"},
				Beer: model.Beer{Name: "Something else"},
			},
			wantOK: true,
		},
		{
			name:   "not a checkin",
			item:   &gofeed.Item{Title: "badge", Link: "https://untappd.com/user/alice"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := feedItemCheckin("alice", tt.item)
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Fatalf("ok mismatch (-want +got):\n%s", diff)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("checkin mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
