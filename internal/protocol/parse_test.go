package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/concord-chat/relay/internal/errs"
	"github.com/concord-chat/relay/internal/models"
)

func TestChannelNormalizationEquivalence(t *testing.T) {
	a, err := ParseChannel([]byte(`{"channelId":"c1","name":"general","description":"d"}`))
	if err != nil {
		t.Fatalf("ParseChannel canonical: %v", err)
	}
	b, err := ParseChannel([]byte(`{"id":"c1","channelName":"general","description":"d"}`))
	if err != nil {
		t.Fatalf("ParseChannel alternate: %v", err)
	}
	if a != b {
		t.Fatalf("normalized channels differ: %+v vs %+v", a, b)
	}
}

func TestParseChannelDefaults(t *testing.T) {
	ch, err := ParseChannel([]byte(`{"channelId":"c1"}`))
	if err != nil {
		t.Fatalf("ParseChannel: %v", err)
	}
	if ch.Name != models.DefaultChannelName || ch.Description != "" {
		t.Fatalf("unexpected defaults: %+v", ch)
	}

	created, err := ParseCreatedChannel([]byte(`{"message":"ok","channelId":"c9"}`), "random", "off-topic")
	if err != nil {
		t.Fatalf("ParseCreatedChannel: %v", err)
	}
	if created.Name != "random" || created.Description != "off-topic" {
		t.Fatalf("expected requested name/description fallback, got %+v", created)
	}
}

func TestParseChannelListDropsRecordsWithoutID(t *testing.T) {
	body := `[{"channelId":"a","name":"A"},{"name":"orphan"},{"id":"b","channelName":"B"}]`
	channels, dropped, err := ParseChannelList([]byte(body))
	if err != nil {
		t.Fatalf("ParseChannelList: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if len(channels) != 2 || channels[0].ID != "a" || channels[1].ID != "b" || channels[1].Name != "B" {
		t.Fatalf("unexpected channels %+v", channels)
	}
}

func TestParseChannelListRejectsUnknownShapes(t *testing.T) {
	cases := map[string]string{
		"object":         `{"channels":[]}`,
		"string element": `["general"]`,
		"numeric id":     `[{"channelId":42}]`,
		"empty":          ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseChannelList([]byte(body))
			if !errs.Is(err, errs.KindPayloadShape) {
				t.Fatalf("expected payload shape error, got %v", err)
			}
		})
	}
}

func TestParseUserDefaults(t *testing.T) {
	u, err := ParseUser([]byte(`{"id":"u1"}`))
	if err != nil {
		t.Fatalf("ParseUser: %v", err)
	}
	if u.UserID != "u1" || u.DisplayName != models.DefaultDisplayName {
		t.Fatalf("unexpected user %+v", u)
	}
	if !strings.HasPrefix(u.Username, "user_") {
		t.Fatalf("expected generated username, got %q", u.Username)
	}

	_, err = ParseUser([]byte(`{"username":"ghost"}`))
	if !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestParseUserList(t *testing.T) {
	users, dropped, err := ParseUserList([]byte(`[{"userId":"u1","username":"a","displayName":"A"},{}]`))
	if err != nil {
		t.Fatalf("ParseUserList: %v", err)
	}
	if dropped != 1 || len(users) != 1 || users[0].Username != "a" {
		t.Fatalf("unexpected result users=%+v dropped=%d", users, dropped)
	}
}

func TestParseHistoryShapes(t *testing.T) {
	msg := `{"messageId":"m1","channel":{"channelId":"c1"},"sender":{"userId":"u1"},"body":"hi","timeStamp":1}`

	bare, err := ParseHistory([]byte("[" + msg + "]"))
	if err != nil || len(bare) != 1 || bare[0].MessageID != "m1" {
		t.Fatalf("bare array: %v %+v", err, bare)
	}

	wrapped, err := ParseHistory([]byte(`{"channelId":"c1","messages":[` + msg + `]}`))
	if err != nil || len(wrapped) != 1 || wrapped[0].Body != "hi" {
		t.Fatalf("wrapped: %v %+v", err, wrapped)
	}

	for _, body := range []string{`{"channelId":"c1"}`, `"nope"`, ``, `[1,2]`} {
		if _, err := ParseHistory([]byte(body)); !errs.Is(err, errs.KindPayloadShape) {
			t.Errorf("ParseHistory(%q): expected payload shape error, got %v", body, err)
		}
	}
}

func TestParseChannelUpdate(t *testing.T) {
	upd, err := ParseChannelUpdate([]byte(`{"updateType":"NEW_CHANNEL_DTO","channel":{"id":"c2","channelName":"news"}}`))
	if err != nil {
		t.Fatalf("ParseChannelUpdate: %v", err)
	}
	if !upd.IsAdd() || upd.Channel.ID != "c2" || upd.Channel.Name != "news" {
		t.Fatalf("unexpected update %+v", upd)
	}

	del, err := ParseChannelUpdate([]byte(`{"updateType":"DELETE_CHANNEL_DTO","channel":{"channelId":"c2"}}`))
	if err != nil || del.IsAdd() {
		t.Fatalf("delete update: %v %+v", err, del)
	}

	for _, body := range []string{`not json`, `{"channel":{"channelId":"c2"}}`, `{"updateType":"NEW_CHANNEL_DTO"}`, `{"updateType":"NEW_CHANNEL_DTO","channel":{}}`} {
		if _, err := ParseChannelUpdate([]byte(body)); !errs.Is(err, errs.KindProtocol) {
			t.Errorf("ParseChannelUpdate(%q): expected protocol error, got %v", body, err)
		}
	}
}

func TestParseUserUpdate(t *testing.T) {
	upd, err := ParseUserUpdate([]byte(`{"updateType":"DELETE_USER_DTO","user":{"userId":"u3"}}`))
	if err != nil {
		t.Fatalf("ParseUserUpdate: %v", err)
	}
	if upd.IsAdd() || upd.User.UserID != "u3" {
		t.Fatalf("unexpected update %+v", upd)
	}
}

func TestEncodeMessageFieldNames(t *testing.T) {
	msg := models.Message{
		MessageID: "msg_1",
		Channel:   models.ChannelRef{ChannelID: "c1", Name: "general"},
		Sender:    models.User{UserID: "u1", Username: "alice", DisplayName: "Alice"},
		Body:      "hello",
		Type:      models.MessageTypeText,
		TimeStamp: 42,
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	for _, field := range []string{`"messageId":"msg_1"`, `"channelId":"c1"`, `"displayName":"Alice"`, `"type":"MESSAGE_TEXT"`, `"timeStamp":42`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("encoded message missing %s: %s", field, data)
		}
	}

	back, err := ParseMessage(data)
	if err != nil || back != msg {
		t.Fatalf("ParseMessage: %v %+v", err, back)
	}
}

func TestDestinationsChannel(t *testing.T) {
	d := DefaultDestinations()
	if got := d.Channel("abc"); got != "/topic/channel/abc" {
		t.Fatalf("Channel = %q", got)
	}
	d.TopicPrefix = "/topic/room"
	if got := d.Channel("abc"); got != "/topic/room/abc" {
		t.Fatalf("Channel without trailing slash = %q", got)
	}
}
