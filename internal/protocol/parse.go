package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/concord-chat/relay/internal/errs"
	"github.com/concord-chat/relay/internal/models"
)

// ErrMissingID is returned for records that carry no identifier
var ErrMissingID = errors.New("record has no id")

// channelDTO accepts both server naming conventions for a channel
type channelDTO struct {
	ChannelID   *string `json:"channelId"`
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	ChannelName *string `json:"channelName"`
	Description *string `json:"description"`
}

type userDTO struct {
	UserID      *string `json:"userId"`
	ID          *string `json:"id"`
	Username    *string `json:"username"`
	DisplayName *string `json:"displayName"`
}

type channelUpdateDTO struct {
	UpdateType *string          `json:"updateType"`
	Channel    *json.RawMessage `json:"channel"`
}

type userUpdateDTO struct {
	UpdateType *string          `json:"updateType"`
	User       *json.RawMessage `json:"user"`
}

// ParseChannel normalizes a single channel record. Records without an id
// return ErrMissingID; a missing name becomes "unnamed".
func ParseChannel(raw []byte) (models.Channel, error) {
	return parseChannel("protocol.ParseChannel", raw, models.Channel{Name: models.DefaultChannelName})
}

// ParseCreatedChannel normalizes the response to a create request, falling
// back to the requested name and description.
func ParseCreatedChannel(raw []byte, name, description string) (models.Channel, error) {
	return parseChannel("protocol.ParseCreatedChannel", raw, models.Channel{Name: name, Description: description})
}

func parseChannel(op string, raw []byte, defaults models.Channel) (models.Channel, error) {
	var dto channelDTO
	if err := decodeObject(raw, &dto); err != nil {
		return models.Channel{}, errs.E(errs.KindPayloadShape, op, err)
	}

	ch := defaults
	ch.ID = firstNonEmpty(dto.ChannelID, dto.ID)
	if ch.ID == "" {
		return models.Channel{}, errs.E(errs.KindPayloadShape, op, ErrMissingID)
	}
	if name := firstNonEmpty(dto.Name, dto.ChannelName); name != "" {
		ch.Name = name
	}
	if dto.Description != nil {
		ch.Description = *dto.Description
	}
	return ch, nil
}

// ParseChannelList normalizes a channel array. Elements without an id are
// dropped and reported in the dropped count; a non-array payload or a
// non-object element fails the whole list.
func ParseChannelList(data []byte) (channels []models.Channel, dropped int, err error) {
	const op = "protocol.ParseChannelList"

	items, err := decodeArray(data)
	if err != nil {
		return nil, 0, errs.E(errs.KindPayloadShape, op, err)
	}

	channels = make([]models.Channel, 0, len(items))
	for i, item := range items {
		ch, err := ParseChannel(item)
		if errors.Is(err, ErrMissingID) {
			dropped++
			continue
		}
		if err != nil {
			return nil, 0, errs.E(errs.KindPayloadShape, op, fmt.Errorf("element %d: %w", i, err))
		}
		channels = append(channels, ch)
	}
	return channels, dropped, nil
}

// ParseUser normalizes a single user record. A missing username becomes
// "user_" plus random characters and a missing display name becomes "User".
func ParseUser(raw []byte) (models.User, error) {
	const op = "protocol.ParseUser"

	var dto userDTO
	if err := decodeObject(raw, &dto); err != nil {
		return models.User{}, errs.E(errs.KindPayloadShape, op, err)
	}

	user := models.User{
		UserID:      firstNonEmpty(dto.UserID, dto.ID),
		Username:    firstNonEmpty(dto.Username),
		DisplayName: firstNonEmpty(dto.DisplayName),
	}
	if user.UserID == "" {
		return models.User{}, errs.E(errs.KindPayloadShape, op, ErrMissingID)
	}
	if user.Username == "" {
		user.Username = models.FallbackUsername()
	}
	if user.DisplayName == "" {
		user.DisplayName = models.DefaultDisplayName
	}
	return user, nil
}

// ParseUserList normalizes a user array, dropping records without an id
func ParseUserList(data []byte) (users []models.User, dropped int, err error) {
	const op = "protocol.ParseUserList"

	items, err := decodeArray(data)
	if err != nil {
		return nil, 0, errs.E(errs.KindPayloadShape, op, err)
	}

	users = make([]models.User, 0, len(items))
	for i, item := range items {
		u, err := ParseUser(item)
		if errors.Is(err, ErrMissingID) {
			dropped++
			continue
		}
		if err != nil {
			return nil, 0, errs.E(errs.KindPayloadShape, op, fmt.Errorf("element %d: %w", i, err))
		}
		users = append(users, u)
	}
	return users, dropped, nil
}

// ParseHistory accepts either a bare message array or an object with a
// "messages" array. Order is preserved as delivered (newest first).
func ParseHistory(data []byte) ([]models.Message, error) {
	const op = "protocol.ParseHistory"

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errs.E(errs.KindPayloadShape, op, errors.New("empty body"))
	}

	switch trimmed[0] {
	case '[':
		var msgs []models.Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, errs.E(errs.KindPayloadShape, op, err)
		}
		return msgs, nil
	case '{':
		var env struct {
			Messages *[]models.Message `json:"messages"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, errs.E(errs.KindPayloadShape, op, err)
		}
		if env.Messages == nil {
			return nil, errs.E(errs.KindPayloadShape, op, errors.New("object has no messages array"))
		}
		return *env.Messages, nil
	default:
		return nil, errs.E(errs.KindPayloadShape, op, errors.New("expected array or object"))
	}
}

// ParseMessage decodes a live message delivered on a channel topic
func ParseMessage(data []byte) (models.Message, error) {
	var msg models.Message
	if err := decodeObject(data, &msg); err != nil {
		return models.Message{}, errs.E(errs.KindProtocol, "protocol.ParseMessage", err)
	}
	return msg, nil
}

// EncodeMessage encodes an outbound message for the send destination
func EncodeMessage(msg models.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// ParseChannelUpdate decodes a /topic/channels event
func ParseChannelUpdate(data []byte) (ChannelUpdate, error) {
	const op = "protocol.ParseChannelUpdate"

	var dto channelUpdateDTO
	if err := decodeObject(data, &dto); err != nil {
		return ChannelUpdate{}, errs.E(errs.KindProtocol, op, err)
	}
	if dto.UpdateType == nil || *dto.UpdateType == "" {
		return ChannelUpdate{}, errs.E(errs.KindProtocol, op, errors.New("missing updateType"))
	}
	if dto.Channel == nil {
		return ChannelUpdate{}, errs.E(errs.KindProtocol, op, errors.New("missing channel"))
	}

	ch, err := ParseChannel(*dto.Channel)
	if err != nil {
		return ChannelUpdate{}, errs.E(errs.KindProtocol, op, err)
	}
	return ChannelUpdate{Type: UpdateType(*dto.UpdateType), Channel: ch}, nil
}

// ParseUserUpdate decodes a /topic/users event
func ParseUserUpdate(data []byte) (UserUpdate, error) {
	const op = "protocol.ParseUserUpdate"

	var dto userUpdateDTO
	if err := decodeObject(data, &dto); err != nil {
		return UserUpdate{}, errs.E(errs.KindProtocol, op, err)
	}
	if dto.UpdateType == nil || *dto.UpdateType == "" {
		return UserUpdate{}, errs.E(errs.KindProtocol, op, errors.New("missing updateType"))
	}
	if dto.User == nil {
		return UserUpdate{}, errs.E(errs.KindProtocol, op, errors.New("missing user"))
	}

	u, err := ParseUser(*dto.User)
	if err != nil {
		return UserUpdate{}, errs.E(errs.KindProtocol, op, err)
	}
	return UserUpdate{Type: UpdateType(*dto.UpdateType), User: u}, nil
}

// decodeObject rejects anything that is not a JSON object before decoding
func decodeObject(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("expected JSON object")
	}
	return json.Unmarshal(trimmed, v)
}

func decodeArray(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("expected JSON array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return *v
		}
	}
	return ""
}
