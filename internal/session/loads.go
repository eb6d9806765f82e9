package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/concord-chat/relay/internal/models"
)

// Bootstrap loads the roster and the channel directory, then every
// channel's history. Failures are logged and surfaced as notices; Bootstrap
// itself never fails.
func (s *Session) Bootstrap(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		s.LoadUsers(ctx)
		return nil
	})
	g.Go(func() error {
		s.LoadChannels(ctx)
		s.LoadAllHistory(ctx)
		return nil
	})
	g.Wait()
}

// LoadChannels fetches the channel list and merges it into the directory.
// On failure the directory is left unchanged and nil is returned.
func (s *Session) LoadChannels(ctx context.Context) []models.Channel {
	epoch := s.Epoch()
	since := s.directory.Generation()
	_, hadCurrent := s.directory.Current()

	channels, err := s.api.ListChannels(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load channels")
		s.notice(RegionChat, fmt.Sprintf("Could not load channels: %v", err), true)
		return nil
	}
	if s.Epoch() != epoch {
		s.log.Debug().Uint64("epoch", epoch).Msg("Discarding stale channel list")
		return nil
	}

	merged := s.directory.Merge(channels, since)
	s.log.Info().Int("loaded", len(channels)).Int("total", len(merged)).Msg("Channels loaded")
	s.emit(ChannelsChangedEvent{})
	if current, ok := s.directory.Current(); ok && !hadCurrent {
		s.emit(CurrentChannelEvent{Channel: current})
	}

	if t := s.connectedTransport(); t != nil {
		for _, ch := range merged {
			s.subscribeChannel(t, ch.ID)
		}
	}
	return channels
}

// LoadHistory fetches a channel's history and stores it oldest first.
// Results that arrive after an explicit disconnect are discarded.
func (s *Session) LoadHistory(ctx context.Context, channelID string) []models.Message {
	epoch := s.Epoch()

	newestFirst, err := s.api.History(ctx, channelID)
	if err != nil {
		s.log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to load history")
		return nil
	}
	if s.Epoch() != epoch {
		s.log.Debug().Str("channel_id", channelID).Uint64("epoch", epoch).Msg("Discarding stale history")
		return nil
	}

	ordered := s.store.ReplaceHistory(channelID, newestFirst)
	s.emit(HistoryLoadedEvent{ChannelID: channelID, Count: len(ordered)})
	return ordered
}

// LoadAllHistory loads every directory channel's history in parallel
func (s *Session) LoadAllHistory(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(s.historyLimit)

	for _, ch := range s.directory.List() {
		id := ch.ID
		g.Go(func() error {
			s.LoadHistory(ctx, id)
			return nil
		})
	}
	g.Wait()
}

// LoadUsers fetches the user list into the roster
func (s *Session) LoadUsers(ctx context.Context) []models.User {
	epoch := s.Epoch()

	users, err := s.api.ListUsers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load users")
		return nil
	}
	if s.Epoch() != epoch {
		return nil
	}

	s.roster.Replace(users)
	s.emit(UsersChangedEvent{})
	return users
}
