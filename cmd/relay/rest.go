package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/concord-chat/relay/internal/api"
	"github.com/concord-chat/relay/internal/logx"
)

// restClient builds a REST client for one-shot subcommands logging to stderr
func restClient(flags *globalFlags) (*api.Client, zerolog.Logger, error) {
	cfg, err := loadConfig(flags, logx.New("warn", os.Stderr, true))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logx.New(cfg.Log.Level, os.Stderr, true)

	c, err := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	if err != nil {
		return nil, logger, err
	}
	return c, logger, nil
}

func newChannelsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := restClient(flags)
			if err != nil {
				return err
			}
			channels, err := c.ListChannels(commandContext(cmd))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
			for _, ch := range channels {
				fmt.Fprintf(w, "%s\t#%s\t%s\n", ch.ID, ch.Name, ch.Description)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(newChannelsCreateCmd(flags))
	return cmd
}

func newChannelsCreateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create a channel",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := restClient(flags)
			if err != nil {
				return err
			}
			description := ""
			if len(args) > 1 {
				description = args[1]
			}

			ch, err := c.CreateChannel(commandContext(cmd), args[0], description)
			if err != nil {
				return err
			}
			logger.Debug().Str("channel_id", ch.ID).Msg("Channel created")
			fmt.Fprintf(cmd.OutOrStdout(), "Channel #%s created successfully! (%s)\n", ch.Name, ch.ID)
			return nil
		},
	}
}

func newUsersCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := restClient(flags)
			if err != nil {
				return err
			}
			users, err := c.ListUsers(commandContext(cmd))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tDISPLAY NAME")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t@%s\t%s\n", u.UserID, u.Username, u.DisplayName)
			}
			return w.Flush()
		},
	}
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <channelId>",
		Short: "Print a channel's message history, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := restClient(flags)
			if err != nil {
				return err
			}
			messages, err := c.History(commandContext(cmd), args[0])
			if err != nil {
				return err
			}

			// The backend returns newest first
			out := cmd.OutOrStdout()
			for i := len(messages) - 1; i >= 0; i-- {
				m := messages[i]
				printLine(out, m.CreatedAt(), m.Sender.GetDisplayName(), m.Body)
			}
			return nil
		},
	}
}

func printLine(w io.Writer, at time.Time, author, body string) {
	fmt.Fprintf(w, "%s  %-16s %s\n", at.Format("2006-01-02 15:04"), author, strings.TrimSpace(body))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
