package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/internal/server"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var (
		userID         string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message through the swarm and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return errors.New("message is empty")
			}

			res, err := a.orchestrator.Chat(cmd.Context(), core.NewConversationKey(userID, conversationID), text)
			if err != nil {
				return fmt.Errorf("%s: %w", core.Kind(err), err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Response)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", server.DefaultUserID, "user id")
	cmd.Flags().StringVar(&conversationID, "conversation", server.DefaultConversationID, "conversation id")

	return cmd
}
