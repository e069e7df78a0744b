package cmds

import (
	"github.com/go-go-golems/plotchat/pkg/chatrunner"
	"github.com/go-go-golems/plotchat/pkg/tokens"
	"github.com/go-go-golems/plotchat/pkg/ui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the backend, full screen on a terminal or line by line otherwise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			builder, router, err := newChatBuilder(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer func() { _ = router.Close() }()

			if resolveMode(s.UI.Mode) == modeTUI {
				builder = builder.WithMode(chatrunner.RunModeChat)
				counter, err := tokens.NewCounter(s.UI.TokenEncoding)
				if err != nil {
					log.Warn().Err(err).Msg("token meter disabled")
				} else {
					builder = builder.WithUIOptions(ui.WithTokenCounter(counter))
				}
			} else {
				builder = builder.
					WithMode(chatrunner.RunModeLine).
					WithInputReader(cmd.InOrStdin()).
					WithOutputWriter(cmd.OutOrStdout())
			}

			session, err := builder.Build()
			if err != nil {
				return err
			}
			return session.Run()
		},
	}
}
