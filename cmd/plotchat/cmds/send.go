package cmds

import (
	"io"
	"strings"

	"github.com/go-go-golems/plotchat/pkg/chatrunner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSendCommand() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message and print the reply (reads stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "could not read message from stdin")
				}
				prompt = strings.TrimSpace(string(b))
			}
			if prompt == "" {
				return errors.New("no message to send")
			}

			s, err := loadSettings()
			if err != nil {
				return err
			}
			builder, router, err := newChatBuilder(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer func() { _ = router.Close() }()

			mode := chatrunner.RunModeBlocking
			if interactive {
				mode = chatrunner.RunModeInteractive
			}
			session, err := builder.
				WithMode(mode).
				WithPrompt(prompt).
				WithOutputWriter(cmd.OutOrStdout()).
				Build()
			if err != nil {
				return err
			}
			return session.Run()
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Offer to continue in the chat UI after the reply")
	return cmd
}
