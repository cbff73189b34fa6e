package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/botforge/botcore/internal/composer"
	"github.com/botforge/botcore/internal/logging"
)

// NewAskCmd constructs the `botcore ask` command, which sends a single
// message through the full pipeline and prints the reply.
func NewAskCmd() *cobra.Command {
	var tenant string
	var conversation string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message through a tenant's bot",
		Long: `Send a single message through the chat pipeline as if a customer wrote it.

Useful for verifying a tenant's training from the terminal. Without
--conversation each invocation starts a fresh conversation.

Examples:
  botcore ask --tenant bot-a "what are your opening hours?"
  botcore ask --tenant bot-a --conversation test-1 "and on fridays?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenant == "" {
				return fmt.Errorf("ask: --tenant is required")
			}
			if conversation == "" {
				conversation = uuid.NewString()
			}

			rt, err := buildComposer(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer rt.close()

			resp, err := rt.composer.Respond(ctx, &composer.Request{
				TenantID:       tenant,
				ConversationID: conversation,
				Message:        args[0],
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Answer)
			for _, p := range resp.Products {
				fmt.Printf("  - %s", p.Name)
				if p.Price != "" {
					fmt.Printf(" (%s)", p.Price)
				}
				if p.PageURL != "" {
					fmt.Printf(" %s", p.PageURL)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant (bot) identifier")
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation identifier (default: random)")

	return cmd
}
