package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"caterpillar/pkg/channel"
	"caterpillar/pkg/config"
	"caterpillar/pkg/logger"
	"caterpillar/pkg/query"
	"caterpillar/pkg/relay"
	"caterpillar/pkg/ui/chat"

	"github.com/spf13/cobra"
)

var askPlain bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the query service from the terminal",
	Long:  "Sends one question to the query service, or starts an interactive console when no question is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if askPlain {
			if question == "" {
				return errors.New("--plain needs a question")
			}
			return runPlainAsk(cmd.Context(), cfg, cmd.OutOrStdout(), question)
		}

		// Log lines would tear the terminal UI.
		client, err := query.New(cfg.Service, slog.New(slog.DiscardHandler))
		if err != nil {
			return fmt.Errorf("configure query client: %w", err)
		}

		info := chat.RuntimeInfo{Endpoint: client.URL(), Timeout: client.Timeout()}
		if question != "" {
			return chat.RunOneShot(cmd.Context(), client.Answer, info, question)
		}
		return chat.RunInteractive(cmd.Context(), client.Answer, info)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askPlain, "plain", false, "print the reply as the bot would send it, without the terminal UI")
}

// runPlainAsk routes question through the same router the bot uses and
// writes each reply to out.
func runPlainAsk(ctx context.Context, cfg *config.Config, out io.Writer, question string) error {
	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	client, err := query.New(cfg.Service, appLogger)
	if err != nil {
		return fmt.Errorf("configure query client: %w", err)
	}

	router := relay.NewRouter(client, writerSender{out: out}, nil, appLogger)
	return router.Handle(ctx, channel.Message{
		SenderName: consoleUserName(),
		Text:       question,
	})
}

// writerSender prints replies instead of delivering them to a chat.
type writerSender struct {
	out io.Writer
}

func (s writerSender) Send(_ context.Context, reply channel.Reply) error {
	_, err := fmt.Fprintln(s.out, reply.Body)
	return err
}

func (s writerSender) Typing(context.Context, int64) error {
	return nil
}

func consoleUserName() string {
	if name := strings.TrimSpace(os.Getenv("USER")); name != "" {
		return name
	}

	return "friend"
}
