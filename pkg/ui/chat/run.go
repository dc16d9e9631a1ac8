package chat

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AskFunc resolves one question into an answer.
type AskFunc func(ctx context.Context, question string) (string, error)

// RuntimeInfo is shown in the console header.
type RuntimeInfo struct {
	Endpoint string
	Timeout  time.Duration
}

func RunInteractive(ctx context.Context, askFn AskFunc, info RuntimeInfo) error {
	model := newModel(ctx, askFn, modeInteractive, "", info)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithMouseCellMotion())
	_, err := program.Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

func RunOneShot(ctx context.Context, askFn AskFunc, info RuntimeInfo, question string) error {
	model := newModel(ctx, askFn, modeOneShot, question, info)
	program := tea.NewProgram(model, tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("29")).
		Padding(1, 2)

	return style.Render("🐛 Stay safe. Thanks for asking the caterpillar")
}
