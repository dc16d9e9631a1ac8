package chat

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header      lipgloss.Style
	headerMeta  lipgloss.Style
	divider     lipgloss.Style
	bootLine    lipgloss.Style
	bootDone    lipgloss.Style
	userBox     lipgloss.Style
	userTitle   lipgloss.Style
	answerBox   lipgloss.Style
	answerTitle lipgloss.Style
	helpBox     lipgloss.Style
	helpTitle   lipgloss.Style
	errorBox    lipgloss.Style
	errorTitle  lipgloss.Style
	status      lipgloss.Style
	statusBusy  lipgloss.Style
	statusErr   lipgloss.Style
	hint        lipgloss.Style
	inputLabel  lipgloss.Style
	input       lipgloss.Style
	viewport    lipgloss.Style
}

// defaultTheme is a mushroom-forest palette: mossy greens with violet accents.
func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("29")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("151")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("65")),
		bootLine: lipgloss.NewStyle().
			Foreground(lipgloss.Color("108")),
		bootDone: lipgloss.NewStyle().
			Foreground(lipgloss.Color("78")).
			Bold(true),
		userBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("141")).
			Padding(0, 1),
		userTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("141")),
		answerBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("78")).
			Background(lipgloss.Color("234")).
			Padding(0, 1),
		answerTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("78")),
		helpBox: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("109")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		helpTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("109")),
		errorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("203")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
		errorTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("186")).
			Bold(true),
		statusErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		inputLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("141")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("65")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("65")).
			Padding(0, 1),
	}
}
