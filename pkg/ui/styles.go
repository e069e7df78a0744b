package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))

	userBubbleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)
	assistantStyle = lipgloss.NewStyle().PaddingLeft(1)

	chartCardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	chartTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	chartErrorStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Foreground(lipgloss.Color("196")).
			Padding(0, 1)
	loadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Italic(true)
)
