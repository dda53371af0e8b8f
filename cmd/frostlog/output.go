package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/syncer"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bannerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(0, 1)
)

func printBanner(address string, remote credentials.RemoteConfig) {
	target := mutedStyle.Render("remote sync not configured")
	if remote.Complete() {
		target = fmt.Sprintf("%s/%s", remote.Owner, remote.Repo)
	}
	fmt.Println(bannerStyle.Render(fmt.Sprintf("%s\nlistening on %s\nsyncing with %s", titleStyle.Render("frostlog"), address, target)))
}

// printOutcome reports whether the outcome left local and remote state consistent.
func printOutcome(outcome syncer.Outcome) {
	style := successStyle
	if !outcome.Succeeded() {
		style = errorStyle
	}
	line := style.Render(outcome.Message)
	if outcome.SHA != "" {
		line += " " + mutedStyle.Render(outcome.SHA)
	}
	fmt.Println(line)
}

func printRemoteConfig(remote credentials.RemoteConfig) {
	fmt.Printf("%s %s\n", titleStyle.Render("state:"), remote.State())
	fmt.Printf("%s %s\n", titleStyle.Render("owner:"), remote.Owner)
	fmt.Printf("%s %s\n", titleStyle.Render("repo: "), remote.Repo)
	fmt.Printf("%s %s\n", titleStyle.Render("token:"), remote.MaskToken())
}
