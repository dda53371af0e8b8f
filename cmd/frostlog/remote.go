package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
)

var errEmptySecret = errors.New("no value entered")

func newRemoteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage the GitHub repository that holds the shared document",
	}
	cmd.AddCommand(newRemoteConfigureCommand(), newRemoteShowCommand())
	return cmd
}

func newRemoteConfigureCommand() *cobra.Command {
	var (
		owner      string
		repo       string
		tokenStdin bool
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the GitHub token, owner and repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), sharedAccess)
			if err != nil {
				return err
			}
			defer rt.Close()

			current := rt.workspace.RemoteConfig()
			token, err := readSecret(cmd.InOrStdin(), tokenStdin, "GitHub token (blank keeps the stored one): ")
			if err != nil && !errors.Is(err, errEmptySecret) {
				return err
			}
			next := credentials.RemoteConfig{
				Token: firstNonEmpty(token, current.Token),
				Owner: firstNonEmpty(owner, current.Owner),
				Repo:  firstNonEmpty(repo, current.Repo),
			}
			if err := rt.workspace.SetRemoteConfig(next); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("remote settings saved to " + rt.credentials.Path()))
			printRemoteConfig(next)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner or organization")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository name")
	cmd.Flags().BoolVar(&tokenStdin, "token-stdin", false, "Read the token from standard input")
	return cmd
}

func newRemoteShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored remote settings without the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), sharedAccess)
			if err != nil {
				return err
			}
			defer rt.Close()
			printRemoteConfig(rt.workspace.RemoteConfig())
			return nil
		},
	}
}

// readSecret reads one line from stdin, or from the terminal without echo when stdin is one.
func readSecret(in io.Reader, fromStdin bool, prompt string) (string, error) {
	if !fromStdin && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return nonEmpty(string(secret))
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return nonEmpty(line)
}

func nonEmpty(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errEmptySecret
	}
	return trimmed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
