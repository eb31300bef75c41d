package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
		Long:  "Login, logout, and check authentication status for the kbase CLI",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd creates the auth login command
func AuthLoginCmd() *cobra.Command {
	var token string
	var apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with an API token",
		Long:  "Store the API token and URL in global config (~/.config/kbase/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Enter API token: ")
				input, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read API token: %w", err)
				}
				token = strings.TrimSpace(input)
			}
			return runAuthLogin(cmd.OutOrStdout(), token, apiURL)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token, one of the server's KBASE_API_TOKENS")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")

	return cmd
}

// AuthLogoutCmd creates the auth logout command
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear credentials",
		Long:  "Remove stored credentials from global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout())
		},
	}
}

// AuthStatusCmd creates the auth status command
func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display current authentication source and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAuthStatus(cmd.OutOrStdout(), outputJSON)
		},
	}
}

func runAuthLogin(w io.Writer, token, apiURL string) error {
	if !IsValidToken(token) {
		return fmt.Errorf("invalid API token (expected at least %d characters without whitespace)", minTokenLength)
	}

	config := &GlobalConfig{
		Token:  token,
		APIURL: apiURL,
	}

	if err := SaveGlobalConfig(config); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(w, "Successfully logged in")
	return nil
}

func runAuthLogout(w io.Writer) error {
	if err := DeleteGlobalConfig(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	fmt.Fprintln(w, "Successfully logged out")
	return nil
}

func runAuthStatus(w io.Writer, outputJSON bool) error {
	source, token, apiURL := GetCredentialSource("", "")

	if outputJSON {
		status := map[string]any{
			"authenticated": source != SourceNone,
			"source":        string(source),
		}
		if source != SourceNone {
			status["token"] = maskToken(token)
			status["api_url"] = apiURL
		}
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if source == SourceNone {
		fmt.Fprintln(w, "Not authenticated")
		fmt.Fprintln(w, "Run 'kbase auth login' to authenticate")
		return nil
	}

	fmt.Fprintf(w, "Authenticated: yes\n")
	fmt.Fprintf(w, "Source: %s\n", source)
	fmt.Fprintf(w, "Token: %s\n", maskToken(token))
	fmt.Fprintf(w, "API URL: %s\n", apiURL)
	return nil
}

func maskToken(token string) string {
	if len(token) < 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
