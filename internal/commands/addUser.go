package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"techpaint/internal/config"
	"techpaint/internal/models"
)

// AddUser asks the running server's admin API to create an account and
// prints the generated password.
func AddUser(email string, cfg *config.Config) error {
	reqBody, err := json.Marshal(models.AddUserRequest{Email: email})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result models.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nUser Created Successfully!\n")
	fmt.Printf("E-mail:    %s\n", result.User.Email)
	fmt.Printf("Name:      %s\n", result.User.Name)
	fmt.Printf("Password:  %s\n\n", result.Password)
	fmt.Printf("Share the password with the user. They can log in at %s/login\n", strings.TrimSuffix(cfg.BaseURL, "/"))
	return nil
}
