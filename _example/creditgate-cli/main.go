package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

var serverURL string

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	serverURL = getEnv("SERVER_URL", "http://localhost:8080")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func main() {
	fmt.Printf("=== CreditGate Device Flow CLI Demo ===\n")

	// Configure OAuth2 with device flow endpoints
	config := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: serverURL + "/device/code",
			TokenURL:      serverURL + "/device/token",
		},
		Scopes: []string{"llm:chat"},
	}

	ctx := context.Background()

	// Step 1: Request device code
	fmt.Println("Step 1: Requesting device code...")
	deviceAuth, err := config.DeviceAuth(ctx)
	if err != nil {
		fmt.Printf("Error requesting device code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n----------------------------------------\n")
	fmt.Printf("Please open this link to authorize:\n%s\n", deviceAuth.VerificationURIComplete)
	fmt.Printf("\nOr manually visit: %s\n", deviceAuth.VerificationURI)
	fmt.Printf("And enter code: %s\n", deviceAuth.UserCode)
	fmt.Printf("----------------------------------------\n\n")

	// Step 2: Poll for token with custom polling logic to show progress
	fmt.Println("Step 2: Waiting for authorization...")
	token, err := pollForTokenWithProgress(ctx, config, deviceAuth)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Authorization successful!\n")
	fmt.Printf("Access Token: %s...\n", token.AccessToken[:min(50, len(token.AccessToken))])
	fmt.Printf("Token Type: %s\n", token.Type())
	fmt.Printf("Expires In: %s\n", time.Until(token.Expiry).Round(time.Second))
	fmt.Printf("========================================\n")

	// Step 3: Check the account and credit balance
	fmt.Println("\nStep 3: Checking account...")
	if err := showAccount(token.AccessToken); err != nil {
		fmt.Printf("Account lookup failed: %v\n", err)
		os.Exit(1)
	}

	// Step 4: Make a metered chat completion call
	fmt.Println("\nStep 4: Sending a metered chat completion...")
	if err := chatCompletion(token.AccessToken); err != nil {
		fmt.Printf("Chat completion failed: %v\n", err)
		os.Exit(1)
	}
}

// pollForTokenWithProgress polls for token while showing progress dots
func pollForTokenWithProgress(
	ctx context.Context,
	config *oauth2.Config,
	deviceAuth *oauth2.DeviceAuthResponse,
) (*oauth2.Token, error) {
	tokenChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	// Start polling in a goroutine
	go func() {
		token, err := config.DeviceAccessToken(ctx, deviceAuth)
		if err != nil {
			errChan <- err
			return
		}
		tokenChan <- token
	}()

	// Show progress dots while waiting
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case token := <-tokenChan:
			fmt.Println() // New line after dots
			return token, nil
		case err := <-errChan:
			fmt.Println() // New line after dots
			return nil, err
		case <-ticker.C:
			fmt.Print(".")
		}
	}
}

func showAccount(accessToken string) error {
	req, _ := http.NewRequest("GET", serverURL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		json.Unmarshal(body, &errResp)
		return fmt.Errorf("%s: %s", errResp.Error, errResp.ErrorDescription)
	}

	fmt.Printf("Account: %s\n", string(body))
	return nil
}

func chatCompletion(accessToken string) error {
	payload := map[string]any{
		"model": "gpt-4o-mini",
		"messages": []map[string]string{
			{"role": "user", "content": "Say hello in one short sentence."},
		},
	}
	buf, _ := json.Marshal(payload)

	req, _ := http.NewRequest(
		"POST",
		serverURL+"/v1/chat/completions",
		bytes.NewReader(buf),
	)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream call failed (%d): %s", resp.StatusCode, string(body))
	}

	// The gateway annotates buffered responses with the credits spent.
	var annotated struct {
		Credits struct {
			Used      int64 `json:"used"`
			Remaining int64 `json:"remaining"`
		} `json:"_credits"`
	}
	if err := json.Unmarshal(body, &annotated); err == nil {
		fmt.Printf(
			"Credits used: %d, remaining: %d\n",
			annotated.Credits.Used,
			annotated.Credits.Remaining,
		)
	}
	fmt.Printf("Response: %s\n", string(body))
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
