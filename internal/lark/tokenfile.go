package lark

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadUserToken reads the short-lived OAuth user access token from the
// token file produced by the interactive authorization flow. The flow
// itself is outside this program; only its output file is consumed.
func LoadUserToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	var doc struct {
		OAuth struct {
			Token struct {
				AccessToken string `json:"access_token"`
			} `json:"token"`
		} `json:"oauth"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse token file: %w", err)
	}

	if doc.OAuth.Token.AccessToken == "" {
		return "", fmt.Errorf("token file contains no access token")
	}

	return doc.OAuth.Token.AccessToken, nil
}
