// Package messaging is the HTTP client for the external chat collaborator.
// The collaborator owns conversations and messages; the core only holds
// the conversation id it returns.  Membership maintenance calls are
// idempotent: "already a participant" and "not a participant" responses
// are treated as success.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to the messaging service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL, e.g.
// "http://messaging:8081".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateGroupConversation creates a group conversation seeded with the
// given participants and returns its id.  An idempotency key guards
// against duplicate conversations if the call is retried.
func (c *Client) CreateGroupConversation(ctx context.Context, participantIDs []uint64, name string) (string, error) {
	body := map[string]interface{}{
		"participant_ids": participantIDs,
		"name":            name,
		"idempotency_key": uuid.NewString(),
	}
	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.post(ctx, "/v1/conversations", body, &out); err != nil {
		return "", err
	}
	if out.ConversationID == "" {
		return "", fmt.Errorf("messaging: empty conversation id")
	}
	return out.ConversationID, nil
}

// PostSystemMessage posts an automated message into a conversation.
func (c *Client) PostSystemMessage(ctx context.Context, conversationID, text string) error {
	path := fmt.Sprintf("/v1/conversations/%s/system-messages", conversationID)
	return c.post(ctx, path, map[string]interface{}{"text": text}, nil)
}

// AddParticipant adds a user to a conversation.  A conflict response
// means the user is already in, which is success for our purposes.
func (c *Client) AddParticipant(ctx context.Context, conversationID string, userID uint64) error {
	path := fmt.Sprintf("/v1/conversations/%s/participants", conversationID)
	return c.post(ctx, path, map[string]interface{}{"user_id": userID}, nil)
}

// RemoveParticipant removes a user from a conversation.  A not-found
// response means the user already left, which is success.
func (c *Client) RemoveParticipant(ctx context.Context, conversationID string, userID uint64) error {
	path := fmt.Sprintf("/v1/conversations/%s/participants/%d", conversationID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		// Idempotent re-entry: the collaborator already holds this state.
		return nil
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Error != "" {
		return fmt.Errorf("messaging: %s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("messaging: unexpected status %d", resp.StatusCode)
}
