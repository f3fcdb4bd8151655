// Package gmail implements the confirmation message source on top of the
// Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Config locates the OAuth client secret and the cached user token.
type Config struct {
	CredentialsFile string
	TokenFile       string
	MaxResults      int64
}

// Source lists and fetches messages from the authenticated user's mailbox.
type Source struct {
	svc        *gmailapi.Service
	maxResults int64
}

// NewSource builds a Source from on-disk OAuth credentials. The token file
// must already hold a user consent token; the interactive consent flow is
// out of scope here.
func NewSource(ctx context.Context, cfg Config) (*Source, error) {
	secret, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}

	tokenBytes, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenBytes, &token); err != nil {
		return nil, fmt.Errorf("parse gmail token: %w", err)
	}

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("build gmail service: %w", err)
	}
	return NewSourceWithService(svc, cfg.MaxResults), nil
}

// NewSourceWithService wraps an existing Gmail service (primarily for
// testing against a stub transport).
func NewSourceWithService(svc *gmailapi.Service, maxResults int64) *Source {
	if maxResults <= 0 {
		maxResults = 50
	}
	return &Source{svc: svc, maxResults: maxResults}
}

// ListRecentMatching returns the ids of messages matching the Gmail search
// query.
func (s *Source) ListRecentMatching(ctx context.Context, query string) ([]string, error) {
	resp, err := s.svc.Users.Messages.List("me").
		Q(query).
		MaxResults(s.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list gmail messages: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// FetchBody returns the message snippet plus any decodable text/plain part.
// The snippet alone usually carries the confirmation job link.
func (s *Source) FetchBody(ctx context.Context, id string) (string, error) {
	msg, err := s.svc.Users.Messages.Get("me", id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("get gmail message %s: %w", id, err)
	}

	var parts []string
	if msg.Snippet != "" {
		parts = append(parts, msg.Snippet)
	}
	if body := extractPlainText(msg.Payload); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n"), nil
}

func extractPlainText(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}
	if payload.MimeType == "text/plain" && payload.Body != nil && payload.Body.Data != "" {
		decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(payload.Body.Data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, part := range payload.Parts {
		if text := extractPlainText(part); text != "" {
			return text
		}
	}
	return ""
}
