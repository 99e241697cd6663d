package session

import (
	"context"
	"time"

	apperrors "second-brain/internal/errors"
)

// Message types posted by the OAuth popup.
const (
	MessageOAuthSuccess = "OAUTH_SUCCESS"
	MessageOAuthError   = "OAUTH_ERROR"
)

// Message is one message posted from the popup to its opener.
type Message struct {
	Origin       string
	Type         string `json:"type"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Popup is a window opened for the OAuth consent page.
type Popup interface {
	Messages() <-chan Message
	// Closed reports whether the user closed the window. An error means
	// the state cannot be read and the window is treated as open.
	Closed() (bool, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, url string) (Popup, error)
}

var (
	ErrPopupClosed  = apperrors.Unauthorized("Sign-in window was closed", nil)
	ErrPopupTimeout = apperrors.Unauthorized("Sign-in timed out", nil)
)

// AwaitPopup waits for the first OAuth message from origin. It fails when
// the user closes the popup, when timeout elapses or when ctx is done.
// Messages from other origins or of other types are ignored. The popup is
// closed on return.
func AwaitPopup(ctx context.Context, p Popup, origin string, timeout, poll time.Duration) (Message, error) {
	defer p.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	msgs := p.Messages()
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			if m.Origin != origin {
				continue
			}
			switch m.Type {
			case MessageOAuthSuccess:
				if m.AccessToken == "" {
					return m, apperrors.Unauthorized("Sign-in response carried no token", nil)
				}
				return m, nil
			case MessageOAuthError:
				msg := m.Error
				if msg == "" {
					msg = "Google sign-in failed"
				}
				return m, apperrors.Unauthorized(msg, nil)
			}
		case <-ticker.C:
			closed, err := p.Closed()
			if err == nil && closed {
				return Message{}, ErrPopupClosed
			}
		case <-timer.C:
			return Message{}, ErrPopupTimeout
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}
