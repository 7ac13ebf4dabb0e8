package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantMsg  string
	}{
		{
			name: "Nil error",
			err:  nil,
		},
		{
			name:     "Message not found",
			err:      domain.ErrMessageNotFound,
			wantCode: CodeNotFound,
			wantMsg:  "message not found",
		},
		{
			name:     "Not sender",
			err:      domain.ErrNotSender,
			wantCode: CodeForbidden,
		},
		{
			name:     "Empty payload",
			err:      domain.ErrEmptyPayload,
			wantCode: CodeInvalidArgument,
			wantMsg:  domain.ErrEmptyPayload.Error(),
		},
		{
			name:     "Wrapped schedule in past",
			err:      fmt.Errorf("failed to schedule message: %w", domain.ErrScheduleInPast),
			wantCode: CodeInvalidArgument,
			wantMsg:  domain.ErrScheduleInPast.Error(),
		},
		{
			name:     "Too large",
			err:      domain.ErrMessageTooLarge,
			wantCode: CodeInvalidArgument,
		},
		{
			name:     "Already wire error",
			err:      fmt.Errorf("decode: %w", &Error{Code: CodeInvalidArgument, Message: "unknown command"}),
			wantCode: CodeInvalidArgument,
			wantMsg:  "unknown command",
		},
		{
			name:     "Unknown error",
			err:      errors.New("pq: connection refused"),
			wantCode: CodeInternal,
			wantMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Errorf("MapError() = %v, want nil", got)
				}
				return
			}

			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %v, want %v", got.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && got.Message != tt.wantMsg {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMsg)
			}
		})
	}
}
