package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	gmailapi "google.golang.org/api/gmail/v1"
)

func encode(s string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload *gmailapi.MessagePart
		want    string
	}{
		{name: "nil payload", payload: nil, want: ""},
		{
			name: "top-level plain text",
			payload: &gmailapi.MessagePart{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: encode("see https://www.linkedin.com/jobs/view/222")},
			},
			want: "see https://www.linkedin.com/jobs/view/222",
		},
		{
			name: "nested multipart",
			payload: &gmailapi.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encode("<p>hi</p>")}},
					{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: encode("plain body")}},
				},
			},
			want: "plain body",
		},
		{
			name: "undecodable data ignored",
			payload: &gmailapi.MessagePart{
				MimeType: "text/plain",
				Body:     &gmailapi.MessagePartBody{Data: "!!not-base64!!"},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPlainText(tt.payload))
		})
	}
}
