package collab

import (
	"fmt"
	"unicode/utf8"

	"github.com/sitewire/collab-app/internal/protocol"
)

const (
	MaxContentChars = 2000 // max character count for message/post/comment text
	MaxAttachments  = 10   // max attachments on a single message or post
)

// validateContent checks a submitted body. Text and attachments are each
// optional but at least one must be present.
func validateContent(content string, attachments []protocol.Attachment) error {
	if content == "" && len(attachments) == 0 {
		return fmt.Errorf("content or attachments required")
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("content contains invalid UTF-8")
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return fmt.Errorf("content exceeds %d character limit", MaxContentChars)
	}
	if len(attachments) > MaxAttachments {
		return fmt.Errorf("too many attachments (max %d)", MaxAttachments)
	}
	for i, a := range attachments {
		if a.URL == "" {
			return fmt.Errorf("attachment %d has no url", i)
		}
		if a.FileName == "" {
			return fmt.Errorf("attachment %d has no fileName", i)
		}
	}
	return nil
}
