package intercom

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Attachment is a file attached to a transcript turn.
type Attachment struct {
	Type        string `json:"type"`
	ContentType string `json:"content_type"`
	Name        string `json:"name"`
	URL         string `json:"url"`
}

// IsImage reports whether the attachment is an image upload.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// Message is one transcript turn as derived from the platform payload.
type Message struct {
	Role        string
	Body        string
	Timestamp   time.Time
	AuthorID    string
	AuthorEmail string
	Attachments []Attachment
}

// Conversation is the fetched state of one support thread.
type Conversation struct {
	ID        string
	UpdatedAt time.Time
	Messages  []Message
}

// History returns up to limit of the most recent transcript turns,
// oldest first. limit <= 0 returns everything.
func (c *Conversation) History(limit int) []Message {
	if c == nil {
		return nil
	}
	msgs := c.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// wireConversation mirrors the subset of Intercom's conversation payload
// the bot consumes.
type wireConversation struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
	Source    struct {
		Body        string       `json:"body"`
		CreatedAt   int64        `json:"created_at"`
		Author      wireAuthor   `json:"author"`
		Attachments []Attachment `json:"attachments"`
	} `json:"source"`
	ConversationParts struct {
		ConversationParts []wirePart `json:"conversation_parts"`
	} `json:"conversation_parts"`
}

type wireAuthor struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Email string `json:"email"`
}

type wirePart struct {
	PartType    string       `json:"part_type"`
	Body        string       `json:"body"`
	CreatedAt   int64        `json:"created_at"`
	Author      wireAuthor   `json:"author"`
	Attachments []Attachment `json:"attachments"`
}

func (w *wireConversation) toConversation() *Conversation {
	conv := &Conversation{
		ID:        w.ID,
		UpdatedAt: time.Unix(w.UpdatedAt, 0).UTC(),
	}

	// The opening message always exists; parts follow in order. Bodies stay
	// exactly as Intercom sent them: attachment placeholders are rendered by
	// consumers that want them, so an image-only turn keeps an empty body.
	conv.Messages = append(conv.Messages, Message{
		Role:        RoleUser,
		Body:        w.Source.Body,
		Timestamp:   time.Unix(w.Source.CreatedAt, 0).UTC(),
		AuthorID:    w.Source.Author.ID,
		AuthorEmail: w.Source.Author.Email,
		Attachments: w.Source.Attachments,
	})

	for _, part := range w.ConversationParts.ConversationParts {
		if part.PartType != "comment" {
			continue
		}
		role := RoleUser
		if part.Author.Type == "admin" {
			role = RoleAdmin
		}
		conv.Messages = append(conv.Messages, Message{
			Role:        role,
			Body:        part.Body,
			Timestamp:   time.Unix(part.CreatedAt, 0).UTC(),
			AuthorID:    part.Author.ID,
			AuthorEmail: part.Author.Email,
			Attachments: part.Attachments,
		})
	}

	return conv
}

// FormatAttachments renders attachments as readable placeholders, e.g.
// "[Image: receipt.png]" or "[File: logs.txt] (URL: https://...)".
func FormatAttachments(attachments []Attachment) string {
	if len(attachments) == 0 {
		return ""
	}

	descriptions := make([]string, 0, len(attachments))
	for _, att := range attachments {
		label := "Attachment"
		if att.Type == "upload" {
			switch {
			case strings.HasPrefix(att.ContentType, "image/"):
				label = "Image"
			case strings.HasPrefix(att.ContentType, "video/"):
				label = "Video"
			case strings.HasPrefix(att.ContentType, "audio/"):
				label = "Audio"
			default:
				label = "File"
			}
		}
		name := att.Name
		if name == "" {
			name = "unnamed"
		}
		desc := fmt.Sprintf("[%s: %s]", label, name)
		if att.URL != "" {
			url := att.URL
			if len(url) > 100 {
				url = url[:100] + "..."
			}
			desc += fmt.Sprintf(" (URL: %s)", url)
		}
		descriptions = append(descriptions, desc)
	}

	return strings.Join(descriptions, " ")
}

var (
	brTagRe     = regexp.MustCompile(`(?i)<br\s*/?>`)
	imgTagRe    = regexp.MustCompile(`(?i)<img[^>]*>`)
	imgAltRe    = regexp.MustCompile(`(?i)alt=["']([^"']*)["']`)
	imgSrcRe    = regexp.MustCompile(`(?i)src=["']([^"']*)["']`)
	anyTagRe    = regexp.MustCompile(`<[^>]+>`)
	zeroWidthRe = regexp.MustCompile("[\u200b\u200c\u200d\ufeff]")
)

// CleanHTML strips markup from a message body while keeping structure the
// classifier cares about: <br> becomes a newline, <img> becomes an image
// placeholder, entities are unescaped, everything else is dropped.
func CleanHTML(text string) string {
	if text == "" {
		return ""
	}

	text = brTagRe.ReplaceAllString(text, "\n")

	text = imgTagRe.ReplaceAllStringFunc(text, func(tag string) string {
		if m := imgAltRe.FindStringSubmatch(tag); m != nil && m[1] != "" {
			return "[Image: " + m[1] + "]"
		}
		if m := imgSrcRe.FindStringSubmatch(tag); m != nil && m[1] != "" {
			src := m[1]
			if i := strings.LastIndex(src, "/"); i >= 0 {
				src = src[i+1:]
			}
			if i := strings.Index(src, "?"); i >= 0 {
				src = src[:i]
			}
			return "[Image: " + src + "]"
		}
		return "[Image]"
	})

	text = strings.NewReplacer("&gt;", ">", "&lt;", "<", "&amp;", "&", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(text)
	text = zeroWidthRe.ReplaceAllString(text, "")
	text = anyTagRe.ReplaceAllString(text, "")

	// Collapse intra-line whitespace but keep line breaks.
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
