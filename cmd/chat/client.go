package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/recorder"
	"github.com/Rrens/kaif-chat/internal/service"
	"github.com/google/uuid"
)

const helpText = `Commands:
  <text>         send a message
  /rec           start recording a voice message
  /stop          stop recording
  /send          send the finished recording
  /discard       drop the recording
  /status        show the recorder state
  /new           start a new chat
  /list          list conversations
  /open N        open conversation N
  /delete N      delete conversation N
  /delete-all    delete every conversation
  /copy N        copy message N of the open thread
  /logout        sign out and quit
  /quit          quit`

const permissionHelp = `Microphone access was denied.
  - Check that your user can read the capture device (e.g. add yourself to the "audio" group).
  - Make sure no other program holds the device exclusively.
  - Then run /rec again.`

type client struct {
	store     *service.ChatStore
	session   *service.UserSession
	recorder  *recorder.Recorder
	clipboard service.ClipboardWriter
	out       io.Writer
}

func parseCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	name, arg, _ := strings.Cut(line, " ")
	return name, strings.TrimSpace(arg)
}

// handle runs one input line and reports whether the client should quit
func (c *client) handle(ctx context.Context, line string) bool {
	name, arg := parseCommand(line)

	switch name {
	case "":
		if arg == "" {
			return false
		}
		if err := c.store.SendTextMessage(ctx, arg); err != nil {
			c.printf("Message not sent: %v\n", err)
			return false
		}
		c.printThread()
	case "/help":
		c.printf("%s\n", helpText)
	case "/rec":
		c.startRecording(ctx)
	case "/stop":
		art, err := c.recorder.Stop()
		if err != nil {
			c.printf("Recording failed: %v\n", err)
			return false
		}
		if art == nil {
			c.printf("Not recording.\n")
			return false
		}
		c.printf("Recorded %ds. /send to send it or /discard to drop it.\n", art.Duration)
	case "/send":
		art := c.recorder.Pending()
		if art == nil {
			c.printf("Nothing to send. Use /rec first.\n")
			return false
		}
		if err := c.store.SendAudioMessage(ctx, art.Data, art.Duration); err != nil {
			c.printf("Voice message not sent: %v\n", err)
			return false
		}
		c.recorder.Discard()
		c.printThread()
	case "/discard":
		c.recorder.Discard()
		c.printf("Recording discarded.\n")
	case "/status":
		snap := c.recorder.Snapshot()
		c.printf("permission=%s status=%s elapsed=%ds pending=%t\n", snap.Permission, snap.Status, snap.Elapsed, snap.HasPending)
	case "/new":
		c.store.NewChat()
		c.printf("New chat. Your first message starts a conversation.\n")
	case "/list":
		c.store.ListConversations(ctx)
		c.printConversations()
	case "/open":
		conv, ok := c.conversationAt(arg)
		if !ok {
			return false
		}
		if err := c.store.SelectConversation(ctx, conv.ID); err != nil {
			c.printf("Cannot open conversation: %v\n", err)
			return false
		}
		c.printThread()
	case "/delete":
		conv, ok := c.conversationAt(arg)
		if !ok {
			return false
		}
		if err := c.store.DeleteConversation(ctx, conv.ID); err != nil {
			c.printf("Delete failed: %v\n", err)
			return false
		}
		c.printConversations()
	case "/delete-all":
		if err := c.store.DeleteAllChats(ctx); err != nil {
			c.printf("Delete failed: %v\n", err)
			return false
		}
		c.printf("All conversations deleted.\n")
	case "/copy":
		c.copyMessage(ctx, arg)
	case "/logout":
		c.session.Set(nil)
		return true
	case "/quit", "/exit":
		return true
	default:
		c.printf("Unknown command %s. Type /help.\n", name)
	}
	return false
}

func (c *client) startRecording(ctx context.Context) {
	if c.recorder.QueryPermission(ctx) == recorder.PermissionDenied {
		c.printf("%s\n", permissionHelp)
		return
	}

	err := c.recorder.RequestAndStart(ctx)
	switch {
	case err == nil:
		c.printf("Recording... /stop when done.\n")
	case errors.Is(err, domain.ErrPermissionDenied):
		c.printf("%s\n", permissionHelp)
	case errors.Is(err, domain.ErrRecorderBusy):
		c.printf("A recording is already in progress or waiting to be sent.\n")
	default:
		c.printf("Cannot start recording: %v\n", err)
	}
}

func (c *client) copyMessage(ctx context.Context, arg string) {
	messages := c.store.Messages()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(messages) {
		c.printf("Usage: /copy N (1-%d)\n", len(messages))
		return
	}

	msg := messages[n-1]
	id := msg.LocalID
	if msg.ID != uuid.Nil {
		id = msg.ID.String()
	}
	if _, err := c.store.CopyMessage(ctx, id, c.clipboard); err != nil {
		c.printf("Copy failed: %v\n", err)
	}
}

func (c *client) conversationAt(arg string) (domain.Conversation, bool) {
	convs := c.store.Conversations()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(convs) {
		c.printf("Pick a conversation number from /list.\n")
		return domain.Conversation{}, false
	}
	return convs[n-1], true
}

func (c *client) printConversations() {
	convs := c.store.Conversations()
	if len(convs) == 0 {
		c.printf("No conversations yet.\n")
		return
	}
	selected := c.store.Selected()
	for i, conv := range convs {
		marker := " "
		if conv.ID == selected {
			marker = "*"
		}
		c.printf("%s %2d. %s (%s)\n", marker, i+1, conv.Title, conv.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func (c *client) printThread() {
	for i, msg := range c.store.Messages() {
		who := "kaif"
		if msg.IsUser {
			who = "you"
		}
		text := msg.Content
		if msg.Kind == domain.KindAudio {
			text = fmt.Sprintf("[voice %ds] %s", msg.AudioDuration, msg.AudioURL)
		}
		suffix := ""
		if msg.Pending {
			suffix = " (not saved)"
		}
		c.printf("%3d %-4s %s%s\n", i+1, who, text, suffix)
	}
}

func (c *client) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// fileClipboard writes copied text to a file, or prints it when no path is set
type fileClipboard struct {
	path string
	out  io.Writer
}

func newClipboard(path string, out io.Writer) *fileClipboard {
	return &fileClipboard{path: path, out: out}
}

func (c *fileClipboard) WriteText(_ context.Context, text string) error {
	if c.path == "" {
		_, err := fmt.Fprintf(c.out, "Copied: %s\n", text)
		return err
	}
	if err := os.WriteFile(c.path, []byte(text), 0o600); err != nil {
		return fmt.Errorf("failed to write clipboard file: %w", err)
	}
	_, err := fmt.Fprintf(c.out, "Copied to %s\n", c.path)
	return err
}
