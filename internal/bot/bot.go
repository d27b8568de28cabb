// Package bot is a Telegram front-end for the task API. Each chat gets its
// own in-memory session and task view.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"task-manager/internal/client"
	"task-manager/internal/logger"
	"task-manager/internal/models"
	"task-manager/internal/view"
)

// Sender delivers a reply to a chat.
type Sender interface {
	Send(chatID int64, text string) error
}

type chat struct {
	mu     sync.Mutex
	client *client.Client
	view   *view.Controller
}

type Bot struct {
	apiURL  string
	timeout time.Duration
	send    Sender

	mu    sync.Mutex
	chats map[int64]*chat
}

func New(apiURL string, timeout time.Duration, send Sender) *Bot {
	return &Bot{
		apiURL:  apiURL,
		timeout: timeout,
		send:    send,
		chats:   make(map[int64]*chat),
	}
}

func (b *Bot) chat(id int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[id]
	if !ok {
		api := client.New(b.apiURL, client.NewMemorySession(), b.timeout)
		c = &chat{client: api, view: view.New(api)}
		b.chats[id] = c
	}
	return c
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.send.Send(chatID, text); err != nil {
		logger.Error(ctx, err, "send reply failed", "chatID", chatID)
	}
}

// parseCommand splits "/cmd@botname args" into its parts. Plain text has
// an empty command.
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// parseTask pulls #tags out of free text; the remainder is the title.
func parseTask(text string) (title string, tags []string) {
	var words []string
	for _, w := range strings.Fields(text) {
		if strings.HasPrefix(w, "#") && len(w) > 1 {
			tags = append(tags, strings.TrimPrefix(w, "#"))
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " "), tags
}

// HandleText processes one incoming message and sends the reply.
func (b *Bot) HandleText(ctx context.Context, chatID int64, text string) {
	c := b.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := b.dispatch(ctx, c, text)
	if err != nil {
		reply = describe(err)
		logger.Debug(ctx, "command failed", "chatID", chatID, "error", err.Error())
	}
	if reply != "" {
		b.reply(ctx, chatID, reply)
	}
}

func (b *Bot) dispatch(ctx context.Context, c *chat, text string) (string, error) {
	cmd, args := parseCommand(text)
	switch cmd {
	case "start", "help":
		return helpText, nil
	case "signup":
		return signup(ctx, c, args)
	case "login":
		return login(ctx, c, args)
	case "logout":
		if err := c.client.Logout(); err != nil {
			return "", err
		}
		return "Logged out.", nil
	case "add", "":
		if args == "" {
			return "Send the task text, e.g. /add Buy milk #home", nil
		}
		return addTask(ctx, c, args)
	case "list":
		return listTasks(ctx, c, args)
	case "done":
		return setStatus(ctx, c, args, models.StatusCompleted)
	case "progress":
		return setStatus(ctx, c, args, models.StatusInProgress)
	case "delete":
		return deleteTask(ctx, c, args)
	}
	return "Unknown command. Use /help to see what I can do.", nil
}

func credentials(args string) (models.Credentials, error) {
	f := strings.Fields(args)
	if len(f) != 2 {
		return models.Credentials{}, errUsage
	}
	return models.Credentials{Email: f[0], Password: f[1]}, nil
}

func signup(ctx context.Context, c *chat, args string) (string, error) {
	creds, err := credentials(args)
	if err != nil {
		return "Usage: /signup <email> <password>", nil
	}
	user, err := c.client.Signup(ctx, creds)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Account created for %s. Now /login %s <password>", user.Email, user.Email), nil
}

func login(ctx context.Context, c *chat, args string) (string, error) {
	creds, err := credentials(args)
	if err != nil {
		return "Usage: /login <email> <password>", nil
	}
	user, err := c.client.Login(ctx, creds)
	if err != nil {
		return "", err
	}
	if err := c.view.Refresh(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("Logged in as %s. You have %d tasks.", user.Email, c.view.Counts().Total), nil
}

func addTask(ctx context.Context, c *chat, text string) (string, error) {
	title, tags := parseTask(text)
	c.view.NewDraft()
	c.view.SetTitle(title)
	for _, tag := range tags {
		c.view.AddTag(tag)
	}
	task, err := c.view.Save(ctx)
	if err != nil {
		return "", err
	}
	reply := fmt.Sprintf("Added: %s", task.Title)
	if len(task.Tags) > 0 {
		reply += "\nTags: " + strings.Join(task.Tags, ", ")
	}
	return reply, nil
}

var statusMark = map[models.Status]string{
	models.StatusPending:    "[ ]",
	models.StatusInProgress: "[~]",
	models.StatusCompleted:  "[x]",
}

func listTasks(ctx context.Context, c *chat, args string) (string, error) {
	if err := c.view.Refresh(ctx); err != nil {
		return "", err
	}
	filter, err := view.ParseFilter(args)
	if err != nil {
		return "Filter must be one of: all, pending, in-progress, completed", nil
	}
	_ = c.view.SetFilter(filter)

	visible := c.view.Visible()
	n := c.view.Counts()
	if len(visible) == 0 {
		return fmt.Sprintf("No tasks here. (%d total)", n.Total), nil
	}

	var sb strings.Builder
	for i, t := range visible {
		fmt.Fprintf(&sb, "%d. %s %s", i+1, statusMark[t.Status], t.Title)
		if len(t.Tags) > 0 {
			sb.WriteString("  #" + strings.Join(t.Tags, " #"))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\n%d total: %d pending, %d in progress, %d completed",
		n.Total, n.Pending, n.InProgress, n.Completed)
	return sb.String(), nil
}

func resolve(ctx context.Context, c *chat, ref string) (models.Task, error) {
	if ref == "" {
		return models.Task{}, errUsage
	}
	if err := c.view.Refresh(ctx); err != nil {
		return models.Task{}, err
	}
	return c.view.Find(ref)
}

func setStatus(ctx context.Context, c *chat, ref string, s models.Status) (string, error) {
	task, err := resolve(ctx, c, ref)
	if err != nil {
		return "", err
	}
	saved, err := c.view.SetTaskStatus(ctx, task.ID, s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", statusMark[saved.Status], saved.Title), nil
}

func deleteTask(ctx context.Context, c *chat, ref string) (string, error) {
	task, err := resolve(ctx, c, ref)
	if err != nil {
		return "", err
	}
	if err := c.view.Delete(ctx, task.ID); err != nil {
		return "", err
	}
	return "Deleted: " + task.Title, nil
}

var errUsage = errors.New("usage")

func describe(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, view.ErrLoginRequired):
		return "Please /login first."
	case errors.Is(err, errUsage):
		return "Tell me which task: use its number from /list."
	case errors.Is(err, view.ErrNoMatch):
		return "No such task. Use /list to see the numbers."
	case errors.Is(err, view.ErrAmbiguous):
		return "That matches several tasks. Use its number from /list."
	case errors.Is(err, view.ErrTitleRequired):
		return "A task needs a title."
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return "Error: " + apiErr.Message
	}
	return "Something went wrong, try again later."
}

const helpText = `Task bot commands:
/signup <email> <password> - create an account
/login <email> <password> - sign in
/logout - sign out
/add <task> #tag - add a task (plain text works too)
/list [all|pending|in-progress|completed] - show tasks
/done <n> - mark task n completed
/progress <n> - mark task n in progress
/delete <n> - delete task n
/help - this message`

// TelegramSender sends plain-text replies through the Bot API.
type TelegramSender struct {
	API *tgbotapi.BotAPI
}

func (s TelegramSender) Send(chatID int64, text string) error {
	_, err := s.API.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Updates is the long-poll side of *tgbotapi.BotAPI.
type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) (tgbotapi.UpdatesChannel, error)
	StopReceivingUpdates()
}

// Run long-polls Telegram until ctx is cancelled, then stops the poller.
// Each message is handled on its own goroutine; messages within a chat
// are serialized.
func (b *Bot) Run(ctx context.Context, src Updates) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := src.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("get updates: %w", err)
	}
	defer src.StopReceivingUpdates()
	logger.Info(ctx, "bot is listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			msg := update.Message
			go b.HandleText(ctx, msg.Chat.ID, msg.Text)
		}
	}
}
