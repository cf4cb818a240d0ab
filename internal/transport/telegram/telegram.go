// Package telegram delivers rendered HTML payloads to a Telegram chat through
// the Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"dolphinbot/internal/transport"
)

type Config struct {
	Token  string
	Target transport.ChatTarget
	// APIURL overrides the Bot API endpoint (tests, self-hosted servers).
	APIURL  string
	Timeout time.Duration
}

type Sender struct {
	bot    *tele.Bot
	target transport.ChatTarget

	// partial remembers how many chunks of a multi-chunk body went out before
	// a failure, so the notifier's retry of the same body resumes there
	// instead of reposting the chunks the chat already has.
	mu      sync.Mutex
	partial struct {
		body string
		sent int
	}
}

var _ transport.Sender = (*Sender)(nil)

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Target.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Offline skips the getMe handshake; the bot never polls for updates.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, target: cfg.Target}, nil
}

func (s *Sender) Name() string { return "telegram" }

// Send posts the payload body as HTML, split into chunks under the message
// size limit. A retry of a body that failed part-way skips the chunks that
// were already delivered.
func (s *Sender) Send(ctx context.Context, p transport.Payload) error {
	body := string(p.Body)
	chunks := splitText(body, textLimit)
	chat := &tele.Chat{ID: s.target.ChatID}
	for i := s.resumeAt(body); i < len(chunks); i++ {
		if err := ctx.Err(); err != nil {
			s.markPartial(body, i)
			return err
		}
		_, err := s.bot.Send(chat, chunks[i], &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
			ThreadID:              s.target.ThreadID,
		})
		if err != nil {
			s.markPartial(body, i)
			return err
		}
	}
	s.markDone(body)
	return nil
}

func (s *Sender) resumeAt(body string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partial.body == body {
		return s.partial.sent
	}
	return 0
}

// markPartial records progress only once a chunk has gone out; a body that
// failed on its first chunk is simply resent.
func (s *Sender) markPartial(body string, sent int) {
	if sent == 0 {
		return
	}
	s.mu.Lock()
	s.partial.body, s.partial.sent = body, sent
	s.mu.Unlock()
}

func (s *Sender) markDone(body string) {
	s.mu.Lock()
	if s.partial.body == body {
		s.partial.body, s.partial.sent = "", 0
	}
	s.mu.Unlock()
}

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries and never cutting inside an HTML tag.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
