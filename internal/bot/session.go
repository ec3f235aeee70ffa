package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/metrics"
)

// Flow names, also the first segment of every custom id.
const (
	flowConfig        = "config"
	flowCard          = "card"
	flowSearch        = "search"
	flowManage        = "manage"
	flowNotifications = "notif"
)

// Session outcomes as recorded in metrics.
const (
	outcomeCompleted = "completed"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"
	outcomeExpired   = "expired"
)

// input is what the user sent with a component or modal interaction.
type input struct {
	Values []string
	Text   string
	Modal  bool
	Arg    string
}

// Value returns the first selected value.
func (in input) Value() string {
	if len(in.Values) == 0 {
		return ""
	}
	return in.Values[0]
}

type flowHandler func(ctx context.Context, i *discordgo.Interaction, s *Session, action string, in input) error

// Session is one user's in-progress flow. State is owned by the flow and
// only touched with mu held.
type Session struct {
	ID        string
	Flow      string
	UserID    string
	GuildID   string
	ChannelID string
	State     any

	mu     sync.Mutex
	timer  *time.Timer
	last   *discordgo.Interaction
	closed bool
}

// Registry tracks open sessions and expires idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	onExpire func(s *Session, last *discordgo.Interaction)
	logger   *zap.Logger
	newID    func() string
}

func NewRegistry(timeout time.Duration, onExpire func(s *Session, last *discordgo.Interaction), logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		onExpire: onExpire,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Start opens a session for the user who sent i.
func (r *Registry) Start(flow string, i *discordgo.Interaction, channelID string, state any) *Session {
	s := &Session{
		ID:        r.newID(),
		Flow:      flow,
		UserID:    userID(i),
		GuildID:   i.GuildID,
		ChannelID: channelID,
		State:     state,
		last:      i,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	s.mu.Lock()
	s.timer = time.AfterFunc(r.timeout, func() { r.expire(s) })
	s.mu.Unlock()

	r.logger.Debug("session started",
		zap.String("session_id", s.ID),
		zap.String("flow", flow),
		zap.String("user_id", s.UserID),
	)
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Touch restarts the idle timer and remembers i as the interaction whose
// message shows the session. Call with s.mu held.
func (r *Registry) Touch(s *Session, i *discordgo.Interaction) {
	s.last = i
	s.timer.Reset(r.timeout)
}

// Finish closes s and records outcome. Call with s.mu held.
func (r *Registry) Finish(s *Session, outcome string) {
	if s.closed {
		return
	}
	s.closed = true
	s.timer.Stop()

	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()

	metrics.RecordWizardSession(s.Flow, outcome)
}

func (r *Registry) expire(s *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	last := s.last
	r.Finish(s, outcomeExpired)
	s.mu.Unlock()

	r.logger.Debug("session expired", zap.String("session_id", s.ID), zap.String("flow", s.Flow))
	if r.onExpire != nil {
		r.onExpire(s, last)
	}
}

// Len is the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every timer without calling onExpire.
func (r *Registry) Close() {
	r.mu.Lock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	for _, s := range open {
		s.mu.Lock()
		r.Finish(s, outcomeCancelled)
		s.mu.Unlock()
	}
}

var errBadCustomID = errors.New("malformed custom id")

// CustomID addresses a control: flow:session:action[:arg].
type CustomID struct {
	Flow    string
	Session string
	Action  string
	Arg     string
}

func (c CustomID) String() string {
	s := c.Flow + ":" + c.Session + ":" + c.Action
	if c.Arg != "" {
		s += ":" + c.Arg
	}
	return s
}

func ParseCustomID(raw string) (CustomID, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return CustomID{}, errBadCustomID
	}
	id := CustomID{Flow: parts[0], Session: parts[1], Action: parts[2]}
	if len(parts) == 4 {
		id.Arg = parts[3]
	}
	return id, nil
}

// control builds the custom id for an action of s.
func (s *Session) control(action string) string {
	return CustomID{Flow: s.Flow, Session: s.ID, Action: action}.String()
}

func (s *Session) controlArg(action, arg string) string {
	return CustomID{Flow: s.Flow, Session: s.ID, Action: action, Arg: arg}.String()
}
