// Package registry is the entity catalog: each sendable entity type is
// declared once at startup and resolved into a flat Config through a settings
// cascade (project configuration > entity defaults > library defaults).
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/d60-Lab/sendables/internal/filter"
	"github.com/d60-Lab/sendables/internal/model"
)

// Action names one HTTP-facing operation of an entity type.
type Action string

const (
	ActionSend        Action = "send"
	ActionMarkRead    Action = "mark_read"
	ActionMarkUnread  Action = "mark_unread"
	ActionDelete      Action = "delete"
	ActionDeleteSent  Action = "delete_sent"
	ActionList        Action = "list"
	ActionListRead    Action = "list_read"
	ActionListUnread  Action = "list_unread"
	ActionListSent    Action = "list_sent"
	ActionDetail      Action = "detail"
	ActionDetailSent  Action = "detail_sent"
	ActionUnreadCount Action = "unread_count"
)

// Actions lists every per-entity operation, for permission resolution.
var Actions = []Action{
	ActionSend, ActionMarkRead, ActionMarkUnread, ActionDelete,
	ActionDeleteSent, ActionList, ActionListRead, ActionListUnread,
	ActionListSent, ActionDetail, ActionDetailSent, ActionUnreadCount,
}

// Requirement is the permission level an action demands.
type Requirement int

const (
	Authenticated Requirement = iota
	Admin
)

// Mode selects how requested identifiers are validated.
type Mode int

const (
	// Lenient drops invalid identifiers silently.
	Lenient Mode = iota
	// Strict fails when any requested identifier is invalid.
	Strict
)

// AfterSendFunc runs after a successful delivery, outside its transaction.
type AfterSendFunc func(ctx context.Context, requesterID uint, fields map[string]any, recipients []model.User) error

// Config is the fully resolved configuration of one entity type.
type Config struct {
	Name  string
	Table string

	NewSendable func() model.Sendable
	HasSender   bool

	KeyName     string
	SentFields  []string
	ApplyFields func(s model.Sendable, fields map[string]any) error

	AllowSendToSelf    func(requesterID uint) bool
	RecipientSelection Mode
	ItemSelection      Mode

	SortReceivedLess func(a, b *model.ReceivedItem) bool
	SortSentLess     func(a, b *model.SentItem) bool

	FilterSendables  filter.Fields
	FilterRecipients filter.Fields

	AfterSend     []AfterSendFunc
	DeleteHanging bool
	Permissions   map[Action]Requirement
	PageSize      int
}

// ItemsField is the request field carrying selected item keys,
// e.g. "message_ids".
func (c *Config) ItemsField() string {
	return c.Name + "_" + c.KeyName + "s"
}

// RecipientsField is the request field carrying recipient keys.
func (c *Config) RecipientsField() string {
	return "recipient_" + c.KeyName + "s"
}

// Options are the entity defaults supplied at registration. Zero values fall
// through to the library defaults; project configuration overrides both.
type Options struct {
	NewSendable func() model.Sendable
	Table       string
	HasSender   bool

	KeyName     string
	SentFields  []string
	ApplyFields func(s model.Sendable, fields map[string]any) error

	AllowSendToSelf     *bool
	AllowSendToSelfFunc func(requesterID uint) bool
	RecipientSelection  *Mode
	ItemSelection       *Mode

	SortReceivedLess func(a, b *model.ReceivedItem) bool
	SortSentLess     func(a, b *model.SentItem) bool

	FilterSendables  filter.Fields
	FilterRecipients filter.Fields

	AfterSend     []AfterSendFunc
	DeleteHanging *bool
	Permissions   map[Action]Requirement
	PageSize      *int
}

// Registry holds the resolved configuration of every registered entity type.
type Registry struct {
	mu       sync.RWMutex
	v        *viper.Viper
	entities map[string]*Config
}

func New(v *viper.Viper) *Registry {
	return &Registry{v: v, entities: make(map[string]*Config)}
}

// Register resolves the settings cascade for the named entity type and stores
// the result. Resolution happens exactly once, here.
func (r *Registry) Register(name string, opts Options) (*Config, error) {
	if name == "" {
		return nil, fmt.Errorf("registry: entity name is required")
	}
	if opts.NewSendable == nil {
		return nil, fmt.Errorf("registry: entity %q has no sendable factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[name]; exists {
		return nil, fmt.Errorf("registry: entity %q already registered", name)
	}

	cfg := r.resolve(name, opts)
	r.entities[name] = cfg
	return cfg, nil
}

// Lookup returns the configuration of a registered entity type.
func (r *Registry) Lookup(name string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.entities[name]
	return cfg, ok
}

// Names returns the registered entity type names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	return names
}

func (r *Registry) resolve(name string, opts Options) *Config {
	cfg := &Config{
		Name:             name,
		Table:            opts.Table,
		NewSendable:      opts.NewSendable,
		HasSender:        opts.HasSender,
		KeyName:          r.stringSetting(name, "key_name", opts.KeyName, "id"),
		SentFields:       r.sliceSetting(name, "sent_fields", opts.SentFields, []string{"content"}),
		ApplyFields:      opts.ApplyFields,
		SortReceivedLess: opts.SortReceivedLess,
		SortSentLess:     opts.SortSentLess,
		FilterSendables:  opts.FilterSendables,
		FilterRecipients: opts.FilterRecipients,
		AfterSend:        opts.AfterSend,
		DeleteHanging:    r.boolSetting(name, "delete_hanging", opts.DeleteHanging, true),
		PageSize:         r.intSetting(name, "page_size", opts.PageSize, 0),
	}

	if cfg.Table == "" {
		cfg.Table = name + "s"
	}
	if cfg.ApplyFields == nil {
		cfg.ApplyFields = defaultApplyFields(cfg.SentFields)
	}
	if cfg.SortReceivedLess == nil {
		cfg.SortReceivedLess = DefaultReceivedLess
	}
	if cfg.SortSentLess == nil {
		cfg.SortSentLess = DefaultSentLess
	}

	// Self-send rule: a per-request strategy wins over the static flag.
	if opts.AllowSendToSelfFunc != nil && !r.has(name, "allow_send_to_self") {
		cfg.AllowSendToSelf = opts.AllowSendToSelfFunc
	} else {
		allow := r.boolSetting(name, "allow_send_to_self", opts.AllowSendToSelf, false)
		cfg.AllowSendToSelf = func(uint) bool { return allow }
	}

	cfg.RecipientSelection = r.modeSetting(name, "recipient_selection", opts.RecipientSelection)
	cfg.ItemSelection = r.modeSetting(name, "item_selection", opts.ItemSelection)

	cfg.Permissions = make(map[Action]Requirement, len(Actions))
	for _, action := range Actions {
		req := Authenticated
		if opts.Permissions != nil {
			if v, ok := opts.Permissions[action]; ok {
				req = v
			}
		}
		if s := r.rawString(name, "permissions."+string(action)); s != "" {
			if s == "admin" {
				req = Admin
			} else {
				req = Authenticated
			}
		}
		cfg.Permissions[action] = req
	}

	return cfg
}

// FieldError is a field-scoped failure raised while applying sent fields to
// a new content record.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

func defaultApplyFields(sentFields []string) func(model.Sendable, map[string]any) error {
	return func(s model.Sendable, fields map[string]any) error {
		for _, name := range sentFields {
			value, ok := fields[name]
			if !ok {
				return &FieldError{Field: name, Message: "This field is required."}
			}
			if name == "content" {
				text, ok := value.(string)
				if !ok || strings.TrimSpace(text) == "" {
					return &FieldError{Field: name, Message: "This field is required."}
				}
				s.Core().Content = text
			}
		}
		return nil
	}
}

func (r *Registry) key(name, setting string) string {
	return "sendables." + name + "." + setting
}

func (r *Registry) has(name, setting string) bool {
	return r.v != nil && r.v.IsSet(r.key(name, setting))
}

func (r *Registry) rawString(name, setting string) string {
	if !r.has(name, setting) {
		return ""
	}
	return r.v.GetString(r.key(name, setting))
}

func (r *Registry) boolSetting(name, setting string, entity *bool, fallback bool) bool {
	if r.has(name, setting) {
		return r.v.GetBool(r.key(name, setting))
	}
	if entity != nil {
		return *entity
	}
	return fallback
}

func (r *Registry) intSetting(name, setting string, entity *int, fallback int) int {
	if r.has(name, setting) {
		return r.v.GetInt(r.key(name, setting))
	}
	if entity != nil {
		return *entity
	}
	return fallback
}

func (r *Registry) stringSetting(name, setting, entity, fallback string) string {
	if r.has(name, setting) {
		return r.v.GetString(r.key(name, setting))
	}
	if entity != "" {
		return entity
	}
	return fallback
}

func (r *Registry) sliceSetting(name, setting string, entity, fallback []string) []string {
	if r.has(name, setting) {
		return r.v.GetStringSlice(r.key(name, setting))
	}
	if len(entity) > 0 {
		return entity
	}
	return fallback
}

func (r *Registry) modeSetting(name, setting string, entity *Mode) Mode {
	if r.has(name, setting) {
		if r.v.GetString(r.key(name, setting)) == "strict" {
			return Strict
		}
		return Lenient
	}
	if entity != nil {
		return *entity
	}
	return Lenient
}
