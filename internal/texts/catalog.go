// ABOUTME: Message catalog: scripted texts, button labels and the subscriptions list
// ABOUTME: Loaded from TOML over an embedded default and swappable at runtime for /refresh

package texts

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultTOML string

// Catalog holds every user-facing string.
type Catalog struct {
	MaxMessageSize int      `toml:"max_message_size"`
	Subscriptions  []string `toml:"subscriptions"`
	Defaults       Defaults `toml:"defaults"`
	Roles          Roles    `toml:"roles"`
	Buttons        Buttons  `toml:"buttons"`
	Messages       Messages `toml:"messages"`
	Settings       Settings `toml:"settings"`
}

// Defaults seed a newly authorized client record.
type Defaults struct {
	State         string   `toml:"state"`
	Cities        []string `toml:"cities"`
	Subscriptions []string `toml:"subscriptions"`
}

// Roles name identities in the /start greeting.
type Roles struct {
	Client   string `toml:"client"`
	Operator string `toml:"operator"`
	Admin    string `toml:"admin"`
}

// Buttons are reply keyboard labels. Incoming text equal to a label is
// treated as a button press.
type Buttons struct {
	RequestContact  string `toml:"request_contact"`
	Info            string `toml:"info"`
	OpenChat        string `toml:"open_chat"`
	Settings        string `toml:"settings"`
	CloseChat       string `toml:"close_chat"`
	OperatorOn      string `toml:"operator_on"`
	OperatorOff     string `toml:"operator_off"`
	OperatorHistory string `toml:"operator_history"`
}

// Messages are the scripted replies.
type Messages struct {
	StartKnown                 string `toml:"start_known"`
	StartUnknown               string `toml:"start_unknown"`
	Help                       string `toml:"help"`
	OperatorHelp               string `toml:"operator_help"`
	AdminHelp                  string `toml:"admin_help"`
	AdminOperatorHelp          string `toml:"admin_operator_help"`
	About                      string `toml:"about"`
	Info                       string `toml:"info"`
	ShouldAuth                 string `toml:"should_auth"`
	ContactAccepted            string `toml:"contact_accepted"`
	ContactNotYours            string `toml:"contact_not_yours"`
	NotKnownContact            string `toml:"not_known_contact"`
	DidNotUnderstand           string `toml:"did_not_understand"`
	ClientOpenedChat           string `toml:"client_opened_chat"`
	ClientClosedChat           string `toml:"client_closed_chat"`
	NoFreeOperator             string `toml:"no_free_operator"`
	OperatorNewSession         string `toml:"operator_new_session"`
	OperatorClientClosedChat   string `toml:"operator_client_closed_chat"`
	OperatorReplyWithoutTarget string `toml:"operator_reply_without_target"`
	OperatorReplyToClosedChat  string `toml:"operator_reply_to_closed_chat"`
	OperatorOn                 string `toml:"operator_on"`
	OperatorOff                string `toml:"operator_off"`
	HistoryNoChats             string `toml:"history_no_chats"`
	HistoryEmpty               string `toml:"history_empty"`
	OperatorAdded              string `toml:"operator_added"`
	OperatorDeleted            string `toml:"operator_deleted"`
	OperatorNotFound           string `toml:"operator_not_found"`
	OperatorAddUsage           string `toml:"operator_add_usage"`
	OperatorDelUsage           string `toml:"operator_del_usage"`
	AdminAdded                 string `toml:"admin_added"`
	AdminDeleted               string `toml:"admin_deleted"`
	AdminNotFound              string `toml:"admin_not_found"`
	AdminAddUsage              string `toml:"admin_add_usage"`
	AdminDelUsage              string `toml:"admin_del_usage"`
	AdminCannotDeleteSelf      string `toml:"admin_cannot_delete_self"`
	NoOperators                string `toml:"no_operators"`
	Refreshed                  string `toml:"refreshed"`
	LogsEmpty                  string `toml:"logs_empty"`
	SettingsUnavailable        string `toml:"settings_unavailable"`
	InternalError              string `toml:"internal_error"`
}

// Settings are the settings dialog texts and labels.
type Settings struct {
	RootTitle             string `toml:"root_title"`
	RootCities            string `toml:"root_cities"`
	RootSubscriptions     string `toml:"root_subscriptions"`
	NoCities              string `toml:"no_cities"`
	NoSubscriptions       string `toml:"no_subscriptions"`
	CitiesLabel           string `toml:"cities_label"`
	SubscriptionsLabel    string `toml:"subscriptions_label"`
	AddLabel              string `toml:"add_label"`
	DeleteLabel           string `toml:"delete_label"`
	DeleteAllLabel        string `toml:"delete_all_label"`
	BackLabel             string `toml:"back_label"`
	Cities                string `toml:"cities"`
	CitiesSelected        string `toml:"cities_selected"`
	CityAddWhich          string `toml:"city_add_which"`
	CityAddApprove        string `toml:"city_add_approve"`
	CityDelWhich          string `toml:"city_del_which"`
	CityDelSuccess        string `toml:"city_del_success"`
	CityDelAllSuccess     string `toml:"city_del_all_success"`
	Subscriptions         string `toml:"subscriptions"`
	SubscriptionsSelected string `toml:"subscriptions_selected"`
	SubAddWhich           string `toml:"sub_add_which"`
	SubAddAlreadyAll      string `toml:"sub_add_already_all"`
	SubAddSuccess         string `toml:"sub_add_success"`
	SubDelWhich           string `toml:"sub_del_which"`
	SubDelSuccess         string `toml:"sub_del_success"`
	SubDelAllSuccess      string `toml:"sub_del_all_success"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	var c Catalog
	if _, err := toml.Decode(defaultTOML, &c); err != nil {
		panic(fmt.Sprintf("embedded texts catalog is invalid: %v", err))
	}
	return &c
}

// Load reads a catalog file over the embedded default. An empty path
// returns the default.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading texts file: %w", err)
	}

	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parsing texts file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in texts file: %v", undecoded)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating texts file: %w", err)
	}
	return c, nil
}

// Validate checks the constraints the router relies on.
func (c *Catalog) Validate() error {
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive")
	}

	labels := map[string]string{
		"request_contact":  c.Buttons.RequestContact,
		"info":             c.Buttons.Info,
		"open_chat":        c.Buttons.OpenChat,
		"settings":         c.Buttons.Settings,
		"close_chat":       c.Buttons.CloseChat,
		"operator_on":      c.Buttons.OperatorOn,
		"operator_off":     c.Buttons.OperatorOff,
		"operator_history": c.Buttons.OperatorHistory,
	}
	seen := make(map[string]string, len(labels))
	for key, label := range labels {
		if label == "" {
			return fmt.Errorf("buttons.%s must not be empty", key)
		}
		if other, dup := seen[label]; dup {
			return fmt.Errorf("buttons.%s and buttons.%s share the label %q", key, other, label)
		}
		seen[label] = key
	}

	switch c.Defaults.State {
	case "chatbot", "operator", "entering_cities":
	default:
		return fmt.Errorf("defaults.state %q is not a client state", c.Defaults.State)
	}
	return nil
}

// Truncate cuts s to the catalog's message size limit, counted in runes.
func (c *Catalog) Truncate(s string) string {
	r := []rune(s)
	if len(r) <= c.MaxMessageSize {
		return s
	}
	return string(r[:c.MaxMessageSize])
}

// Holder serves the current catalog and swaps it on Reload.
type Holder struct {
	path string

	mu      sync.RWMutex
	current *Catalog
}

// NewHolder loads the catalog at path (empty for the default).
func NewHolder(path string) (*Holder, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Holder{path: path, current: c}, nil
}

// Static wraps a fixed catalog, mostly for tests.
func Static(c *Catalog) *Holder {
	return &Holder{current: c}
}

// Current returns the active catalog. Callers must not modify it.
func (h *Holder) Current() *Catalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload re-reads the catalog file. On error the previous catalog stays active.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	c, err := Load(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.current = c
	h.mu.Unlock()
	return nil
}
