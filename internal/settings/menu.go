// ABOUTME: Settings dialog engine: renders a menu for a client at a MenuPath
// ABOUTME: Mutating leaves persist through the client directory and re-render their parent menu

package settings

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/2389/helpdesk-relay/internal/clients"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

// Option is one inline button.
type Option struct {
	Label string
	Path  MenuPath
}

// Menu is a rendered step of the dialog. A menu without options is a
// final notification.
type Menu struct {
	Text    string
	Options []Option
}

// Final reports whether the dialog ends at this menu.
func (m Menu) Final() bool {
	return len(m.Options) == 0
}

// Directory is the subset of the client directory the engine needs.
type Directory interface {
	Get(chatID int64) (*store.Client, bool)
	Update(ctx context.Context, chatID int64, fn func(c *store.Client) error) error
}

// CatalogSource yields the active message catalog.
type CatalogSource interface {
	Current() *texts.Catalog
}

// Engine renders settings menus.
type Engine struct {
	dir     Directory
	catalog CatalogSource
	logger  *slog.Logger
}

// NewEngine creates a settings engine.
func NewEngine(dir Directory, catalog CatalogSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dir:     dir,
		catalog: catalog,
		logger:  logger.With("component", "settings"),
	}
}

// Render produces the menu at p for the client, applying the leaf's
// mutation first when p is a mutating leaf.
func (e *Engine) Render(ctx context.Context, chatID int64, p MenuPath) (Menu, error) {
	c, ok := e.dir.Get(chatID)
	if !ok {
		return Menu{}, fmt.Errorf("client %d: %w", chatID, clients.ErrNotAuthorized)
	}
	cat := e.catalog.Current()
	t := cat.Settings

	if !p.Kind.Mutates() {
		return e.view(c, cat, p)
	}

	var confirmation string
	switch p.Kind {
	case CityAdd:
		if err := e.dir.Update(ctx, chatID, func(c *store.Client) error {
			c.State = store.StateEnteringCities
			return nil
		}); err != nil {
			return Menu{}, err
		}
		return Menu{Text: t.CityAddWhich}, nil

	case CityDeleteAll:
		if err := e.setCities(ctx, chatID, nil); err != nil {
			return Menu{}, err
		}
		confirmation = t.CityDelAllSuccess

	case CityDeleteOne:
		city, err := resolveValue(p.Value, c.Cities)
		if err != nil {
			return Menu{}, err
		}
		if !slices.Contains(c.Cities, city) {
			e.logger.Debug("city already absent", "chat_id", chatID, "city", city)
		}
		if err := e.setCities(ctx, chatID, without(c.Cities, city)); err != nil {
			return Menu{}, err
		}
		confirmation = fmt.Sprintf(t.CityDelSuccess, city)

	case SubDeleteAll:
		if err := e.setSubscriptions(ctx, chatID, nil); err != nil {
			return Menu{}, err
		}
		confirmation = t.SubDelAllSuccess

	case SubDeleteOne:
		sub, err := resolveValue(p.Value, c.Subscriptions)
		if err != nil {
			return Menu{}, err
		}
		if !slices.Contains(c.Subscriptions, sub) {
			e.logger.Debug("subscription already absent", "chat_id", chatID, "subscription", sub)
		}
		if err := e.setSubscriptions(ctx, chatID, without(c.Subscriptions, sub)); err != nil {
			return Menu{}, err
		}
		confirmation = fmt.Sprintf(t.SubDelSuccess, sub)

	case SubAddOne:
		catalogSubs := store.SortedSet(cat.Subscriptions)
		sub, err := resolveValue(p.Value, catalogSubs)
		if err != nil {
			return Menu{}, err
		}
		if !slices.Contains(catalogSubs, sub) {
			return Menu{}, fmt.Errorf("%w: unknown subscription %q", ErrMalformedPath, sub)
		}
		if err := e.setSubscriptions(ctx, chatID, append(c.Subscriptions, sub)); err != nil {
			return Menu{}, err
		}
		confirmation = fmt.Sprintf(t.SubAddSuccess, sub)
	}

	fresh, ok := e.dir.Get(chatID)
	if !ok {
		return Menu{}, fmt.Errorf("client %d: %w", chatID, clients.ErrNotAuthorized)
	}
	parent, _ := p.Parent()
	m, err := e.view(fresh, cat, parent)
	if err != nil {
		return Menu{}, err
	}
	m.Text = confirmation + "\n\n" + m.Text
	return m, nil
}

// view renders a non-mutating menu.
func (e *Engine) view(c *store.Client, cat *texts.Catalog, p MenuPath) (Menu, error) {
	t := cat.Settings
	var m Menu

	switch p.Kind {
	case Root:
		var b strings.Builder
		b.WriteString(t.RootTitle)
		b.WriteString("\n")
		b.WriteString(t.RootCities)
		b.WriteString(joinOr(c.Cities, t.NoCities))
		b.WriteString("\n")
		b.WriteString(t.RootSubscriptions)
		b.WriteString(joinOr(c.Subscriptions, t.NoSubscriptions))
		m.Text = b.String()
		m.Options = []Option{
			{Label: t.CitiesLabel, Path: MenuPath{Kind: CityList}},
			{Label: t.SubscriptionsLabel, Path: MenuPath{Kind: SubList}},
		}
		return m, nil

	case CityList:
		m.Text = t.Cities
		m.Options = []Option{{Label: t.AddLabel, Path: MenuPath{Kind: CityAdd}}}
		if len(c.Cities) > 0 {
			m.Text += fmt.Sprintf(t.CitiesSelected, strings.Join(c.Cities, ", "))
			m.Options = append(m.Options,
				Option{Label: t.DeleteLabel, Path: MenuPath{Kind: CityDelete}},
				Option{Label: t.DeleteAllLabel, Path: MenuPath{Kind: CityDeleteAll}},
			)
		}

	case CityDelete:
		m.Text = t.CityDelWhich
		for _, city := range c.Cities {
			m.Options = append(m.Options, Option{Label: city, Path: valuePath(CityDeleteOne, city)})
		}

	case SubList:
		m.Text = t.Subscriptions
		m.Options = []Option{{Label: t.AddLabel, Path: MenuPath{Kind: SubAdd}}}
		if len(c.Subscriptions) > 0 {
			m.Text += fmt.Sprintf(t.SubscriptionsSelected, strings.Join(c.Subscriptions, ", "))
			m.Options = append(m.Options,
				Option{Label: t.DeleteLabel, Path: MenuPath{Kind: SubDelete}},
				Option{Label: t.DeleteAllLabel, Path: MenuPath{Kind: SubDeleteAll}},
			)
		}

	case SubAdd:
		for _, sub := range cat.Subscriptions {
			if slices.Contains(c.Subscriptions, sub) {
				continue
			}
			m.Options = append(m.Options, Option{Label: sub, Path: valuePath(SubAddOne, sub)})
		}
		if len(m.Options) > 0 {
			m.Text = t.SubAddWhich
		} else {
			m.Text = t.SubAddAlreadyAll
		}

	case SubDelete:
		m.Text = t.SubDelWhich
		for _, sub := range c.Subscriptions {
			m.Options = append(m.Options, Option{Label: sub, Path: valuePath(SubDeleteOne, sub)})
		}

	default:
		return Menu{}, fmt.Errorf("%w: %s is not a view", ErrMalformedPath, p.Kind)
	}

	parent, _ := p.Parent()
	m.Options = append([]Option{{Label: t.BackLabel, Path: parent}}, m.Options...)
	return m, nil
}

// AddCities merges free-text input into the client's cities and returns
// to the chatbot state. The confirmation lists the resulting set.
func (e *Engine) AddCities(ctx context.Context, chatID int64, input string) (string, error) {
	var cities []string
	err := e.dir.Update(ctx, chatID, func(c *store.Client) error {
		c.Cities = NormalizeCities(c.Cities, input)
		c.State = store.StateChatbot
		cities = c.Cities
		return nil
	})
	if err != nil {
		return "", err
	}
	t := e.catalog.Current().Settings
	return fmt.Sprintf(t.CityAddApprove, strings.Join(cities, ", ")), nil
}

func (e *Engine) setCities(ctx context.Context, chatID int64, cities []string) error {
	return e.dir.Update(ctx, chatID, func(c *store.Client) error {
		c.Cities = cities
		return nil
	})
}

func (e *Engine) setSubscriptions(ctx context.Context, chatID int64, subs []string) error {
	return e.dir.Update(ctx, chatID, func(c *store.Client) error {
		c.Subscriptions = subs
		return nil
	})
}

func without(set []string, value string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func joinOr(list []string, empty string) string {
	if len(list) == 0 {
		return empty
	}
	return strings.Join(list, ", ")
}
