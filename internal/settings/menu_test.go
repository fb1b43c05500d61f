// ABOUTME: Tests for settings menu rendering and the mutating leaves

package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helpdesk-relay/internal/clients"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

const testChat int64 = 100

func newTestEngine(t *testing.T, cities, subs []string) (*Engine, *clients.Directory, *store.MockStore) {
	t.Helper()
	ctx := context.Background()
	backend := store.NewMockStore()
	dir, err := clients.New(ctx, backend, backend, nil)
	require.NoError(t, err)

	_, err = dir.Authorize(ctx, clients.Contact{UserID: testChat, Phone: "79000000000"}, clients.Defaults{
		State:         store.StateChatbot,
		Cities:        cities,
		Subscriptions: subs,
	})
	require.NoError(t, err)

	return NewEngine(dir, texts.Static(texts.Default()), nil), dir, backend
}

func labels(m Menu) []string {
	out := make([]string, 0, len(m.Options))
	for _, o := range m.Options {
		out = append(out, o.Label)
	}
	return out
}

func TestRender_Root(t *testing.T) {
	e, _, _ := newTestEngine(t, nil, nil)

	m, err := e.Render(context.Background(), testChat, MenuPath{Kind: Root})
	require.NoError(t, err)

	assert.Equal(t, "Текущие настройки:\n🔸 Города: не указаны\n🔸 Подписки: отсутствуют", m.Text)
	assert.Equal(t, []string{"Города", "Подписки"}, labels(m))
	assert.Equal(t, "s♞city", m.Options[0].Path.String())
	assert.Equal(t, "s♞sub", m.Options[1].Path.String())
}

func TestRender_RootWithSettings(t *testing.T) {
	e, _, _ := newTestEngine(t, []string{"Тула", "Москва"}, []string{"Акции"})

	m, err := e.Render(context.Background(), testChat, MenuPath{Kind: Root})
	require.NoError(t, err)
	assert.Contains(t, m.Text, "🔸 Города: Москва, Тула")
	assert.Contains(t, m.Text, "🔸 Подписки: Акции")
}

func TestRender_CityList(t *testing.T) {
	e, _, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	m, err := e.Render(ctx, testChat, MenuPath{Kind: CityList})
	require.NoError(t, err)
	assert.Equal(t, []string{"⬅", "Добавить"}, labels(m))
	assert.Equal(t, "s", m.Options[0].Path.String())

	e2, _, _ := newTestEngine(t, []string{"Омск"}, nil)
	m, err = e2.Render(ctx, testChat, MenuPath{Kind: CityList})
	require.NoError(t, err)
	assert.Equal(t, []string{"⬅", "Добавить", "Удалить", "Удалить все"}, labels(m))
	assert.True(t, strings.HasSuffix(m.Text, ". Выбранные города: Омск"))
}

func TestRender_CityAdd_SwitchesState(t *testing.T) {
	e, dir, _ := newTestEngine(t, nil, nil)

	m, err := e.Render(context.Background(), testChat, MenuPath{Kind: CityAdd})
	require.NoError(t, err)
	assert.True(t, m.Final())
	assert.Equal(t, texts.Default().Settings.CityAddWhich, m.Text)

	c, _ := dir.Get(testChat)
	assert.Equal(t, store.StateEnteringCities, c.State)
}

func TestRender_CityDeleteOne(t *testing.T) {
	e, dir, _ := newTestEngine(t, []string{"Москва", "Тула"}, nil)
	ctx := context.Background()

	list, err := e.Render(ctx, testChat, MenuPath{Kind: CityDelete})
	require.NoError(t, err)
	assert.Equal(t, []string{"⬅", "Москва", "Тула"}, labels(list))
	assert.Equal(t, "s♞city♞del♞Москва", list.Options[1].Path.String())

	m, err := e.Render(ctx, testChat, list.Options[1].Path)
	require.NoError(t, err)

	c, _ := dir.Get(testChat)
	assert.Equal(t, []string{"Тула"}, c.Cities)

	// Confirmation followed by the parent (deletion list) menu.
	assert.True(t, strings.HasPrefix(m.Text, "Город Москва удалён.\n\n"))
	assert.Equal(t, []string{"⬅", "Тула"}, labels(m))
}

func TestRender_CityDeleteOne_Absent(t *testing.T) {
	e, dir, _ := newTestEngine(t, []string{"Тула"}, nil)

	_, err := e.Render(context.Background(), testChat, MenuPath{Kind: CityDeleteOne, Value: "Москва"})
	require.NoError(t, err)

	c, _ := dir.Get(testChat)
	assert.Equal(t, []string{"Тула"}, c.Cities)
}

func TestRender_CityDeleteAll(t *testing.T) {
	e, dir, _ := newTestEngine(t, []string{"Москва", "Тула"}, nil)

	m, err := e.Render(context.Background(), testChat, MenuPath{Kind: CityDeleteAll})
	require.NoError(t, err)

	c, _ := dir.Get(testChat)
	assert.Empty(t, c.Cities)
	assert.True(t, strings.HasPrefix(m.Text, "Все города удалены."))
	assert.Equal(t, []string{"⬅", "Добавить"}, labels(m), "parent city list re-rendered")
}

func TestRender_SubAdd(t *testing.T) {
	e, dir, _ := newTestEngine(t, nil, []string{"Новости"})
	ctx := context.Background()

	m, err := e.Render(ctx, testChat, MenuPath{Kind: SubAdd})
	require.NoError(t, err)
	assert.Equal(t, []string{"⬅", "Акции", "Мероприятия", "Вакансии"}, labels(m))

	m, err = e.Render(ctx, testChat, m.Options[1].Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.Text, "Подписка Акции добавлена."))

	c, _ := dir.Get(testChat)
	assert.Equal(t, []string{"Акции", "Новости"}, c.Subscriptions)
}

func TestRender_SubAdd_AlreadyAll(t *testing.T) {
	all := texts.Default().Subscriptions
	e, _, _ := newTestEngine(t, nil, all)

	m, err := e.Render(context.Background(), testChat, MenuPath{Kind: SubAdd})
	require.NoError(t, err)
	assert.Equal(t, texts.Default().Settings.SubAddAlreadyAll, m.Text)
	assert.Equal(t, []string{"⬅"}, labels(m))
}

func TestRender_SubAddOne_UnknownTopic(t *testing.T) {
	e, dir, _ := newTestEngine(t, nil, nil)

	_, err := e.Render(context.Background(), testChat, MenuPath{Kind: SubAddOne, Value: "Казино"})
	assert.ErrorIs(t, err, ErrMalformedPath)

	c, _ := dir.Get(testChat)
	assert.Empty(t, c.Subscriptions)
}

func TestRender_SubDeleteAllAndOne(t *testing.T) {
	e, dir, _ := newTestEngine(t, nil, []string{"Акции", "Новости"})
	ctx := context.Background()

	_, err := e.Render(ctx, testChat, MenuPath{Kind: SubDeleteOne, Value: "Акции"})
	require.NoError(t, err)
	c, _ := dir.Get(testChat)
	assert.Equal(t, []string{"Новости"}, c.Subscriptions)

	m, err := e.Render(ctx, testChat, MenuPath{Kind: SubDeleteAll})
	require.NoError(t, err)
	c, _ = dir.Get(testChat)
	assert.Empty(t, c.Subscriptions)
	assert.True(t, strings.HasPrefix(m.Text, "Все подписки удалены."))
}

func TestRender_EveryNonRootMenuHasBack(t *testing.T) {
	e, _, _ := newTestEngine(t, []string{"Москва"}, []string{"Акции"})
	ctx := context.Background()

	for _, kind := range []Kind{CityList, CityDelete, SubList, SubAdd, SubDelete} {
		p := MenuPath{Kind: kind}
		m, err := e.Render(ctx, testChat, p)
		require.NoError(t, err, kind.String())
		require.NotEmpty(t, m.Options, kind.String())

		parent, _ := p.Parent()
		assert.Equal(t, "⬅", m.Options[0].Label, kind.String())
		assert.Equal(t, parent, m.Options[0].Path, kind.String())
	}
}

func TestRender_UnknownClient(t *testing.T) {
	e, _, _ := newTestEngine(t, nil, nil)
	_, err := e.Render(context.Background(), 999, MenuPath{Kind: Root})
	assert.ErrorIs(t, err, clients.ErrNotAuthorized)
}

func TestRender_PersistenceFailure(t *testing.T) {
	e, dir, backend := newTestEngine(t, []string{"Москва"}, nil)
	backend.FailWrites(errors.New("disk full"))

	_, err := e.Render(context.Background(), testChat, MenuPath{Kind: CityDeleteAll})
	assert.ErrorIs(t, err, clients.ErrPersistence)

	c, _ := dir.Get(testChat)
	assert.Equal(t, []string{"Москва"}, c.Cities)
}

func TestAddCities(t *testing.T) {
	e, dir, _ := newTestEngine(t, []string{"Москва"}, nil)
	ctx := context.Background()
	require.NoError(t, dir.SetState(ctx, testChat, store.StateEnteringCities))

	msg, err := e.AddCities(ctx, testChat, "Питер, Санкт-Петербург; мск")
	require.NoError(t, err)
	assert.Equal(t, "Готово! Ваши города: Москва, Санкт-Петербург", msg)

	c, _ := dir.Get(testChat)
	assert.Equal(t, []string{"Москва", "Санкт-Петербург"}, c.Cities)
	assert.Equal(t, store.StateChatbot, c.State)
}
