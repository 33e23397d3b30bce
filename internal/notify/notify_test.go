package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"grocery-price/internal/model"
	"grocery-price/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drop(name, storeCode, category string, prev, cur int64, pct float64) model.PriceDrop {
	p, c := decimal.NewFromInt(prev), decimal.NewFromInt(cur)
	return model.PriceDrop{
		Product:        &model.Product{ID: name, Name: name, CategoryID: category},
		Store:          &model.Store{Code: storeCode, Name: storeCode + " Store"},
		PreviousPrice:  p,
		CurrentPrice:   c,
		DropAmount:     p.Sub(c),
		DropPercentage: pct,
	}
}

func TestFilterDrops(t *testing.T) {
	drops := []model.PriceDrop{
		drop("apples", "TNT", "cat-fruit", 10, 5, 50),
		drop("milk", "WALMART", "cat-dairy", 10, 8, 20),
		drop("bread", "TNT", "", 10, 9, 10),
	}

	assert.Len(t, FilterDrops(drops, &model.Subscription{}), 3)
	assert.Len(t, FilterDrops(drops, &model.Subscription{MinDropPercentage: 20}), 2)

	got := FilterDrops(drops, &model.Subscription{StoreFilters: []string{"tnt"}})
	require.Len(t, got, 2)
	assert.Equal(t, "apples", got[0].Product.Name)

	got = FilterDrops(drops, &model.Subscription{CategoryFilters: []string{"dairy"}})
	require.Len(t, got, 1)
	assert.Equal(t, "milk", got[0].Product.Name)

	var many []model.PriceDrop
	for i := 0; i < 15; i++ {
		many = append(many, drop("x", "TNT", "", 10, 5, 50))
	}
	assert.Len(t, FilterDrops(many, &model.Subscription{}), maxDropsPerMessage)
}

func TestFormatDrops(t *testing.T) {
	msg := FormatDrops([]model.PriceDrop{drop("Fuji Apples", "TNT", "", 10, 7, 30)})

	assert.True(t, strings.HasPrefix(msg, "🏷️ Price Drop Alert!\n\n"))
	assert.Contains(t, msg, "Fuji Apples - TNT Store\n")
	assert.Contains(t, msg, "Was: $10.00 → Now: $7.00\n")
	assert.Contains(t, msg, "Save 30% ($3.00)")
}

type captureSender struct {
	mu      sync.Mutex
	targets []string
	bodies  []string
	err     error
}

func (c *captureSender) Send(_ context.Context, target, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.targets = append(c.targets, target)
	c.bodies = append(c.bodies, body)
	return nil
}

func TestDispatchFansOut(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()
	for _, sub := range []*model.Subscription{
		{ID: "a", Channel: model.ChannelTelegram, Target: "111", Active: true},
		{ID: "b", Channel: model.ChannelTelegram, Target: "222", Active: true, MinDropPercentage: 90},
		{ID: "c", Channel: model.ChannelTelegram, Target: "333", Active: false},
		{ID: "d", Channel: model.ChannelBark, Target: "key", Active: true},
		{ID: "e", Channel: model.ChannelEmail, Target: "x@y.com", Active: true},
	} {
		require.NoError(t, repo.SaveSubscription(ctx, sub))
	}

	telegram := &captureSender{}
	bark := &captureSender{err: errors.New("device gone")}

	d := NewDispatcher(repo, nil)
	d.Register(model.ChannelTelegram, telegram)
	d.Register(model.ChannelBark, bark)

	err := d.Dispatch(ctx, []model.PriceDrop{drop("apples", "TNT", "", 10, 5, 50)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device gone")
	assert.Contains(t, err.Error(), "no sender")

	assert.Equal(t, []string{"111"}, telegram.targets)
	assert.Contains(t, telegram.bodies[0], "apples - TNT Store")
	assert.Equal(t, DispatchStats{Sent: 1, Failed: 2}, d.Stats())

	require.NoError(t, d.Dispatch(ctx, nil))
}

func TestTelegramSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["chat_id"] == "404" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg := NewTelegramService(srv.URL+"/", "TOKEN")
	require.True(t, tg.IsEnabled())
	require.NoError(t, tg.Send(context.Background(), "123", AlertTitle, "hello"))
	assert.Equal(t, "123", got["chat_id"])
	assert.Equal(t, "hello", got["text"])

	err := tg.Send(context.Background(), "404", AlertTitle, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	assert.NoError(t, NewTelegramService("", "").Send(context.Background(), "1", "", "ignored"))
}

func TestBarkSend(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/bad") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	b := NewBarkService(srv.URL)
	require.NoError(t, b.Send(context.Background(), "devkey", "Title", "Body text"))
	assert.Equal(t, "/devkey/Title/Body text", path)

	assert.Error(t, b.Send(context.Background(), "bad", "t", "b"))
	assert.Error(t, b.Send(context.Background(), "", "t", "b"))

	b.Disable()
	assert.NoError(t, b.Send(context.Background(), "", "t", "b"))
}

func TestEmailSend(t *testing.T) {
	e := NewEmailService("smtp.example.com", "user", "pass", "Alerts <a@example.com>", 587)
	var addr, msg string
	e.deliver = func(a, _, m string) error {
		addr, msg = a, m
		return nil
	}

	require.NoError(t, e.Send(context.Background(), "me@example.com", AlertTitle, "line1\nline2"))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Contains(t, msg, "To: me@example.com\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.True(t, strings.HasSuffix(msg, "line1\r\nline2"))

	assert.Error(t, e.Send(context.Background(), "not-an-email", "s", "b"))
	assert.False(t, NewEmailService("h", "", "", "f", 25).IsEnabled())
}

func TestValidateSubscription(t *testing.T) {
	valid := []*model.Subscription{
		{Channel: model.ChannelTelegram, Target: "-100123"},
		{Channel: model.ChannelTelegram, Target: "@grocery_deals"},
		{Channel: model.ChannelBark, Target: "abcDEF123"},
		{Channel: model.ChannelEmail, Target: "a@b.ca", MinDropPercentage: 15},
	}
	for _, s := range valid {
		assert.NoError(t, ValidateSubscription(s), s.Target)
	}

	invalid := []*model.Subscription{
		{Channel: "sms", Target: "1"},
		{Channel: model.ChannelTelegram, Target: "abc"},
		{Channel: model.ChannelBark, Target: "has space"},
		{Channel: model.ChannelEmail, Target: "nope"},
		{Channel: model.ChannelEmail, Target: "a@b.ca", MinDropPercentage: 120},
	}
	for _, s := range invalid {
		assert.ErrorIs(t, ValidateSubscription(s), ErrInvalidSubscription, s.Target)
	}
}

type explodingSender struct{}

func (explodingSender) Send(context.Context, string, string, string) error {
	panic("socket closed")
}

func TestDispatchContainsSenderPanic(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, repo.SaveSubscription(ctx, &model.Subscription{ID: "a", Channel: model.ChannelBark, Target: "key", Active: true}))
	require.NoError(t, repo.SaveSubscription(ctx, &model.Subscription{ID: "b", Channel: model.ChannelTelegram, Target: "42", Active: true}))

	telegram := &captureSender{}
	d := NewDispatcher(repo, nil)
	d.Register(model.ChannelBark, explodingSender{})
	d.Register(model.ChannelTelegram, telegram)

	err := d.Dispatch(ctx, []model.PriceDrop{drop("apples", "TNT", "", 10, 5, 50)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket closed")
	assert.Equal(t, []string{"42"}, telegram.targets)
	assert.Equal(t, DispatchStats{Sent: 1, Failed: 1}, d.Stats())
}
