package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"chatbridge/config"
	dbpkg "chatbridge/db"
	"chatbridge/models"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbpkg.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig(graphURL string) config.Configuration {
	var conf config.Configuration
	conf.WhatsApp = config.WhatsApp{
		ApiBaseURL:            graphURL,
		ApiVersion:            "v24.0",
		RequestTimeoutSeconds: 2,
		MaxAttempts:           3,
		RetryBaseMillis:       1,
		AutoReplyTimeoutSecs:  5,
	}
	conf.Delivery = config.Delivery{Simulate: true, DeliveredAfterMillis: 0, ReadAfterMillis: 0}
	return conf
}

func newTestApp(t *testing.T, graphURL string, pusher Pusher) *App {
	t.Helper()
	return NewApp(newTestDB(t), testConfig(graphURL), pusher)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func activate(t *testing.T, app *App) *models.IntegrationConfig {
	t.Helper()
	ic, err := app.Registry.UpsertIntegration(context.Background(), IntegrationPatch{
		APIKey:        strPtr("token"),
		PhoneNumberID: strPtr("PNID"),
		IsActive:      boolPtr(true),
	})
	require.NoError(t, err)
	return ic
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) models.User {
	t.Helper()
	u := models.User{Name: name, Email: name + "@example.com", Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// fakeGraph stands in for the Graph API and records every /messages call.
type fakeGraph struct {
	*httptest.Server
	calls  atomic.Int32
	mu     sync.Mutex
	bodies []string
	paths  []string
}

type graphResponder func(call int32, w http.ResponseWriter)

func newFakeGraph(t *testing.T, respond graphResponder) *fakeGraph {
	t.Helper()
	g := &fakeGraph{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.bodies = append(g.bodies, string(raw))
		g.paths = append(g.paths, r.URL.Path)
		g.mu.Unlock()
		respond(g.calls.Add(1), w)
	}))
	t.Cleanup(g.Close)
	return g
}

func (g *fakeGraph) requests() ([]string, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string{}, g.paths...), append([]string{}, g.bodies...)
}

func replyWithID(prefix string) graphResponder {
	return func(call int32, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"messaging_product":"whatsapp","messages":[{"id":"%s-%d"}]}`, prefix, call)
	}
}

func replyWithStatus(status int, body string) graphResponder {
	return func(call int32, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

type pushed struct {
	users []int64
	event string
}

type recordingPusher struct {
	mu     sync.Mutex
	events []pushed
}

func (r *recordingPusher) Push(users []int64, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pushed{users: append([]int64{}, users...), event: event})
}

func (r *recordingPusher) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}
