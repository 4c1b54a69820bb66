package services

import (
	"chatbridge/config"

	"github.com/jinzhu/gorm"
)

// App wires the services together. Controllers receive it through the gin
// context.
type App struct {
	DB     *gorm.DB
	Config config.Configuration

	Registry      *Registry
	Directory     *Directory
	Dispatcher    *Dispatcher
	Threads       *ThreadService
	Tracker       *StatusTracker
	Bridge        *SyncBridge
	Notifications *NotificationDispatcher
	Webhooks      *WebhookProcessor
	Onboarding    *Onboarding
}

// NewApp builds every service over db. pusher may be nil when nobody listens
// for live events.
func NewApp(db *gorm.DB, conf config.Configuration, pusher Pusher) *App {
	if pusher == nil {
		pusher = noopPusher{}
	}
	locks := NewKeyedMutex()

	app := &App{DB: db, Config: conf}
	app.Registry = NewRegistry(db)
	app.Directory = NewDirectory(db)
	app.Dispatcher = NewDispatcher(app.Registry, DispatcherOptionsFrom(conf.WhatsApp))
	app.Onboarding = NewOnboarding(app.Registry, DispatcherOptionsFrom(conf.WhatsApp))
	app.Threads = NewThreadService(db, app.Directory, locks, pusher)
	app.Tracker = NewStatusTracker(db, pusher, conf.Delivery.DeliveredAfter(), conf.Delivery.ReadAfter())
	app.Bridge = NewSyncBridge(db, app.Dispatcher, app.Threads, app.Tracker, conf.Delivery.Simulate)
	app.Notifications = NewNotificationDispatcher(db, pusher)
	app.Webhooks = NewWebhookProcessor(WebhookProcessorDeps{
		Registry:         app.Registry,
		Directory:        app.Directory,
		Threads:          app.Threads,
		Bridge:           app.Bridge,
		Sender:           app.Dispatcher,
		Tracker:          app.Tracker,
		Notify:           app.Notifications.NotifyThread,
		Locks:            locks,
		AutoReplyTimeout: conf.WhatsApp.AutoReplyTimeout(),
	})
	return app
}
