package main

import (
	"context"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jmoiron/sqlx"

	"sleepoutside/internal/cache"
	"sleepoutside/internal/cart"
	"sleepoutside/internal/checkout"
	"sleepoutside/internal/config"
	"sleepoutside/internal/datasource"
	"sleepoutside/internal/http/handlers"
	applog "sleepoutside/internal/log"
	"sleepoutside/internal/remote"
	"sleepoutside/internal/repos"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			log.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	// ---------- Catalog ----------
	catalogAPI, err := remote.New(remote.Options{Name: "catalog", BaseURL: cfg.APIBaseURL, Timeout: cfg.HTTPTimeout})
	if err != nil {
		log.Fatal(err)
	}
	var fallback fs.FS = datasource.Bundled()
	if cfg.FallbackDir != "" {
		fallback = os.DirFS(cfg.FallbackDir)
		log.Printf("[catalog] fallback -> %s", cfg.FallbackDir)
	}
	local := datasource.NewLocalProvider(fallback)
	products := datasource.New(datasource.NewRemoteProvider(catalogAPI), local)

	// ---------- Carts ----------
	persister, db := openCartBackend(cfg)
	carts := cart.NewManager(persister, cfg.CartSlot)
	carts.Subscribe(cart.ObserverFunc(func(ctx context.Context, key string, s cart.Summary) {
		applog.Info(nil, "cart.changed", map[string]any{"slot": key, "count": s.Count, "total": s.Totals.GrandTotal.StringFixed(2)})
	}))

	// ---------- Checkout ----------
	ordersAPI, err := remote.New(remote.Options{Name: "orders", BaseURL: cfg.APIBaseURL, Timeout: cfg.HTTPTimeout})
	if err != nil {
		log.Fatal(err)
	}
	opts := []checkout.Option{checkout.WithObserver(checkout.LogTransitions())}
	var history handlers.AttemptHistory
	if db != nil {
		attempts := repos.NewCheckoutAttemptRepo(db)
		opts = append(opts, checkout.WithObserver(checkout.RecordAttempts(attempts)))
		history = attempts
	}
	wf := checkout.NewWorkflow(carts, checkout.NewRemoteSubmitter(ordersAPI), opts...)

	// Templates & app
	engine := handlers.NewViews(cfg.TemplatesDir)
	engine.Reload(true)

	app := fiber.New(fiber.Config{
		Views:        engine,
		ErrorHandler: handlers.ErrorHandler,
	})
	// Global body size guard
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/static/")
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).SendString("Too many requests. Please slow down.")
		},
	}))
	app.Use(handlers.NewCSRF(false)) // set true behind HTTPS
	app.Use(handlers.CartBadge(carts))

	// ---------- Static assets ----------
	log.Printf("[static] /static -> %s", cfg.StaticDir)
	app.Static("/static", cfg.StaticDir)

	// ---------- App handlers ----------
	handlers.Routes(app, handlers.NewDeps(products, local.Categories(), carts, wf, history))

	log.Fatal(app.Listen(":" + cfg.Port))
}

// openCartBackend picks the cart persister. The db is returned for the
// sqlite backend so checkout attempts can be recorded next to the carts.
func openCartBackend(cfg config.Config) (cart.Persister, *sqlx.DB) {
	switch cfg.CartBackend {
	case config.BackendMemory:
		log.Printf("[cart] backend=memory, carts are lost on restart")
		return cart.NewMemoryPersister(), nil

	case config.BackendRedis:
		client, err := cache.NewClient(cfg.RedisURL, cfg.RedisAddr)
		if err != nil {
			log.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("[cart] redis ping: %v", err)
		}
		log.Printf("[cart] backend=redis ttl=%s", cfg.CartMaxAge)
		return cache.NewSlotStore(client, "", cfg.CartMaxAge), nil
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	if repos.IsMemoryDSN(cfg.DBDSN) {
		log.Printf("[cart] DB_DSN=%s is in-memory, carts are lost on restart", cfg.DBDSN)
	}
	slots := repos.NewCartSlotRepo(db)
	if cfg.CartMaxAge > 0 {
		n, err := slots.PurgeOlderThan(context.Background(), time.Now().Add(-cfg.CartMaxAge))
		if err != nil {
			log.Printf("[cart] purge failed: %v", err)
		} else if n > 0 {
			log.Printf("[cart] purged %d carts older than %s", n, cfg.CartMaxAge)
		}
	}
	log.Printf("[cart] backend=sqlite dsn=%s", cfg.DBDSN)
	return slots, db
}
