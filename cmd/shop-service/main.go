package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/shop-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[shop-service] ", log.LstdFlags|log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			logger.Fatalf("run migrations: %v", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	productRepo := product.NewPostgresRepository()
	opts := cart.Options{
		Logger:          logger,
		MaxRetries:      cfg.MaxConflictRetries,
		CheckoutTimeout: cfg.CheckoutTimeout,
	}

	var publisher *events.CartEventsPublisher
	if cfg.PublishEvents {
		var sqlDB *sql.DB
		publisher, sqlDB = mustPublisher(ctx, cfg, logger)
		defer sqlDB.Close()
		opts.Publisher = publisher
	} else {
		logger.Printf("event publishing disabled")
	}

	cartSvc := cart.NewService(pool, cart.NewPostgresRepository(), productRepo, opts)
	stockSvc := product.NewService(pool, productRepo)

	router := httpapi.NewRouter(
		httpapi.NewCartHandler(cartSvc, logger, cfg.RequestTimeout),
		httpapi.NewStockHandler(stockSvc, logger, cfg.RequestTimeout),
		cfg.CORSAllowOrigins,
	)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("shop-service listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Printf("server error: %v", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Printf("publisher close error: %v", err)
		}
	}
}

// mustPublisher connects to RabbitMQ and opens the database/sql handle the
// event sequence table is kept on. The publisher owns the broker connection.
func mustPublisher(ctx context.Context, cfg config.Config, logger *log.Logger) (*events.CartEventsPublisher, *sql.DB) {
	sqlDB, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}

	conn, err := events.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	publisher, err := events.NewCartEventsPublisher(conn, events.NewSequenceRepository(sqlDB), logger)
	if err != nil {
		_ = conn.Close()
		logger.Fatalf("create cart publisher: %v", err)
	}
	return publisher, sqlDB
}
