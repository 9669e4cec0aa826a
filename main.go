package main

import (
	"context"
	"log"
	"time"

	"bikerental/cache"
	"bikerental/config"
	"bikerental/database"
	"bikerental/handlers"
	"bikerental/repository"
	"bikerental/routes"
	"bikerental/services"
	"bikerental/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// bikeStore / rentalStore 是各元件所需介面的聯集
type bikeStore interface {
	services.BikeStore
	services.BikeCatalog
	services.ReconcileBikes
}

type rentalStore interface {
	services.RentalStore
	services.RentalHistory
	services.ReconcileRentals
}

func main() {
	// 載入 .env 檔案
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using default environment variables: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化 JWTSecret
	utils.InitJWTSecret(cfg.Auth.JWTSecret)

	// 設置 Gin 模式
	gin.SetMode(cfg.Server.GinMode)
	log.Printf("Gin mode set to %s", gin.Mode())

	bikes, rentals := openStores(cfg)

	// Redis 快取為可選
	var (
		listCache   services.BikeListCache
		invalidator services.Invalidator
	)
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		rdb, err := database.InitRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		bc := cache.NewBikeCache(rdb, cfg.Redis.TTL)
		listCache, invalidator = bc, bc
	} else {
		log.Println("REDIS_ADDR not set, bike list cache disabled")
	}

	manager := services.NewRentalManager(bikes, rentals,
		services.WithRetryPolicy(services.RetryPolicy{
			Attempts: cfg.Rental.RetryAttempts,
			Interval: cfg.Rental.RetryInterval,
		}),
		services.WithWriteTimeout(cfg.Rental.WriteTimeout),
		services.WithInvalidator(invalidator),
	)
	catalog := services.NewCatalogService(bikes, rentals, listCache)
	reconciler := services.NewReconciler(bikes, rentals, cfg.Reconcile.Grace, invalidator)

	// 啟動定時任務
	c := cron.New()

	// 修復部分失敗造成的車輛狀態不一致
	_, err = c.AddFunc(cfg.Reconcile.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		report, err := reconciler.Run(ctx)
		if err != nil {
			log.Printf("Failed to reconcile bikes: %v", err)
			return
		}
		if report.BikesReleased > 0 || report.BikesReclaimed > 0 {
			log.Printf("Reconcile completed: released=%d reclaimed=%d", report.BikesReleased, report.BikesReclaimed)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule reconcile cron job: %v", err)
	}

	c.Start()
	defer c.Stop()
	log.Println("Cron jobs started")

	// 初始化 Gin 路由器
	r := gin.Default()

	// 創建一個 API 路由組
	api := r.Group("/api")
	{
		routes.Path(api, handlers.New(manager, catalog))
	}

	// 啟動伺服器
	log.Printf("Starting server on %s", cfg.Server.Address)
	if err := r.Run(cfg.Server.Address); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func openStores(cfg config.Config) (bikeStore, rentalStore) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Println("Using in-memory store")
		store := repository.NewMemoryStore()
		return store, store
	}

	// 初始化資料庫
	db, err := database.InitDB(cfg.Database.DSN, cfg.Server.GinMode)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 執行資料庫遷移
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return repository.NewGormBikeStore(db), repository.NewGormRentalStore(db)
}
