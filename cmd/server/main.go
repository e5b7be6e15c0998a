package main

import (
	"log"
	"net/http"

	config "smartcart-api/configs"
	"smartcart-api/pkg/handlers"
	"smartcart-api/pkg/services"
	"smartcart-api/pkg/store"
	"smartcart-api/pkg/xai"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	// Ginルーターの初期化
	r := gin.Default()

	// 永続化レイヤーの初期化
	pgStore, err := store.NewPostgresStore(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	if err != nil {
		log.Fatalf("FATAL: データベースへの接続に失敗: %v", err)
	}
	defer pgStore.Close()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	grokClient := xai.NewClient(cfg.XAIEndpoint, cfg.XAIAPIKey, cfg.XAIModel)
	conciergeService := services.NewConciergeService(grokClient, pgStore)
	catalogService := services.NewCatalogService(pgStore, nil)
	intentRouter := services.NewIntentRouter(catalogService, pgStore, conciergeService)

	// ハンドラーの初期化
	chatHandler := handlers.NewChatHandler(intentRouter)
	cartHandler := handlers.NewCartHandler(pgStore)
	checkoutHandler := handlers.NewCheckoutHandler(pgStore)
	aiHandler := handlers.NewAIHandler(conciergeService, catalogService)
	adminHandler := handlers.NewAdminHandler(cfg, pgStore)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware()) // ロギングミドルウェアをグローバルに適用
	r.Use(cors.Default())

	// 認証ミドルウェア
	authMiddleware := func(apiKey string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if apiKey == "" || apiKey == "default_secret_key" {
				c.Next()
				return
			}
			providedKey := c.GetHeader("X-API-KEY")
			if providedKey != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
		}
	}

	// ヘルスチェックエンドポイント
	r.GET("/health", handlers.HealthCheck)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		// チャットAPI
		v1.POST("/chat", chatHandler.Chat)

		// カートAPI
		v1.GET("/cart", cartHandler.GetCart)
		v1.POST("/cart", cartHandler.MutateCart)

		// チェックアウトAPI
		v1.POST("/checkout", checkoutHandler.Checkout)

		// 生成AI系API
		v1.GET("/search", aiHandler.SearchProducts)
		v1.GET("/recommendations", aiHandler.GetRecommendations)
		v1.GET("/predictions", aiHandler.GetPredictions)
		v1.GET("/weekly-deals", aiHandler.GetWeeklyDeals)

		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
			admin.GET("/export/purchases", adminHandler.ExportPurchases)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	log.Printf("Starting SmartCart API server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
