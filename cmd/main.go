package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"TriPot/config"
	"TriPot/internal/events"
	"TriPot/internal/game/manager"
	"TriPot/internal/game/table"
	"TriPot/internal/middleware"
	"TriPot/internal/session"
	"TriPot/internal/storage"
	"TriPot/internal/store"
	"TriPot/internal/utils"
	"TriPot/internal/wallet"
	"TriPot/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const sessionTTL = 24 * time.Hour

func main() {
	config.Load()
	utils.Init(config.C.Log.Level)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := migrateCommand(os.Args[2:]); err != nil {
			utils.Log.Fatal("Migration error", "err", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		utils.Log.Fatal("Server error", "err", err)
	}
}

func run(ctx context.Context) error {
	cfg := config.C

	//-------------------------------------------------------
	// 1. 初始化存储：Redis 存会话和座位，Postgres 存下注
	//-------------------------------------------------------
	if err := storage.InitRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		return fmt.Errorf("redis init failed: %w", err)
	}
	defer storage.Close()

	bets, err := openBets(cfg.Database.DSN)
	if err != nil {
		return err
	}

	//-------------------------------------------------------
	// 2. 事件镜像到 NATS（可选）
	//-------------------------------------------------------
	var bus events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			utils.Log.Warn("Event mirror disabled", "err", err)
		} else {
			bus = nc
		}
	}
	defer bus.Close()

	//-------------------------------------------------------
	// 3. 初始化 Hub、会话和牌桌（Hub 必须最先启动）
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()

	registry := session.NewRegistry(
		store.NewRedisSessionRepo(storage.Rdb, sessionTTL),
		session.NewRedisSeats(storage.Rdb),
		hub,
	)

	tables := manager.NewTableManager(manager.Deps{
		Game:   cfg.Game,
		Hub:    hub,
		Wallet: wallet.NewClient(cfg.Wallet),
		Seats:  registry,
		Bets:   bets,
		Bus:    bus,
	})
	defer tables.StopAll()

	hub.OnConnect = func(c *websocket.Client) {
		err := registry.Connect(ctx, store.Session{
			ConnID: c.ID,
			UserID: c.UserID,
			Name:   c.Name,
			Avatar: c.Avatar,
			Token:  c.Token,
			Tenant: c.Tenant,
		})
		if err != nil {
			utils.Log.Error("Session connect failed", "user", c.UserID, "err", err)
			return
		}
		if s, err := registry.Lookup(ctx, c.UserID); err == nil && s.TableID == "" {
			if _, err := registry.JoinTable(ctx, cfg.Game.DefaultTable, c.UserID); err != nil {
				utils.Log.Warn("Seat at default table failed", "user", c.UserID, "err", err)
			}
		}
	}
	hub.OnDisconnect = func(c *websocket.Client) {
		if err := registry.Disconnect(context.WithoutCancel(ctx), c.UserID, c.ID); err != nil {
			utils.Log.Error("Session disconnect failed", "user", c.UserID, "err", err)
		}
	}
	hub.OnIncoming = func(msg websocket.IncomingMessage) {
		tables.HandlePlayerMessage(ctx, msg)
	}

	if _, err := tables.Open(ctx, table.Table{ID: cfg.Game.DefaultTable, GameID: cfg.Game.PrimaryGameID}); err != nil {
		return fmt.Errorf("open default table: %w", err)
	}

	//-------------------------------------------------------
	// 4. 初始化 Gin + CORS
	//-------------------------------------------------------
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	th := manager.NewHandler(tables)
	r.GET("/tables", th.List)
	r.GET("/tables/:id", th.Status)

	sh := session.NewHandler(registry)
	r.GET("/table/:id/players", sh.Players)

	secret := []byte(cfg.JWT.Secret)
	auth := r.Group("/", middleware.JwtAuthMiddleware(secret))
	{
		auth.GET("/ws", websocket.ServeWS(hub))
		auth.POST("/table/join", sh.Join)
		auth.POST("/table/leave", sh.Leave)

		auth.POST("/tables", th.Open)
		auth.POST("/tables/:id/start", th.Start)
		auth.POST("/tables/:id/stop", th.Stop)
	}

	srv := &http.Server{Addr: cfg.Server.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		utils.Log.Info("Server running", "addr", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openBets picks the bet store: Postgres when a DSN is set, otherwise the
// process-local memory store.
func openBets(dsn string) (store.BetRepo, error) {
	if dsn == "" {
		// 没配数据库时下注只保存在进程内存里
		utils.Log.Warn("database.dsn not set, bets are kept in memory")
		return store.NewMemoryStore(), nil
	}
	if err := storage.InitPostgres(dsn); err != nil {
		return nil, fmt.Errorf("postgres init failed: %w", err)
	}
	return store.NewPostgresStore(storage.DB), nil
}

// migrateCommand handles `tripot migrate [up|down [n]|status]`.
func migrateCommand(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tripot migrate [up|down [steps]|status]")
	}
	if config.C.Database.DSN == "" {
		return errors.New("database.dsn is not set")
	}
	if err := storage.OpenPostgres(config.C.Database.DSN); err != nil {
		return err
	}
	defer storage.Close()

	switch args[0] {
	case "up":
		return storage.Migrate(storage.DB)
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("bad step count %q: %w", args[1], err)
			}
			steps = n
		}
		return storage.MigrateDown(storage.DB, steps)
	case "status":
		version, dirty, err := storage.MigrationStatus(storage.DB)
		if err != nil {
			return err
		}
		utils.Log.Info("Migration status", "version", version, "dirty", dirty)
		return nil
	default:
		return fmt.Errorf("unknown migration command: %s", args[0])
	}
}
