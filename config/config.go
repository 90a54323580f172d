package config

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

type Phases struct {
	Betting        int
	WinCalculation int
	ResultAnnounce int
	NewGameStart   int
}

type Weights struct {
	Low    float64
	Medium float64
	High   float64
}

type Game struct {
	DefaultTable  string
	PrimaryGameID string
	Phases        Phases
	Multipliers   []float64
	Weights       Weights
	HistorySize   int
	MinWinners    int
}

type Wallet struct {
	DefaultBaseURL string
	// tenant key -> base URL of that tenant's wallet service
	Tenants map[string]string
	Timeout time.Duration
}

type Config struct {
	Server struct {
		Port string
	}
	Log struct {
		Level string
	}
	Database struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	JWT struct {
		Secret string
	}
	NATS struct {
		URL           string
		SubjectPrefix string
	}
	Wallet Wallet
	Game   Game
}

var C Config

// Default returns the nominal table settings.
func Default() Config {
	var c Config
	c.Server.Port = ":8080"
	c.Log.Level = "info"
	c.Redis.Addr = "localhost:6379"
	c.NATS.SubjectPrefix = "tripot"
	c.Wallet = Wallet{
		Tenants: map[string]string{},
		Timeout: 3 * time.Second,
	}
	c.Game = Game{
		DefaultTable:  "main",
		PrimaryGameID: "tripot",
		Phases: Phases{
			Betting:        20,
			WinCalculation: 3,
			ResultAnnounce: 6,
			NewGameStart:   3,
		},
		Multipliers: []float64{2.9, 2.9, 2.9},
		Weights:     Weights{Low: 0.4, Medium: 0.4, High: 0.2},
		HistorySize: 10,
		MinWinners:  3,
	}
	return c
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("nats.subjectPrefix", d.NATS.SubjectPrefix)
	v.SetDefault("wallet.timeout", d.Wallet.Timeout)
	v.SetDefault("game.defaultTable", d.Game.DefaultTable)
	v.SetDefault("game.primaryGameID", d.Game.PrimaryGameID)
	v.SetDefault("game.phases.betting", d.Game.Phases.Betting)
	v.SetDefault("game.phases.winCalculation", d.Game.Phases.WinCalculation)
	v.SetDefault("game.phases.resultAnnounce", d.Game.Phases.ResultAnnounce)
	v.SetDefault("game.phases.newGameStart", d.Game.Phases.NewGameStart)
	v.SetDefault("game.multipliers", d.Game.Multipliers)
	v.SetDefault("game.weights.low", d.Game.Weights.Low)
	v.SetDefault("game.weights.medium", d.Game.Weights.Medium)
	v.SetDefault("game.weights.high", d.Game.Weights.High)
	v.SetDefault("game.historySize", d.Game.HistorySize)
	v.SetDefault("game.minWinners", d.Game.MinWinners)
}

// Read parses the file at path on top of the defaults. TRIPOT_* env vars
// override file values (game.minWinners -> TRIPOT_GAME_MINWINNERS).
func Read(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("tripot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

func Load() {
	c, err := Read("config/config.yaml")
	if err != nil {
		log.Fatal("Failed to load config", "err", err)
	}
	C = c
}
