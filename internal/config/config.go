package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	MetricsPort int
	GinMode     string
	CORSOrigins []string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	TicketTTL   time.Duration

	SolanaRPCURL   string
	TreasuryWallet string
	RequiredWallet string

	EntryFailProb  float64
	TxDelayScale   float64
	DailyBonus     int64
	FrameHz        int
	PublishEvery   int
	FieldWidth     float64
	FieldHeight    float64
	Opponents      int
	ClickRate      float64
	ClickBurst     int
	APIRatePerSec  float64
	APIBurst       int
	SessionLinger  time.Duration
	MaxLiveSession int

	Modes Modes

	TournamentsEnabled bool
	Tournaments        []TournamentSpec
}

func mustEnv(key string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		log.Printf("missing env: %s, using default", key)
		return ""
	}
	return val
}

func normalizeDatabaseURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	// Accept `psql 'postgresql://...'` snippets copied from provider consoles.
	if i := strings.Index(s, "postgresql://"); i >= 0 {
		s = s[i:]
	} else if i := strings.Index(s, "postgres://"); i >= 0 {
		s = s[i:]
	}

	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		s = strings.Trim(s[:i], `"'`)
	}

	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	q := u.Query()
	// pgx does not need channel_binding and may treat it as a runtime param.
	q.Del("channel_binding")
	u.RawQuery = q.Encode()
	return u.String()
}

// NormalizeRedisURL extracts the URL from `redis-cli -u redis://...` style
// strings and accepts bare host:port.
func NormalizeRedisURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	if i := strings.Index(s, "rediss://"); i >= 0 {
		s = s[i:]
	} else if i := strings.Index(s, "redis://"); i >= 0 {
		s = s[i:]
	}

	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		s = strings.Trim(s[:i], `"'`)
	}
	if s != "" && !strings.Contains(s, "://") {
		s = "redis://" + s
	}
	return s
}

func envInt64(key string, def int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64(key string, def float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if val == "" {
		return def
	}
	switch val {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func envString(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func Load() (Config, error) {
	cfg := Config{
		Port:        int(envInt64("PORT", 8080)),
		MetricsPort: int(envInt64("METRICS_PORT", 9090)),
		GinMode:     strings.ToLower(envString("GIN_MODE", "debug")),
		CORSOrigins: parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),

		DatabaseURL: normalizeDatabaseURL(os.Getenv("DATABASE_URL")),
		RedisURL:    NormalizeRedisURL(os.Getenv("REDIS_URL")),
		JWTSecret:   mustEnv("JWT_SECRET"),
		TicketTTL:   envDuration("TICKET_TTL", 15*time.Minute),

		SolanaRPCURL:   envString("SOLANA_RPC_URL", "https://api.testnet.solana.com"),
		TreasuryWallet: envString("TREASURY_WALLET", "11111111111111111111111111111112"),
		RequiredWallet: envString("REQUIRED_WALLET", "Backpack"),

		EntryFailProb:  envFloat64("ENTRY_FAIL_PROB", 0.05),
		TxDelayScale:   envFloat64("TX_DELAY_SCALE", 1.0),
		DailyBonus:     envInt64("DAILY_BONUS", 50),
		FrameHz:        int(envInt64("FRAME_HZ", 60)),
		PublishEvery:   int(envInt64("PUBLISH_EVERY_FRAMES", 2)),
		FieldWidth:     envFloat64("FIELD_WIDTH", 1280),
		FieldHeight:    envFloat64("FIELD_HEIGHT", 720),
		Opponents:      int(envInt64("OPPONENTS", 4)),
		ClickRate:      envFloat64("CLICK_RATE_PER_SEC", 12),
		ClickBurst:     int(envInt64("CLICK_BURST", 6)),
		APIRatePerSec:  envFloat64("API_RATE_PER_SEC", 10),
		APIBurst:       int(envInt64("API_BURST", 20)),
		SessionLinger:  envDuration("SESSION_LINGER", 2*time.Minute),
		MaxLiveSession: int(envInt64("MAX_LIVE_SESSIONS", 500)),

		Modes: DefaultModes(),

		TournamentsEnabled: envBool("TOURNAMENTS_ENABLED", true),
		Tournaments:        DefaultTournaments(),
	}

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return Config{}, fmt.Errorf("JWT_SECRET is required in release mode")
		}
		secret, err := randomSecret()
		if err != nil {
			return Config{}, fmt.Errorf("generate JWT secret: %w", err)
		}
		log.Printf("Warning: JWT_SECRET not set, using a random per-process secret; tickets will not survive a restart")
		cfg.JWTSecret = secret
	}

	// Optional per-mode overrides, e.g.
	//   MODES_JSON={"blitz":{"entry_fee":5,"max_reward":40}}
	if raw := strings.TrimSpace(os.Getenv("MODES_JSON")); raw != "" {
		if err := applyModeOverrides(cfg.Modes, raw); err != nil {
			return Config{}, fmt.Errorf("MODES_JSON: %w", err)
		}
	}
	// FREE_MODES=practice,blitz marks modes exempt from wallet and balance checks.
	if raw, ok := os.LookupEnv("FREE_MODES"); ok {
		free := map[string]bool{}
		for _, id := range parseCSV(raw) {
			free[strings.ToLower(id)] = true
		}
		for _, mode := range cfg.Modes.List() {
			mode.FreePlay = free[string(mode.ID)]
			cfg.Modes.set(mode)
		}
	}

	if cfg.EntryFailProb < 0 || cfg.EntryFailProb > 1 {
		return Config{}, fmt.Errorf("ENTRY_FAIL_PROB must be 0..1")
	}
	if cfg.TxDelayScale < 0 {
		return Config{}, fmt.Errorf("TX_DELAY_SCALE must be >= 0")
	}
	if cfg.FrameHz < 1 || cfg.FrameHz > 240 {
		return Config{}, fmt.Errorf("FRAME_HZ must be 1..240")
	}
	if cfg.PublishEvery < 1 {
		cfg.PublishEvery = 1
	}
	if cfg.FieldWidth < 100 || cfg.FieldHeight < 100 {
		return Config{}, fmt.Errorf("FIELD_WIDTH/FIELD_HEIGHT must be >= 100")
	}
	if cfg.Opponents < 0 {
		cfg.Opponents = 0
	}
	if cfg.Opponents > 20 {
		cfg.Opponents = 20
	}
	for _, mode := range cfg.Modes.List() {
		if err := mode.Validate(); err != nil {
			return Config{}, err
		}
	}
	for _, t := range cfg.Tournaments {
		if err := t.Validate(cfg.Modes); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// modeOverride carries the tunable subset of Mode; zero values keep the default.
type modeOverride struct {
	EntryFee    *int64   `json:"entry_fee"`
	MinReward   *int64   `json:"min_reward"`
	MaxReward   *int64   `json:"max_reward"`
	DurationSec *int     `json:"duration_sec"`
	TimeCapSec  *int     `json:"time_cap_sec"`
	SpawnMs     *int64   `json:"spawn_interval_ms"`
	SpeedMin    *float64 `json:"speed_min"`
	SpeedMax    *float64 `json:"speed_max"`
	FreePlay    *bool    `json:"free_play"`
}

func applyModeOverrides(modes Modes, raw string) error {
	var m map[string]modeOverride
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return err
	}
	for id, o := range m {
		mode, ok := modes.Get(ModeID(id))
		if !ok {
			return fmt.Errorf("unknown mode %q", id)
		}
		if o.EntryFee != nil {
			mode.EntryFee = *o.EntryFee
		}
		if o.MinReward != nil {
			mode.MinReward = *o.MinReward
		}
		if o.MaxReward != nil {
			mode.MaxReward = *o.MaxReward
		}
		if o.DurationSec != nil {
			mode.DurationSec = *o.DurationSec
		}
		if o.TimeCapSec != nil {
			mode.TimeCapSec = *o.TimeCapSec
		}
		if o.SpawnMs != nil {
			mode.SpawnInterval = time.Duration(*o.SpawnMs) * time.Millisecond
		}
		if o.SpeedMin != nil {
			mode.SpeedMin = *o.SpeedMin
		}
		if o.SpeedMax != nil {
			mode.SpeedMax = *o.SpeedMax
		}
		if o.FreePlay != nil {
			mode.FreePlay = *o.FreePlay
		}
		modes.set(mode)
	}
	return nil
}

func parseCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
