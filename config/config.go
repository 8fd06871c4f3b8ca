package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"

	"github.com/hanyusok/docplus-dev/internal/domain"
	"github.com/hanyusok/docplus-dev/internal/postgres"
	"github.com/hanyusok/docplus-dev/pkg/logger"
)

const defaultPath = "./config/config.yaml"

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"` // пусто: все
}

func (h HTTP) Validate() error {
	if h.Addr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}

type GRPC struct {
	Addr        string        `yaml:"addr"`       // пусто: admin API выключен
	AdminToken  string        `yaml:"adminToken"` // пусто: без проверки (только для dev)
	CallTimeout time.Duration `yaml:"callTimeout"`
}

type WS struct {
	WriteWait      time.Duration `yaml:"writeWait"`
	PongWait       time.Duration `yaml:"pongWait"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	SendBuffer     int           `yaml:"sendBuffer"`
}

func (w WS) Validate() error {
	if w.MaxMessageSize < 0 || w.SendBuffer < 0 {
		return errors.New("ws.maxMessageSize and ws.sendBuffer must be >= 0")
	}
	return nil
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // session-server
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

func (l Logging) Validate() error {
	if _, err := logger.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch l.Backend {
	case "", string(logger.BackendStd), string(logger.BackendZap):
	default:
		return fmt.Errorf("logging.backend must be std or zap, got %q", l.Backend)
	}
	return nil
}

func (l Logging) ToLoggerConfig() logger.Config {
	lvl, _ := logger.ParseLevel(l.Level)
	return logger.Config{
		Env:       logger.Env(l.Env),
		Service:   l.Service,
		Version:   l.Version,
		Backend:   logger.Backend(l.Backend),
		Level:     lvl,
		AddSource: l.AddSource,
		Debug:     l.Debug,
	}
}

// Postgres опционален: без DSN пользователи берутся из directory.users, настройки из rooms/waitingRoom.
type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	StatementTimeout  time.Duration `yaml:"statementTimeout"`
	ConnectTimeout    time.Duration `yaml:"connectTimeout"`
}

func (p Postgres) Enabled() bool { return strings.TrimSpace(p.DSN) != "" }

func (p Postgres) Validate() error {
	if p.MinConns > p.MaxConns && p.MaxConns > 0 {
		return errors.New("postgres.minConns must be <= maxConns")
	}
	return nil
}

func (p Postgres) ToPGConfig() postgres.Config {
	return postgres.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
		StatementTimeout:  p.StatementTimeout,
		ConnectTimeout:    p.ConnectTimeout,
	}
}

type Auth struct {
	Mode          string        `yaml:"mode"`          // jwt|trust
	Alg           string        `yaml:"alg"`           // RS256|HS256
	PublicKeyPath string        `yaml:"publicKeyPath"` // для RS256
	HMACSecret    string        `yaml:"hmacSecret"`    // для HS256, лучше через ${ENV}
	Issuer        string        `yaml:"issuer"`        // по желанию
	Audience      string        `yaml:"audience"`      // по желанию
	ClockSkew     time.Duration `yaml:"clockSkew"`     // напр. 30s
}

func (a Auth) Validate() error {
	switch a.Mode {
	case "trust":
		return nil
	case "jwt":
	default:
		return fmt.Errorf("auth.mode must be jwt or trust, got %q", a.Mode)
	}

	switch a.Alg {
	case "RS256":
		if a.PublicKeyPath == "" {
			return errors.New("auth.publicKeyPath is required for RS256")
		}
	case "HS256":
		if len(a.HMACSecret) < 32 {
			return errors.New("auth.hmacSecret must be at least 32 bytes for HS256")
		}
	default:
		return fmt.Errorf("auth.alg must be RS256 or HS256, got %q", a.Alg)
	}
	if a.ClockSkew < 0 || a.ClockSkew > time.Minute {
		return errors.New("auth.clockSkew must be in [0..1m]")
	}
	return nil
}

// Rooms: значения по умолчанию для сессий без строки в "Session".
type Rooms struct {
	MaxParticipants    int           `yaml:"maxParticipants"`
	AllowChat          bool          `yaml:"allowChat"`
	AllowScreenSharing bool          `yaml:"allowScreenSharing"`
	AllowRecording     bool          `yaml:"allowRecording"`
	EmptyGrace         time.Duration `yaml:"emptyGrace"`
	SweepEvery         time.Duration `yaml:"sweepEvery"`
}

func (r Rooms) Validate() error {
	if r.MaxParticipants < 1 {
		return errors.New("rooms.maxParticipants must be >= 1")
	}
	if r.EmptyGrace < 0 || r.SweepEvery < 0 {
		return errors.New("rooms.emptyGrace and rooms.sweepEvery must be >= 0")
	}
	return nil
}

type WaitingRoom struct {
	Enabled            bool          `yaml:"enabled"`
	AvgSessionDuration time.Duration `yaml:"avgSessionDuration"`
	CustomMessage      string        `yaml:"customMessage"`
	AllowVideo         bool          `yaml:"allowVideo"`
	AllowAudio         bool          `yaml:"allowAudio"`
}

func (w WaitingRoom) Validate() error {
	if w.AvgSessionDuration <= 0 {
		return errors.New("waitingRoom.avgSessionDuration must be > 0")
	}
	return nil
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

func (s ICEServer) Validate() error {
	if len(s.URLs) == 0 {
		return errors.New("iceServers[].urls is required")
	}
	for _, u := range s.URLs {
		switch {
		case strings.HasPrefix(u, "stun:"):
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			if s.Username == "" || s.Credential == "" {
				return fmt.Errorf("iceServers: %s needs username and credential", u)
			}
		default:
			return fmt.Errorf("iceServers: unsupported url %q", u)
		}
	}
	return nil
}

func (s ICEServer) ToWebRTC() webrtc.ICEServer {
	out := webrtc.ICEServer{URLs: s.URLs}
	if s.Username != "" {
		out.Username = s.Username
		out.Credential = s.Credential
	}
	return out
}

type StaticUser struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"` // patient|doctor|admin
}

type Directory struct {
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	CacheSize int           `yaml:"cacheSize"`
	Users     []StaticUser  `yaml:"users"`
}

func (d Directory) Validate() error {
	seen := make(map[string]struct{}, len(d.Users))
	for _, u := range d.Users {
		if strings.TrimSpace(u.ID) == "" {
			return errors.New("directory.users[].id is required")
		}
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("directory.users: duplicate id %q", u.ID)
		}
		seen[u.ID] = struct{}{}
	}
	return nil
}

func (d Directory) StaticUsers() []domain.User {
	out := make([]domain.User, 0, len(d.Users))
	for _, u := range d.Users {
		name := u.Name
		if name == "" {
			name = u.ID
		}
		out = append(out, domain.User{ID: u.ID, DisplayName: name, Role: domain.ParseRole(u.Role)})
	}
	return out
}

type Config struct {
	HTTP        HTTP        `yaml:"http"`
	GRPC        GRPC        `yaml:"grpc"`
	WS          WS          `yaml:"ws"`
	Logging     Logging     `yaml:"logging"`
	Postgres    Postgres    `yaml:"postgres"`
	Auth        Auth        `yaml:"auth"`
	Rooms       Rooms       `yaml:"rooms"`
	WaitingRoom WaitingRoom `yaml:"waitingRoom"`
	ICEServers  []ICEServer `yaml:"iceServers"`
	Directory   Directory   `yaml:"directory"`
}

// Default: конфиг для dev; YAML перекрывает только указанные поля.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		GRPC: GRPC{Addr: ":9090", CallTimeout: 10 * time.Second},
		Logging: Logging{
			Service: "session-server",
			Version: "v0.1.0",
			Level:   "info",
		},
		Auth: Auth{Mode: "jwt", Alg: "RS256", ClockSkew: 30 * time.Second},
		Rooms: Rooms{
			MaxParticipants:    10,
			AllowChat:          true,
			AllowScreenSharing: true,
			AllowRecording:     true,
			EmptyGrace:         5 * time.Minute,
			SweepEvery:         time.Minute,
		},
		WaitingRoom: WaitingRoom{AvgSessionDuration: 15 * time.Minute},
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		Directory: Directory{CacheTTL: time.Minute, CacheSize: 10_000},
	}
}

func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.WS.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Rooms.Validate(); err != nil {
		return err
	}
	if err := c.WaitingRoom.Validate(); err != nil {
		return err
	}
	for _, s := range c.ICEServers {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return c.Directory.Validate()
}

// RoomDefaults собирает domain.RoomSettings из rooms + waitingRoom.
func (c *Config) RoomDefaults() domain.RoomSettings {
	return domain.RoomSettings{
		AllowChat:          c.Rooms.AllowChat,
		AllowScreenSharing: c.Rooms.AllowScreenSharing,
		AllowRecording:     c.Rooms.AllowRecording,
		WaitingRoomEnabled: c.WaitingRoom.Enabled,
		AllowVideo:         c.WaitingRoom.AllowVideo,
		AllowAudio:         c.WaitingRoom.AllowAudio,
		CustomMessage:      c.WaitingRoom.CustomMessage,
		MaxParticipants:    c.Rooms.MaxParticipants,
		AvgSessionDuration: c.WaitingRoom.AvgSessionDuration,
	}
}

func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		out = append(out, s.ToWebRTC())
	}
	return out
}

// LoadConfig: путь из аргумента, затем CONFIG_PATH, затем ./config/config.yaml.
// ${VAR} в файле подставляются из окружения.
func LoadConfig(path ...string) (*Config, error) {
	filename := os.Getenv("CONFIG_PATH")
	if len(path) > 0 && strings.TrimSpace(path[0]) != "" {
		filename = path[0]
	}
	if filename == "" {
		filename = defaultPath
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
