package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
	// ConnectTimeout 启动时等待数据库就绪的总时长（指数退避重试 Ping）
	ConnectTimeout time.Duration
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NotifyConfig 通知投递配置
type NotifyConfig struct {
	Transport   string // http / redis / mqtt / log
	HTTPAddress string // 通知网关地址
	HTTPToken   string
	Stream      string // Redis Stream 名称
}

// MQTTConfig MQTT 配置（通知推送到移动端主题）
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string // 主题前缀，完整主题为 <prefix>/<tenant_id>/<user_id>
}

// MeasureConfig 测量任务引擎配置
type MeasureConfig struct {
	GraceMinutes    int           // 签到迟到宽限（分钟），租户设置优先
	GeofenceMeters  float64       // 签到地理围栏默认半径（米）
	LockTimeout     time.Duration // 测量单号分配的锁等待上限
	SettingsTTL     time.Duration // 租户设置缓存时长
	EscalationLimit int           // 升级通知并发上限
}

// Config slideboard-measure（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       struct {
		Level  string
		Format string
	}
	Notify  NotifyConfig
	MQTT    MQTTConfig
	Measure MeasureConfig
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// 关闭数据库时使用内存仓储（本地调试）
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "slideboard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "25"), 25)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)
	cfg.Database.ConnectTimeout = time.Duration(parseInt(getEnv("DB_CONNECT_TIMEOUT_SECONDS", "30"), 30)) * time.Second

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// 通知投递（默认只写日志）
	cfg.Notify.Transport = strings.ToLower(getEnv("NOTIFY_TRANSPORT", "log"))
	cfg.Notify.HTTPAddress = getEnv("NOTIFY_HTTP_ADDRESS", "http://localhost:8090")
	cfg.Notify.HTTPToken = getEnv("NOTIFY_HTTP_TOKEN", "")
	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "measure:notifications")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "slideboard-measure")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "slideboard/notifications")

	cfg.Measure.GraceMinutes = parseInt(getEnv("MEASURE_GRACE_MINUTES", "15"), 15)
	cfg.Measure.GeofenceMeters = parseFloat(getEnv("MEASURE_GEOFENCE_METERS", "500"), 500)
	cfg.Measure.LockTimeout = time.Duration(parseInt(getEnv("MEASURE_LOCK_TIMEOUT_MS", "5000"), 5000)) * time.Millisecond
	cfg.Measure.SettingsTTL = time.Duration(parseInt(getEnv("SETTINGS_CACHE_TTL_SECONDS", "300"), 300)) * time.Second
	cfg.Measure.EscalationLimit = parseInt(getEnv("MEASURE_ESCALATION_CONCURRENCY", "8"), 8)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
