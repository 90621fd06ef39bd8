// Package config loads the subnet's environment+toml configuration and
// watches the toml file for hot-reloadable fields via fsnotify, layered as
// flags-then-file-then-env.
package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
)

// Config is the full set of environment/file-driven knobs for both the
// validator and the miner binaries. Not every field is meaningful to both.
type Config struct {
	RedisHost string `toml:"redis_host"`
	RedisPort int    `toml:"redis_port"`

	TaskMaxResults int    `toml:"task_max_results"`
	DojoAPIKey     string `toml:"dojo_api_key"`

	TaskDeadline       time.Duration `toml:"-"`
	TaskDeadlineSecs   int64         `toml:"task_deadline_secs"`
	DojoTaskMonitoring time.Duration `toml:"-"`
	DojoTaskMonitoringSecs int64     `toml:"dojo_task_monitoring_secs"`

	SimNormalRespProb float64 `toml:"sim_normal_resp_prob"`
	SimNoRespProb     float64 `toml:"sim_no_resp_prob"`
	SimTimeoutProb    float64 `toml:"sim_timeout_prob"`
	SimMinTimeout     time.Duration `toml:"-"`
	SimMinTimeoutSecs int64         `toml:"sim_min_timeout_secs"`
	SimMaxTimeout     time.Duration `toml:"-"`
	SimMaxTimeoutSecs int64         `toml:"sim_max_timeout_secs"`

	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`

	// ValidatorHotkeys is loaded from the toml file only; neither binary
	// reads it (the monitor passes its own Hotkey to GetUnexpiredTasks).
	ValidatorHotkeys []string `toml:"validator_hotkeys"`

	// The remaining fields are ambient wiring for the two binaries (database
	// connection, worker-platform base URL, RPC listen addresses).
	DatabaseDSN          string `toml:"database_dsn"`
	WorkerPlatformURL    string `toml:"worker_platform_url"`
	ValidatorRPCListen   string `toml:"validator_rpc_listen"`
	MinerRPCListen       string `toml:"miner_rpc_listen"`
	ThreeDGenListen      string `toml:"threed_gen_listen"`
	Hotkey               string `toml:"hotkey"`
	Coldkey              string `toml:"coldkey"`
}

// Default returns the subnet's built-in defaults, overridable by
// environment variables and then by an optional toml file.
func Default() Config {
	return Config{
		RedisHost:              "localhost",
		RedisPort:              6379,
		TaskMaxResults:         1,
		TaskDeadline:           8 * time.Hour,
		TaskDeadlineSecs:       8 * 60 * 60,
		DojoTaskMonitoring:     5 * time.Minute,
		DojoTaskMonitoringSecs: 5 * 60,
		SimNormalRespProb:      0.8,
		SimNoRespProb:          0.1,
		SimTimeoutProb:         0.1,
		SimMinTimeout:          5 * time.Second,
		SimMinTimeoutSecs:      5,
		SimMaxTimeout:          10 * time.Second,
		SimMaxTimeoutSecs:      10,
		LogLevel:               "info",
		DatabaseDSN:            "host=localhost user=postgres dbname=dojo sslmode=disable",
		ValidatorRPCListen:     ":8645",
		MinerRPCListen:         ":8646",
		ThreeDGenListen:        ":8647",
	}
}

// FromEnv overlays environment variables onto base.
func FromEnv(base Config) Config {
	c := base
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v, ok := envInt("REDIS_PORT"); ok {
		c.RedisPort = v
	}
	if v, ok := envInt("TASK_MAX_RESULTS"); ok {
		c.TaskMaxResults = v
	}
	if v := os.Getenv("DOJO_API_KEY"); v != "" {
		c.DojoAPIKey = v
	}
	if v, ok := envInt("TASK_DEADLINE"); ok {
		c.TaskDeadlineSecs = int64(v)
	}
	if v, ok := envInt("DOJO_TASK_MONITORING"); ok {
		c.DojoTaskMonitoringSecs = int64(v)
	}
	if v, ok := envFloat("SIM_NORMAL_RESP_PROB"); ok {
		c.SimNormalRespProb = v
	}
	if v, ok := envFloat("SIM_NO_RESP_PROB"); ok {
		c.SimNoRespProb = v
	}
	if v, ok := envFloat("SIM_TIMEOUT_PROB"); ok {
		c.SimTimeoutProb = v
	}
	if v, ok := envInt("SIM_MIN_TIMEOUT"); ok {
		c.SimMinTimeoutSecs = int64(v)
	}
	if v, ok := envInt("SIM_MAX_TIMEOUT"); ok {
		c.SimMaxTimeoutSecs = int64(v)
	}
	if v := os.Getenv("DOJO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DOJO_LOG_PATH"); v != "" {
		c.LogPath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseDSN = v
	}
	if v := os.Getenv("WORKER_PLATFORM_URL"); v != "" {
		c.WorkerPlatformURL = v
	}
	if v := os.Getenv("HOTKEY"); v != "" {
		c.Hotkey = v
	}
	if v := os.Getenv("COLDKEY"); v != "" {
		c.Coldkey = v
	}
	resolveDurations(&c)
	return c
}

// FromFile overlays a toml file onto base. Missing file is not an error —
// the file layer is optional.
func FromFile(base Config, path string) (Config, error) {
	c := base
	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, err
	}
	resolveDurations(&c)
	return c, nil
}

func resolveDurations(c *Config) {
	c.TaskDeadline = time.Duration(c.TaskDeadlineSecs) * time.Second
	c.DojoTaskMonitoring = time.Duration(c.DojoTaskMonitoringSecs) * time.Second
	c.SimMinTimeout = time.Duration(c.SimMinTimeoutSecs) * time.Second
	c.SimMaxTimeout = time.Duration(c.SimMaxTimeoutSecs) * time.Second
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("config: ignoring unparseable int env var", "key", key, "value", v)
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("config: ignoring unparseable float env var", "key", key, "value", v)
		return 0, false
	}
	return f, true
}

// Watcher reloads the toml file layer each time fsnotify reports a write or
// create on the file. Callers read the current snapshot via Current(),
// which is swapped only after a reload has parsed successfully.
type Watcher struct {
	mu      sync.RWMutex
	current Config
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching path (if non-empty) for changes and returns a
// Watcher seeded with initial.
func NewWatcher(initial Config, path string) (*Watcher, error) {
	w := &Watcher{current: initial, path: path}
	if path == "" {
		return w, nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.RLock()
			base := w.current
			w.mu.RUnlock()
			updated, err := FromFile(base, w.path)
			if err != nil {
				log.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
				continue
			}
			w.mu.Lock()
			w.current = updated
			w.mu.Unlock()
			log.Info("config: reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config: watcher error", "err", err)
		}
	}
}

// Current returns the most recently loaded configuration snapshot.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the underlying fsnotify watcher, if any.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
