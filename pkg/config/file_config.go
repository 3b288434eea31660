// File-based configuration overlay.
//
// Adapted from pkg/config/anchor_config.go's YAML-with-env-substitution
// loader: the same ${VAR_NAME} / ${VAR_NAME:-default} substitution and
// Duration wrapper, rescoped from anchor/gas/batch settings to the
// validator node's own pipeline settings (scheduler overload thresholds,
// orchestrator retry/timeout tunables, state-sync concurrency limits).

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is a YAML overlay applied on top of the env-derived Config.
// Any field left at its zero value is not applied, so a partial override
// file only touches what it names.
type FileConfig struct {
	Environment string `yaml:"environment"`

	Node       NodeSettings       `yaml:"node"`
	Database   FileDatabaseSettings `yaml:"database"`
	Security   FileSecuritySettings `yaml:"security"`
	Monitoring FileMonitoringSettings `yaml:"monitoring"`
	Scheduler  SchedulerSettings  `yaml:"scheduler"`
	Orchestrator OrchestratorSettings `yaml:"orchestrator"`
	StateSync  StateSyncSettings  `yaml:"state_sync"`
}

type NodeSettings struct {
	ValidatorID        string   `yaml:"validator_id"`
	ValidatorRole      string   `yaml:"validator_role"`
	NetworkName        string   `yaml:"network_name"`
	ChainID            string   `yaml:"chain_id"`
	P2PListenAddr      string   `yaml:"p2p_listen_addr"`
	PeerAddrs          []string `yaml:"peer_addrs"`
	DataDir            string   `yaml:"data_dir"`
	ObjectStoreBackend string   `yaml:"object_store_backend"`
}

type FileDatabaseSettings struct {
	URL            string   `yaml:"url"`
	MaxConnections int      `yaml:"max_connections"`
	MinConnections int      `yaml:"min_connections"`
	Required       bool     `yaml:"required"`
}

type FileSecuritySettings struct {
	TLSEnabled  bool     `yaml:"tls_enabled"`
	JWTSecret   string   `yaml:"jwt_secret"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type FileMonitoringSettings struct {
	MetricsAddr string `yaml:"metrics_addr"`
	HealthAddr  string `yaml:"health_addr"`
	LogLevel    string `yaml:"log_level"`
}

type SchedulerSettings struct {
	MaxQueueLength          int      `yaml:"max_queue_length"`
	MaxOldestPendingAge     Duration `yaml:"max_oldest_pending_age"`
	MaxPerSenderOutstanding int      `yaml:"max_per_sender_outstanding"`
}

type OrchestratorSettings struct {
	EnableEarlyValidation            bool     `yaml:"enable_early_validation"`
	FinalityTimeout                  Duration `yaml:"finality_timeout"`
	LocalExecutionTimeout            Duration `yaml:"local_execution_timeout"`
	RecoveryTimeout                  Duration `yaml:"recovery_timeout"`
	MaxBackgroundRetries             int      `yaml:"max_background_retries"`
	BackoffMin                       Duration `yaml:"backoff_min"`
	BackoffMax                       Duration `yaml:"backoff_max"`
	LiveInputEnforcementFromAttempt  int      `yaml:"live_input_enforcement_from_attempt"`
	MaxDuplicateSubmissions          int      `yaml:"max_duplicate_submissions"`
}

type StateSyncSettings struct {
	TickInterval                 Duration `yaml:"tick_interval"`
	Timeout                      Duration `yaml:"timeout"`
	HeaderDownloadConcurrency    int      `yaml:"header_download_concurrency"`
	ContentCheckpointConcurrency int      `yaml:"content_checkpoint_concurrency"`
	ContentTxConcurrency         int      `yaml:"content_tx_concurrency"`
	ContentTimeout               Duration `yaml:"content_timeout"`
	RequeueDelay                 Duration `yaml:"requeue_delay"`
	NotifyPeersEvery             int      `yaml:"notify_peers_every"`
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadFileConfig loads a YAML overlay from path, substituting ${VAR_NAME}
// references against the process environment first.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var fc FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// ApplyFile overlays non-zero fields from a FileConfig on top of cfg. Env
// vars (via Load) set the baseline; a file passed here overrides them,
// letting operators check a reviewed node.yaml into version control while
// secrets stay in the environment.
func (c *Config) ApplyFile(fc *FileConfig) {
	if fc.Node.ValidatorID != "" {
		c.ValidatorID = fc.Node.ValidatorID
	}
	if fc.Node.ValidatorRole != "" {
		c.ValidatorRole = fc.Node.ValidatorRole
	}
	if fc.Node.NetworkName != "" {
		c.NetworkName = fc.Node.NetworkName
	}
	if fc.Node.ChainID != "" {
		c.ChainID = fc.Node.ChainID
	}
	if fc.Node.P2PListenAddr != "" {
		c.P2PListenAddr = fc.Node.P2PListenAddr
	}
	if len(fc.Node.PeerAddrs) > 0 {
		c.PeerAddrs = fc.Node.PeerAddrs
	}
	if fc.Node.DataDir != "" {
		c.DataDir = fc.Node.DataDir
	}
	if fc.Node.ObjectStoreBackend != "" {
		c.ObjectStoreBackend = fc.Node.ObjectStoreBackend
	}

	if fc.Database.URL != "" {
		c.DatabaseURL = fc.Database.URL
	}
	if fc.Database.MaxConnections != 0 {
		c.DatabaseMaxConns = fc.Database.MaxConnections
	}
	if fc.Database.MinConnections != 0 {
		c.DatabaseMinConns = fc.Database.MinConnections
	}
	if fc.Database.Required {
		c.DatabaseRequired = true
	}

	if fc.Security.JWTSecret != "" {
		c.JWTSecret = fc.Security.JWTSecret
	}
	if len(fc.Security.CORSOrigins) > 0 {
		c.CORSOrigins = fc.Security.CORSOrigins
	}
	if fc.Security.TLSEnabled {
		c.TLSEnabled = true
	}

	if fc.Monitoring.MetricsAddr != "" {
		c.MetricsAddr = fc.Monitoring.MetricsAddr
	}
	if fc.Monitoring.HealthAddr != "" {
		c.HealthAddr = fc.Monitoring.HealthAddr
	}
	if fc.Monitoring.LogLevel != "" {
		c.LogLevel = fc.Monitoring.LogLevel
	}

	s := fc.Scheduler
	if s.MaxQueueLength != 0 {
		c.Overload.MaxQueueLength = s.MaxQueueLength
	}
	if s.MaxOldestPendingAge != 0 {
		c.Overload.MaxOldestPendingAge = s.MaxOldestPendingAge.Duration()
	}
	if s.MaxPerSenderOutstanding != 0 {
		c.Overload.MaxPerSenderOutstanding = s.MaxPerSenderOutstanding
	}

	o := fc.Orchestrator
	if o.EnableEarlyValidation {
		c.Orchestrator.EnableEarlyValidation = true
	}
	if o.FinalityTimeout != 0 {
		c.Orchestrator.FinalityTimeout = o.FinalityTimeout.Duration()
	}
	if o.LocalExecutionTimeout != 0 {
		c.Orchestrator.LocalExecutionTimeout = o.LocalExecutionTimeout.Duration()
	}
	if o.RecoveryTimeout != 0 {
		c.Orchestrator.RecoveryTimeout = o.RecoveryTimeout.Duration()
	}
	if o.MaxBackgroundRetries != 0 {
		c.Orchestrator.MaxBackgroundRetries = o.MaxBackgroundRetries
	}
	if o.BackoffMin != 0 {
		c.Orchestrator.BackoffMin = o.BackoffMin.Duration()
	}
	if o.BackoffMax != 0 {
		c.Orchestrator.BackoffMax = o.BackoffMax.Duration()
	}
	if o.LiveInputEnforcementFromAttempt != 0 {
		c.Orchestrator.LiveInputEnforcementFromAttempt = o.LiveInputEnforcementFromAttempt
	}
	if o.MaxDuplicateSubmissions != 0 {
		c.Orchestrator.MaxDuplicateSubmissions = o.MaxDuplicateSubmissions
	}

	ss := fc.StateSync
	if ss.TickInterval != 0 {
		c.StateSync.TickInterval = ss.TickInterval.Duration()
	}
	if ss.Timeout != 0 {
		c.StateSync.Timeout = ss.Timeout.Duration()
	}
	if ss.HeaderDownloadConcurrency != 0 {
		c.StateSync.HeaderDownloadConcurrency = ss.HeaderDownloadConcurrency
	}
	if ss.ContentCheckpointConcurrency != 0 {
		c.StateSync.ContentCheckpointConcurrency = ss.ContentCheckpointConcurrency
	}
	if ss.ContentTxConcurrency != 0 {
		c.StateSync.ContentTxConcurrency = ss.ContentTxConcurrency
	}
	if ss.ContentTimeout != 0 {
		c.StateSync.ContentTimeout = ss.ContentTimeout.Duration()
	}
	if ss.RequeueDelay != 0 {
		c.StateSync.RequeueDelay = ss.RequeueDelay.Duration()
	}
	if ss.NotifyPeersEvery != 0 {
		c.StateSync.NotifyPeersEvery = ss.NotifyPeersEvery
	}
}

// LoadWithFileOverlay runs Load() and, if path is non-empty, applies a YAML
// overlay from path on top of it.
func LoadWithFileOverlay(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}
	fc, err := LoadFileConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyFile(fc)
	return cfg, nil
}
