package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chordring/internal/logger"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// StabilizerConfig holds the wall-clock periods of the four stabilizer
// tasks that keep routing state correct under churn.
type StabilizerConfig struct {
	UpdateFingerTable     time.Duration `yaml:"updateFingerTable"`
	StabilizePredecessors time.Duration `yaml:"stabilizePredecessors"`
	StabilizeSuccessors   time.Duration `yaml:"stabilizeSuccessors"`
	ReJoin                time.Duration `yaml:"reJoin"`
}

// Route53RegisterConfig configures self-registration of this node's
// address as an SRV record in a Route53-hosted zone.
type Route53RegisterConfig struct {
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
}

// CoreDNSRegisterConfig configures self-registration against an
// etcd-backed CoreDNS zone.
type CoreDNSRegisterConfig struct {
	EtcdEndpoints []string `yaml:"etcdEndpoints"`
	BasePath      string   `yaml:"basePath"`
	Domain        string   `yaml:"domain"`
}

// RegisterConfig configures optional self-registration so other nodes can
// discover this one as a seed; orthogonal to resolving a seed to join.
type RegisterConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Type    string                `yaml:"type"` // "route53" or "coredns"
	TTL     int64                 `yaml:"ttl"`
	Route53 Route53RegisterConfig `yaml:"route53"`
	CoreDNS CoreDNSRegisterConfig `yaml:"coredns"`
}

// BootstrapConfig configures how this node resolves a seed peer to join.
// Mode "init" means this node starts its own ring rather than joining one.
type BootstrapConfig struct {
	Mode     string         `yaml:"mode"` // "static", "dns", "init"
	DNSName  string         `yaml:"dnsName"`
	Resolver string         `yaml:"resolver"`
	SRV      bool           `yaml:"srv"`
	Service  string         `yaml:"service"`
	Proto    string         `yaml:"proto"`
	Port     int            `yaml:"port"`
	Peers    []string       `yaml:"peers"`
	Register RegisterConfig `yaml:"register"`
}

// DHTConfig covers the identifier space and ring-maintenance parameters
// for a single ring participant.
type DHTConfig struct {
	IDBits            int              `yaml:"idBits"`
	Mode              string           `yaml:"mode"` // "public" or "private", picks the advertised interface
	SuccessorListSize int              `yaml:"successorListSize"`
	RPCTimeout        time.Duration    `yaml:"rpcTimeout"`
	Stabilizer        StabilizerConfig `yaml:"stabilizer"`
	Bootstrap         BootstrapConfig  `yaml:"bootstrap"`
}

type NodeConfig struct {
	Id   string `yaml:"id"`
	Bind string `yaml:"bind"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	DHT       DHTConfig       `yaml:"dht"`
	Node      NodeConfig      `yaml:"node"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig loads the configuration from a YAML file at the given path.
//
// This function performs only syntactic parsing of the YAML file. To
// validate the configuration structure, call cfg.ValidateConfig() after
// loading.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Supported overrides:
//
//	NODE_ID, NODE_BIND, NODE_HOST, NODE_PORT
//	BOOTSTRAP_MODE, BOOTSTRAP_DNSNAME, BOOTSTRAP_SRV, BOOTSTRAP_PORT, BOOTSTRAP_PEERS
//	REGISTER_ENABLED, REGISTER_TYPE, REGISTER_TTL
//	TRACE_ENABLED, TRACE_EXPORTER, TRACE_ENDPOINT
//	LOGGER_ENABLED, LOGGER_LEVEL, LOGGER_ENCODING, LOGGER_MODE, LOGGER_FILE_PATH
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Node.Id = v
	}
	if v := os.Getenv("NODE_BIND"); v != "" {
		cfg.Node.Bind = v
	} else if cfg.Node.Bind == "" {
		cfg.Node.Bind = "0.0.0.0"
	}
	if v := os.Getenv("NODE_HOST"); v != "" {
		cfg.Node.Host = v
	}
	if v := os.Getenv("NODE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Node.Port = port
		}
	}

	if v := os.Getenv("BOOTSTRAP_MODE"); v != "" {
		cfg.DHT.Bootstrap.Mode = v
	}
	if v := os.Getenv("BOOTSTRAP_DNSNAME"); v != "" {
		cfg.DHT.Bootstrap.DNSName = v
	}
	if v := os.Getenv("BOOTSTRAP_SRV"); v != "" {
		cfg.DHT.Bootstrap.SRV = parseBool(v)
	}
	if v := os.Getenv("BOOTSTRAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DHT.Bootstrap.Port = port
		}
	}
	if v := os.Getenv("BOOTSTRAP_PEERS"); v != "" {
		cfg.DHT.Bootstrap.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("REGISTER_ENABLED"); v != "" {
		cfg.DHT.Bootstrap.Register.Enabled = parseBool(v)
	}
	if v := os.Getenv("REGISTER_TYPE"); v != "" {
		cfg.DHT.Bootstrap.Register.Type = v
	}
	if v := os.Getenv("REGISTER_TTL"); v != "" {
		if ttl, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DHT.Bootstrap.Register.TTL = ttl
		}
	}

	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		cfg.Telemetry.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACE_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}

	if v := os.Getenv("LOGGER_ENABLED"); v != "" {
		cfg.Logger.Active = parseBool(v)
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}

// ValidateConfig performs structural validation of the loaded
// configuration, accumulating every issue found rather than failing on the
// first one.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.DHT.IDBits <= 0 {
		errs = append(errs, "dht.idBits must be > 0")
	}
	switch cfg.DHT.Mode {
	case "public", "private":
	default:
		errs = append(errs, fmt.Sprintf("invalid dht.mode: %s", cfg.DHT.Mode))
	}
	if cfg.DHT.SuccessorListSize <= 0 {
		errs = append(errs, "dht.successorListSize must be > 0")
	}
	if cfg.DHT.RPCTimeout <= 0 {
		errs = append(errs, "dht.rpcTimeout must be > 0")
	}
	if cfg.DHT.Stabilizer.UpdateFingerTable <= 0 {
		errs = append(errs, "dht.stabilizer.updateFingerTable must be > 0")
	}
	if cfg.DHT.Stabilizer.StabilizePredecessors <= 0 {
		errs = append(errs, "dht.stabilizer.stabilizePredecessors must be > 0")
	}
	if cfg.DHT.Stabilizer.StabilizeSuccessors <= 0 {
		errs = append(errs, "dht.stabilizer.stabilizeSuccessors must be > 0")
	}
	if cfg.DHT.Stabilizer.ReJoin <= 0 {
		errs = append(errs, "dht.stabilizer.reJoin must be > 0")
	}

	b := cfg.DHT.Bootstrap
	switch b.Mode {
	case "dns":
		if b.DNSName == "" {
			errs = append(errs, "dht.bootstrap.dnsName is required in mode=dns")
		}
		if !b.SRV && b.Port <= 0 {
			errs = append(errs, "dht.bootstrap.port must be > 0 when using A/AAAA (srv=false)")
		}
	case "static":
		for _, p := range b.Peers {
			if _, _, err := net.SplitHostPort(p); err != nil {
				errs = append(errs, fmt.Sprintf("invalid peer address %q in dht.bootstrap.peers: %v", p, err))
			}
		}
	case "init":
		// first node of the ring, no extra constraint
	default:
		errs = append(errs, fmt.Sprintf("invalid dht.bootstrap.mode: %s (must be dns, static or init)", b.Mode))
	}
	if b.Register.Enabled {
		switch b.Register.Type {
		case "route53":
			if b.Register.Route53.HostedZoneID == "" {
				errs = append(errs, "dht.bootstrap.register.route53.hostedZoneId is required when register.enabled=true")
			}
			if b.Register.Route53.DomainSuffix == "" {
				errs = append(errs, "dht.bootstrap.register.route53.domainSuffix is required when register.enabled=true")
			}
		case "coredns":
			if len(b.Register.CoreDNS.EtcdEndpoints) == 0 {
				errs = append(errs, "dht.bootstrap.register.coredns.etcdEndpoints is required when register.enabled=true")
			}
		default:
			errs = append(errs, fmt.Sprintf("invalid dht.bootstrap.register.type: %s", b.Register.Type))
		}
		if b.Register.TTL <= 0 {
			errs = append(errs, "dht.bootstrap.register.ttl must be > 0 when register.enabled=true")
		}
	}

	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
		if cfg.Telemetry.Tracing.Exporter == "otlp" && cfg.Telemetry.Tracing.Endpoint == "" {
			errs = append(errs, "telemetry.tracing.endpoint is required for the otlp exporter")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig prints the loaded configuration at DEBUG level, useful for
// verifying that the configuration file parsed the way the operator
// expected.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("loaded configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),
		logger.F("logger.file.path", cfg.Logger.File.Path),

		logger.F("dht.idBits", cfg.DHT.IDBits),
		logger.F("dht.mode", cfg.DHT.Mode),
		logger.F("dht.successorListSize", cfg.DHT.SuccessorListSize),
		logger.F("dht.rpcTimeout", cfg.DHT.RPCTimeout.String()),
		logger.F("dht.stabilizer.updateFingerTable", cfg.DHT.Stabilizer.UpdateFingerTable.String()),
		logger.F("dht.stabilizer.stabilizePredecessors", cfg.DHT.Stabilizer.StabilizePredecessors.String()),
		logger.F("dht.stabilizer.stabilizeSuccessors", cfg.DHT.Stabilizer.StabilizeSuccessors.String()),
		logger.F("dht.stabilizer.reJoin", cfg.DHT.Stabilizer.ReJoin.String()),

		logger.F("dht.bootstrap.mode", cfg.DHT.Bootstrap.Mode),
		logger.F("dht.bootstrap.dnsName", cfg.DHT.Bootstrap.DNSName),
		logger.F("dht.bootstrap.srv", cfg.DHT.Bootstrap.SRV),
		logger.F("dht.bootstrap.port", cfg.DHT.Bootstrap.Port),
		logger.F("dht.bootstrap.peers", cfg.DHT.Bootstrap.Peers),
		logger.F("dht.bootstrap.register.enabled", cfg.DHT.Bootstrap.Register.Enabled),
		logger.F("dht.bootstrap.register.type", cfg.DHT.Bootstrap.Register.Type),

		logger.F("node.id", cfg.Node.Id),
		logger.F("node.bind", cfg.Node.Bind),
		logger.F("node.host", cfg.Node.Host),
		logger.F("node.port", cfg.Node.Port),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
		logger.F("telemetry.tracing.endpoint", cfg.Telemetry.Tracing.Endpoint),
	)
}
