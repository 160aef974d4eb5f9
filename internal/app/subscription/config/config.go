package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	configName = "enrollment"
	configType = "yaml"
	envPrefix  = "ENROLLMENT"
)

const (
	spannerProjectKey  = "spanner.project_id"
	spannerInstanceKey = "spanner.instance_id"
	spannerDatabaseKey = "spanner.database_id"
	spannerEmulatorKey = "spanner.emulator_host"

	redisURLKey = "redis.url"

	walletBaseURLKey = "wallet.base_url"
	walletTimeoutKey = "wallet.timeout"
	breakerFailKey   = "wallet.breaker_failures"
	breakerOpenKey   = "wallet.breaker_timeout"

	lockTTLKey    = "lock.ttl"
	lockPrefixKey = "lock.prefix"

	requiresSpouseKey  = "rules.requires_spouse_for_children"
	maxChildrenKey     = "rules.max_children"
	allowedSourcesKey  = "rules.allowed_payment_sources"
	companyPercentKey  = "rules.company_contribution_percentage"
	defaultCurrencyKey = "rules.default_currency"
)

type SpannerConfig struct {
	ProjectID    string
	InstanceID   string
	DatabaseID   string
	EmulatorHost string
}

func (c SpannerConfig) ProjectPath() string {
	return "projects/" + c.ProjectID
}

func (c SpannerConfig) InstancePath() string {
	return fmt.Sprintf("projects/%s/instances/%s", c.ProjectID, c.InstanceID)
}

// DatabasePath is the fully qualified database name used by the Spanner clients.
func (c SpannerConfig) DatabasePath() string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", c.ProjectID, c.InstanceID, c.DatabaseID)
}

// ClientOptions points Spanner data and admin clients at the emulator when one
// is configured. Production uses default credentials, so nothing is returned.
func (c SpannerConfig) ClientOptions() []option.ClientOption {
	if c.EmulatorHost == "" {
		return nil
	}
	// gRPC endpoints take host:port only
	endpoint := strings.TrimPrefix(strings.TrimPrefix(c.EmulatorHost, "http://"), "https://")
	return []option.ClientOption{
		option.WithEndpoint(endpoint),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

type RedisConfig struct {
	URL string
}

type WalletConfig struct {
	BaseURL string
	Timeout time.Duration
	// Consecutive failures before the breaker opens, and how long it stays open.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type LockConfig struct {
	TTL    time.Duration
	Prefix string
}

// Config is the runtime configuration of the enrollment service.
type Config struct {
	Spanner         SpannerConfig
	Redis           RedisConfig
	Wallet          WalletConfig
	Lock            LockConfig
	Rules           domain.BusinessRules
	DefaultCurrency string
}

// Load reads an optional enrollment.yaml and ENROLLMENT_* environment
// overrides on top of the defaults. A config file set explicitly on v with
// SetConfigFile must exist.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	if v.ConfigFileUsed() == "" {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/enrollment")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(spannerEmulatorKey, "ENROLLMENT_SPANNER_EMULATOR_HOST", "SPANNER_EMULATOR_HOST"); err != nil {
		return Config{}, fmt.Errorf("bind emulator env: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	sources, err := parseSources(v.GetStringSlice(allowedSourcesKey))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Spanner: SpannerConfig{
			ProjectID:    v.GetString(spannerProjectKey),
			InstanceID:   v.GetString(spannerInstanceKey),
			DatabaseID:   v.GetString(spannerDatabaseKey),
			EmulatorHost: v.GetString(spannerEmulatorKey),
		},
		Redis: RedisConfig{URL: v.GetString(redisURLKey)},
		Wallet: WalletConfig{
			BaseURL:         v.GetString(walletBaseURLKey),
			Timeout:         v.GetDuration(walletTimeoutKey),
			BreakerFailures: v.GetUint32(breakerFailKey),
			BreakerTimeout:  v.GetDuration(breakerOpenKey),
		},
		Lock: LockConfig{
			TTL:    v.GetDuration(lockTTLKey),
			Prefix: v.GetString(lockPrefixKey),
		},
		Rules: domain.BusinessRules{
			RequiresSpouseForChildren:     v.GetBool(requiresSpouseKey),
			MaxChildren:                   v.GetInt(maxChildrenKey),
			AllowedPaymentSources:         sources,
			CompanyContributionPercentage: v.GetFloat64(companyPercentKey),
		},
		DefaultCurrency: v.GetString(defaultCurrencyKey),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(spannerProjectKey, "test-project")
	v.SetDefault(spannerInstanceKey, "test-instance")
	v.SetDefault(spannerDatabaseKey, "enrollment")
	v.SetDefault(redisURLKey, "redis://localhost:6379/0")
	v.SetDefault(walletBaseURLKey, "http://localhost:8081")
	v.SetDefault(walletTimeoutKey, 5*time.Second)
	v.SetDefault(breakerFailKey, 5)
	v.SetDefault(breakerOpenKey, 30*time.Second)
	v.SetDefault(lockTTLKey, 30*time.Second)
	v.SetDefault(lockPrefixKey, "enrollment:lock:")
	v.SetDefault(requiresSpouseKey, false)
	v.SetDefault(maxChildrenKey, domain.MaxChildrenPerSubscription)
	v.SetDefault(allowedSourcesKey, []string{
		domain.SourceCompany.String(),
		domain.SourceEmployeeWallet.String(),
		domain.SourceHybrid.String(),
	})
	v.SetDefault(companyPercentKey, 100.0)
	v.SetDefault(defaultCurrencyKey, domain.DefaultCurrency)
}

// parseSources accepts a YAML list as well as the comma separated form used
// in environment variables.
func parseSources(raw []string) ([]domain.AllocationSource, error) {
	var sources []domain.AllocationSource
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			name := strings.ToUpper(strings.TrimSpace(part))
			if name == "" {
				continue
			}
			source := domain.AllocationSource(name)
			if !source.IsValid() {
				return nil, fmt.Errorf("%s: unknown payment source %q", allowedSourcesKey, part)
			}
			sources = append(sources, source)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%s: at least one payment source is required", allowedSourcesKey)
	}
	return sources, nil
}

func (c Config) validate() error {
	var problems []string
	if c.Spanner.ProjectID == "" || c.Spanner.InstanceID == "" || c.Spanner.DatabaseID == "" {
		problems = append(problems, "spanner project, instance and database are required")
	}
	if c.Lock.TTL <= 0 {
		problems = append(problems, "lock.ttl must be positive")
	}
	if c.Wallet.Timeout <= 0 {
		problems = append(problems, "wallet.timeout must be positive")
	}
	if c.Wallet.BreakerFailures == 0 || c.Wallet.BreakerTimeout <= 0 {
		problems = append(problems, "wallet breaker failures and timeout must be positive")
	}
	if c.Rules.MaxChildren < 0 || c.Rules.MaxChildren > domain.MaxChildrenPerSubscription {
		problems = append(problems, fmt.Sprintf("rules.max_children must be between 0 and %d", domain.MaxChildrenPerSubscription))
	}
	if p := c.Rules.CompanyContributionPercentage; p < 0 || p > 100 {
		problems = append(problems, "rules.company_contribution_percentage must be between 0 and 100")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
