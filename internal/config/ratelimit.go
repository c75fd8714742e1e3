package config

import (
	"errors"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RateLimitPolicy is the token bucket shape applied to receipt submissions.
type RateLimitPolicy struct {
	Rate  float64
	Burst int
}

// RateLimitPolicyHolder serves the current policy. The policy comes from an
// optional ratelimit.yml and is swapped atomically when that file changes.
type RateLimitPolicyHolder struct {
	current atomic.Value // holds RateLimitPolicy
}

func NewRateLimitPolicyHolder(cfg Config, log *zap.Logger) (*RateLimitPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.ratelimit")

	v := viper.New()
	if path := strings.TrimSpace(cfg.RateLimit.ConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ratelimit")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/receipts")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RECEIPTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("submit.rate", cfg.RateLimit.SubmitRate)
	v.SetDefault("submit.burst", cfg.RateLimit.SubmitBurst)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
	}

	policy := readPolicy(v)
	if err := validateRateLimitPolicy(policy); err != nil {
		return nil, err
	}

	holder := &RateLimitPolicyHolder{}
	holder.current.Store(policy)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := readPolicy(v)
			if err := validateRateLimitPolicy(updated); err != nil {
				log.Warn("invalid rate limit policy ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("rate limit policy reloaded",
				zap.String("file", e.Name),
				zap.Float64("rate", updated.Rate),
				zap.Int("burst", updated.Burst),
			)
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticRateLimitPolicyHolder returns a holder that never reloads.
func NewStaticRateLimitPolicyHolder(policy RateLimitPolicy) *RateLimitPolicyHolder {
	holder := &RateLimitPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *RateLimitPolicyHolder) Get() RateLimitPolicy {
	return h.current.Load().(RateLimitPolicy)
}

func readPolicy(v *viper.Viper) RateLimitPolicy {
	return RateLimitPolicy{
		Rate:  v.GetFloat64("submit.rate"),
		Burst: v.GetInt("submit.burst"),
	}
}

func validateRateLimitPolicy(p RateLimitPolicy) error {
	if p.Rate <= 0 {
		return errors.New("submit.rate must be positive")
	}
	if p.Burst <= 0 {
		return errors.New("submit.burst must be positive")
	}
	return nil
}
