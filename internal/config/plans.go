package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Plan maps a subscription plan code to the provider price backing it.
type Plan struct {
	Code     string `mapstructure:"code"`
	PriceID  string `mapstructure:"priceId"`
	Interval string `mapstructure:"interval"`
}

type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans"`
}

// Find returns the plan with the given code.
func (c PlanCatalog) Find(code string) (Plan, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, plan := range c.Plans {
		if strings.EqualFold(plan.Code, code) {
			return plan, true
		}
	}
	return Plan{}, false
}

// PeriodEnd returns the end of one billing interval starting at start.
func (p Plan) PeriodEnd(start time.Time) time.Time {
	if strings.EqualFold(strings.TrimSpace(p.Interval), "year") {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []Plan{
			{Code: "monthly", PriceID: strings.TrimSpace(os.Getenv("STRIPE_PRICE_MONTHLY")), Interval: "month"},
			{Code: "yearly", PriceID: strings.TrimSpace(os.Getenv("STRIPE_PRICE_YEARLY")), Interval: "year"},
		},
	}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewPlanCatalogHolder loads plans.yml from the standard locations and keeps
// it current while the process runs.
func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	return LoadPlanCatalog(log, "/etc/dentaldesk", ".")
}

func LoadPlanCatalog(log *zap.Logger, paths ...string) (*PlanCatalogHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.plans")

	v := viper.New()
	v.SetConfigName("plans")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("DENTALDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}

	var catalog PlanCatalog
	if fromFile {
		if err := v.Unmarshal(&catalog); err != nil {
			return nil, err
		}
	} else {
		catalog = DefaultPlanCatalog()
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	if fromFile {
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanCatalog
			if err := v.Unmarshal(&updated); err != nil {
				log.Warn("plan catalog reload failed", zap.String("file", e.Name), zap.Error(err))
				return
			}
			if err := validatePlanCatalog(updated); err != nil {
				log.Warn("invalid plan catalog ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("plan catalog reloaded", zap.String("file", e.Name), zap.Int("plans", len(updated.Plans)))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticPlanCatalog wraps a fixed catalog, mainly for tests.
func NewStaticPlanCatalog(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	if h == nil {
		return PlanCatalog{}
	}
	catalog, _ := h.current.Load().(PlanCatalog)
	return catalog
}

func validatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	seen := map[string]struct{}{}
	for _, plan := range catalog.Plans {
		code := strings.ToLower(strings.TrimSpace(plan.Code))
		if code == "" {
			return errors.New("plan code is required")
		}
		if _, ok := seen[code]; ok {
			return fmt.Errorf("duplicate plan %q", code)
		}
		seen[code] = struct{}{}
		switch strings.ToLower(strings.TrimSpace(plan.Interval)) {
		case "month", "year":
		default:
			return fmt.Errorf("plan %q has unsupported interval %q", code, plan.Interval)
		}
	}
	return nil
}
