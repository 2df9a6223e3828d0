package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"persona-gateway/middleware/guard/domain"
)

// policyFile é o formato do POLICY_FILE. Campos ausentes mantêm o padrão.
type policyFile struct {
	Quotas      map[int]quotaFile `yaml:"quotas"`
	TierPeriod  time.Duration     `yaml:"tier_period"`
	GlobalBurst *windowFile       `yaml:"global_burst"`
	IPHourly    *windowFile       `yaml:"ip_hourly"`
	IPDaily     *windowFile       `yaml:"ip_daily"`
	Bot         *botFile          `yaml:"bot"`
}

type quotaFile struct {
	Messages  int  `yaml:"messages"`
	Sites     int  `yaml:"sites"`
	Unlimited bool `yaml:"unlimited"`
}

type windowFile struct {
	Capacity int           `yaml:"capacity"`
	Period   time.Duration `yaml:"period"`
}

type botFile struct {
	ClassifyThreshold int `yaml:"classify_threshold"`
	BlockThreshold    int `yaml:"block_threshold"`
}

func (w *windowFile) apply(dst *domain.Window) {
	if w == nil {
		return
	}
	if w.Capacity > 0 {
		dst.Capacity = w.Capacity
	}
	if w.Period > 0 {
		dst.Period = w.Period
	}
}

func (f policyFile) apply(p domain.Policy) (domain.Policy, error) {
	if len(f.Quotas) > 0 {
		quotas := make(domain.QuotaTable, len(p.Quotas))
		for t, q := range p.Quotas {
			quotas[t] = q
		}
		for t, q := range f.Quotas {
			tier := domain.Tier(t)
			if !tier.Valid() {
				return p, domain.NewPolicyError(fmt.Sprintf("quotas.%d", t), "unknown tier")
			}
			quotas[tier] = domain.Quota(q)
		}
		p.Quotas = quotas
	}
	if f.TierPeriod > 0 {
		p.TierPeriod = f.TierPeriod
	}
	f.GlobalBurst.apply(&p.GlobalBurst)
	f.IPHourly.apply(&p.IPHourly)
	f.IPDaily.apply(&p.IPDaily)
	if f.Bot != nil {
		if f.Bot.ClassifyThreshold > 0 {
			p.Bot.ClassifyThreshold = f.Bot.ClassifyThreshold
		}
		if f.Bot.BlockThreshold > 0 {
			p.Bot.BlockThreshold = f.Bot.BlockThreshold
		}
	}
	return p, nil
}

// buildPolicy parte do padrão, aplica o arquivo (se houver) e os flags.
func buildPolicy(cfg config) (domain.Policy, error) {
	p := domain.DefaultPolicy()

	if cfg.PolicyFile != "" {
		raw, err := os.ReadFile(cfg.PolicyFile)
		if err != nil {
			return p, fmt.Errorf("read policy file: %w", err)
		}
		var f policyFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return p, fmt.Errorf("parse policy file %s: %w", cfg.PolicyFile, err)
		}
		if p, err = f.apply(p); err != nil {
			return p, err
		}
	}

	p.StoreTimeout = cfg.StoreTimeout
	p.DevBypass = cfg.DevBypass
	p.FailOpen = cfg.FailOpen

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}
