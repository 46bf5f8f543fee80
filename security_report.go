package authcore

import "time"

// SecurityReport summarises the security posture of a built engine. It carries no key
// material.
type SecurityReport struct {
	SigningAlgorithm    string               `json:"signing_algorithm"`
	Issuer              string               `json:"issuer"`
	AudienceChecked     bool                 `json:"audience_checked"`
	AccessTTL           time.Duration        `json:"access_ttl"`
	RefreshTTL          time.Duration        `json:"refresh_ttl"`
	Leeway              time.Duration        `json:"leeway"`
	ActiveCacheTTL      time.Duration        `json:"active_cache_ttl"`
	StoreTimeout        time.Duration        `json:"store_timeout"`
	Argon2              PasswordConfigReport `json:"argon2"`
	LoginThrottleActive bool                 `json:"login_throttle_active"`
	IPThrottleActive    bool                 `json:"ip_throttle_active"`
	AuditEnabled        bool                 `json:"audit_enabled"`
	MetricsEnabled      bool                 `json:"metrics_enabled"`
	// LintCodes lists the Config.Lint findings for the running configuration.
	LintCodes []string `json:"lint_codes"`
}

type PasswordConfigReport struct {
	Memory      uint32 `json:"memory_kb"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"salt_length"`
	KeyLength   uint32 `json:"key_length"`
}

// SecurityReport returns the report for the engine's configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return SecurityReport{
		SigningAlgorithm: cfg.JWT.SigningMethod,
		Issuer:           cfg.JWT.Issuer,
		AudienceChecked:  cfg.JWT.Audience != "",
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		Leeway:           cfg.JWT.Leeway,
		ActiveCacheTTL:   cfg.Session.ActiveCacheTTL,
		StoreTimeout:     cfg.StoreTimeout,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		LoginThrottleActive: e.limiter != nil,
		IPThrottleActive:    e.limiter != nil && cfg.Security.EnableIPThrottle,
		AuditEnabled:        cfg.Audit.Enabled,
		MetricsEnabled:      cfg.Metrics.Enabled,
		LintCodes:           cfg.Lint().Codes(),
	}
}
