package vault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// decryptFailures is the observable integrity signal: a corrupted or
	// tampered credential is skipped for the caller but must never be
	// silent.
	decryptFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adops_vault_decrypt_failures_total",
		Help: "Stored credentials that failed envelope parsing or tag verification, by reason.",
	}, []string{"reason"})

	credentialsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adops_vault_credentials_stored_total",
		Help: "Successful credential store/refresh operations.",
	})
)
