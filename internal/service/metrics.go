// metrics.go — доменные Prometheus-метрики DocuKeeper.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы подписи при регистрации.
const (
	signOutcomeSigned   = "signed"
	signOutcomeUnsigned = "unsigned"
	signOutcomeFailed   = "failed"
)

var (
	documentsRegisteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dk_documents_registered_total",
		Help: "Количество зарегистрированных версий документов по режиму (new, update).",
	}, []string{"mode"})

	signaturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dk_signatures_total",
		Help: "Результаты подписи отпечатков (signed, unsigned, failed).",
	}, []string{"outcome"})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dk_verifications_total",
		Help: "Результаты сверки документов (valid, invalid).",
	}, []string{"result"})

	blobDeleteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dk_blob_delete_failures_total",
		Help: "Количество неудачных удалений объектов из хранилища.",
	})

	directoryCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dk_directory_cache_hits_total",
		Help: "Попадания в кэш email пользователей.",
	})
	directoryCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dk_directory_cache_misses_total",
		Help: "Промахи кэша email пользователей.",
	})
)
