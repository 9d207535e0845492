package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// orderingOps — операции движка порядка по таблице, режиму и результату.
	orderingOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontdesk_ordering_operations_total",
			Help: "Операции перенумерации и перемещения display_order.",
		},
		[]string{"table", "op", "result"},
	)

	// schemaDDL — DDL-операции над колонками ответов.
	schemaDDL = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontdesk_schema_ddl_total",
			Help: "DDL-операции над колонками ответов q_<slug>.",
		},
		[]string{"op", "result"},
	)
)
