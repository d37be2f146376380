package repository

import (
	domrepo "TruthGate/internal/domain/repository"
)

var (
	_ domrepo.CandleStore       = (*CHMarketStore)(nil)
	_ domrepo.OpportunityLog    = (*CHOpportunityLog)(nil)
	_ domrepo.EvaluationHistory = (*CHEvaluationHistory)(nil)
	_ domrepo.StateStore        = (*RedisStateStore)(nil)
)
