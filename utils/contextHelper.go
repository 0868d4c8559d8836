package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/petroeval_backend/appctx"
)

var (
	ContextKeyCaseId        = appctx.ContextKeyCaseId
	ContextKeyCalculationId = appctx.ContextKeyCalculationId
	ContextKeyWorkerId      = appctx.ContextKeyWorkerId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetCaseIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCaseId)
}

func GetCalculationIdFromContext(ctx context.Context) (uint, bool) {
	return appctx.GetUint(ctx, ContextKeyCalculationId)
}

func GetWorkerIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyWorkerId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCaseIdInContext(ctx context.Context, caseId string) context.Context {
	return appctx.Set(ctx, ContextKeyCaseId, caseId)
}

func SetCalculationIdInContext(ctx context.Context, calculationId uint) context.Context {
	return appctx.Set(ctx, ContextKeyCalculationId, calculationId)
}

func SetWorkerIdInContext(ctx context.Context, workerId string) context.Context {
	return appctx.Set(ctx, ContextKeyWorkerId, workerId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
