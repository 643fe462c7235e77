package service

import (
	"context"
	"strings"
	"sync/atomic"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/internal/validation"

	"golang.org/x/sync/errgroup"
)

type bulkOutcome int

const (
	bulkCreated bulkOutcome = iota
	bulkSkipped
	bulkFailed
)

type bulkCounts struct {
	success, failure, skipped int
}

// CreateBulkSettlements creates settlements for every seller in req and returns the
// finished job. Per-seller failures are counted on the job and never abort the batch.
func (s *SettlementService) CreateBulkSettlements(ctx context.Context, req *domain.BulkSettlementRequest, actor string) (*models.SettlementJob, error) {
	job, sellers, err := s.startBulk(ctx, req, actor)
	if err != nil {
		return nil, err
	}
	s.runBulk(ctx, job, sellers, req, actor)
	return s.jobs.Get(context.WithoutCancel(ctx), job.ID)
}

// StartBulkSettlements creates the job and runs the batch in the background.
func (s *SettlementService) StartBulkSettlements(ctx context.Context, req *domain.BulkSettlementRequest, actor string) (*models.SettlementJob, error) {
	job, sellers, err := s.startBulk(ctx, req, actor)
	if err != nil {
		return nil, err
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.runBulk(context.WithoutCancel(ctx), job, sellers, req, actor)
	}()
	return job, nil
}

func (s *SettlementService) startBulk(ctx context.Context, req *domain.BulkSettlementRequest, actor string) (*models.SettlementJob, []string, error) {
	if err := validation.ValidateBatch(s.policy, req, s.now()); err != nil {
		return nil, nil, err
	}
	if req.Currency == "" {
		req.Currency = s.opts.DefaultCurrency
	}
	req.Currency = strings.ToUpper(req.Currency)
	if !s.policy.SupportsCurrency(req.Currency) {
		return nil, nil, domain.NewValidationError(domain.CodeUnsupportedCurrency, "currency", "currency %s is not supported", req.Currency)
	}

	sellers := make([]string, 0, len(req.SellerIDs))
	seen := make(map[string]bool, len(req.SellerIDs))
	for _, id := range req.SellerIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sellers = append(sellers, id)
	}

	job, err := s.jobs.Start(ctx, len(sellers), req.BatchSize, req.PeriodStart, req.PeriodEnd, actor)
	if err != nil {
		return nil, nil, err
	}
	s.emitJob(ctx, events.SettlementBatchStarted, job, actor, map[string]interface{}{
		"total":      len(sellers),
		"batch_size": req.BatchSize,
	})
	s.recordAudit(ctx, "settlement_job", job.ID, "BULK_START", actor, nil, job, nil)
	return job, sellers, nil
}

func (s *SettlementService) runBulk(ctx context.Context, job *models.SettlementJob, sellers []string, req *domain.BulkSettlementRequest, actor string) {
	log := s.log.With().Str("job_id", job.ID).Logger()
	var total bulkCounts
	for start := 0; start < len(sellers); start += req.BatchSize {
		end := min(start+req.BatchSize, len(sellers))
		chunk := sellers[start:end]

		var success, failure, skipped atomic.Int32
		var g errgroup.Group
		g.SetLimit(len(chunk))
		for _, sellerID := range chunk {
			sellerID := sellerID
			g.Go(func() error {
				switch s.settleSeller(ctx, job.ID, sellerID, req, actor) {
				case bulkCreated:
					success.Add(1)
				case bulkSkipped:
					skipped.Add(1)
				default:
					failure.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		c := bulkCounts{int(success.Load()), int(failure.Load()), int(skipped.Load())}
		if err := s.jobs.Progress(ctx, job.ID, c.success, c.failure, c.skipped); err != nil {
			log.Error().Err(err).Msg("bulk settlement: progress update failed")
			s.finishBulk(ctx, job, actor, total, err)
			return
		}
		total.success += c.success
		total.failure += c.failure
		total.skipped += c.skipped
		log.Debug().Int("chunk_start", start).Int("success", c.success).Int("failure", c.failure).Msg("bulk settlement chunk done")
	}
	s.finishBulk(ctx, job, actor, total, nil)
}

// settleSeller never returns an error; every problem is a counted failure.
func (s *SettlementService) settleSeller(ctx context.Context, jobID, sellerID string, req *domain.BulkSettlementRequest, actor string) (out bulkOutcome) {
	log := s.log.With().Str("job_id", jobID).Str("seller_id", sellerID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("bulk settlement: seller panicked")
			out = bulkFailed
		}
	}()

	breakdown, err := s.calculator.Calculate(ctx, sellerID, req.Currency, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		log.Warn().Err(err).Msg("bulk settlement: calculation failed")
		return bulkFailed
	}
	if !breakdown.Net.IsPositive() {
		return bulkSkipped
	}
	_, err = s.CreateSettlement(ctx, &domain.CreateSettlementRequest{
		SellerID:        sellerID,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		Currency:        req.Currency,
		Notes:           "bulk job " + jobID,
		AmountBreakdown: breakdown,
	}, actor)
	if err != nil {
		log.Warn().Err(err).Str("code", domain.ErrorCode(err)).Msg("bulk settlement: create failed")
		return bulkFailed
	}
	return bulkCreated
}

func (s *SettlementService) finishBulk(ctx context.Context, job *models.SettlementJob, actor string, total bulkCounts, cause error) {
	log := s.log.With().Str("job_id", job.ID).Logger()
	status := domain.JobCompleted
	if cause == nil {
		if err := s.jobs.Complete(ctx, job.ID); err != nil {
			cause = err
		}
	}
	if cause != nil {
		status = domain.JobFailed
		if err := s.jobs.Fail(ctx, job.ID, cause); err != nil {
			log.Error().Err(err).Msg("bulk settlement: job state could not be recorded")
		}
	}
	job.Status = status

	log.Info().
		Str("status", string(status)).
		Int("success", total.success).
		Int("failure", total.failure).
		Int("skipped", total.skipped).
		Msg("bulk settlement finished")
	s.emitJob(ctx, events.SettlementBatchCompleted, job, actor, map[string]interface{}{
		"success": total.success,
		"failure": total.failure,
		"skipped": total.skipped,
	})
	s.recordAudit(ctx, "settlement_job", job.ID, "BULK_FINISH", actor, nil, map[string]interface{}{
		"status":  status,
		"success": total.success,
		"failure": total.failure,
		"skipped": total.skipped,
	}, nil)
}

func (s *SettlementService) emitJob(ctx context.Context, t events.Type, job *models.SettlementJob, actor string, data map[string]interface{}) {
	data["status"] = job.Status
	if err := s.publisher.Publish(ctx, events.Event{Type: t, AggregateID: job.ID, Actor: actor, Data: data}); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Str("event", string(t)).Msg("event publish failed")
	}
}
