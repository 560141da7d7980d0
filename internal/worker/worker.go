package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coursebay/backend/pkg/email"
	"github.com/coursebay/backend/pkg/queue"
	"github.com/coursebay/backend/pkg/storage"
)

// purgeInterval is how often expired password-reset codes are swept.
const purgeInterval = time.Hour

// ResetPurger deletes expired password-reset codes.
type ResetPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Processor consumes email and video-processing jobs from the Redis queue.
type Processor struct {
	sender *email.Sender
	s3     *storage.S3
	queue  *queue.Queue
	resets ResetPurger
	logger *zap.Logger
}

// NewProcessor creates a background job processor. sender and s3 may be nil
// when the corresponding credentials are absent; their jobs then fail and
// retry until the DLQ.
func NewProcessor(sender *email.Sender, s3 *storage.S3, q *queue.Queue, resets ResetPurger, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sender: sender, s3: s3, queue: q, resets: resets, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEmail:
		return p.processEmail(ctx, job)
	case queue.JobTypeVideoProcess:
		return p.processVideo(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processEmail(ctx context.Context, job *queue.Job) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.sender == nil {
		return email.ErrNotConfigured
	}
	if err := p.sender.Send(ctx, payload.RecipientEmail, payload.Subject, payload.BodyHTML); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	p.logger.Info("email sent",
		zap.String("email_type", payload.EmailType),
		zap.String("recipient", payload.RecipientEmail))
	return nil
}

// processVideo verifies the uploaded lesson video exists in S3. Transcoding
// happens in the storage pipeline; the job confirms the object landed.
func (p *Processor) processVideo(ctx context.Context, job *queue.Job) error {
	var payload queue.VideoProcessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.s3 == nil {
		return fmt.Errorf("s3 not configured")
	}
	head, err := p.s3.HeadObject(ctx, p.s3.VideosBucket(), payload.VideoKey)
	if err != nil {
		return fmt.Errorf("head video object: %w", err)
	}
	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}
	p.logger.Info("lesson video processed",
		zap.String("lesson_id", payload.LessonID.String()),
		zap.String("video_key", payload.VideoKey),
		zap.Int64("size_bytes", size))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, origin, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job, origin); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// RunPurge sweeps expired password-reset codes on an interval.
func (p *Processor) RunPurge(ctx context.Context) {
	if p.resets == nil {
		return
	}
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.resets.PurgeExpired(ctx)
			if err != nil {
				p.logger.Warn("purge expired reset codes failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Info("purged expired reset codes", zap.Int64("count", n))
			}
		}
	}
}
