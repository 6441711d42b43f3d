package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"classbook/internal/logger"
	"classbook/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey       = "emails"
	failedQueueKey = "emails:failed"
	maxTries       = 3
)

const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateWaitlisted       = "booking_waitlisted"
	TemplatePromoted         = "booking_promoted"
	TemplateCancelled        = "booking_cancelled"
	TemplateSessionCancelled = "session_cancelled"
)

var ErrUnknownTemplate = errors.New("unknown email template")

type Job struct {
	To       string    `json:"to"`
	Name     string    `json:"name"`
	Template string    `json:"template"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Tries    int       `json:"tries"`
	Created  time.Time `json:"created"`
}

// BookingEmail carries what the booking templates render.
type BookingEmail struct {
	To               string
	MemberName       string
	ClassName        string
	Location         string
	StartsAt         time.Time
	WaitlistPosition int
	Reason           string
	LateCancellation bool
}

type Config struct {
	From     string
	FromName string
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	// Location is the zone times are shown in. Defaults to UTC.
	Location *time.Location
}

type Service struct {
	redis      *redis.Client
	cfg        Config
	send       func(Job) error
	retryDelay time.Duration
}

func New(rdb *redis.Client, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{redis: rdb, cfg: cfg, retryDelay: 5 * time.Second}
	s.send = s.sendNow
	return s
}

func (s *Service) Send(ctx context.Context, to, name, subject, body string) error {
	return s.enqueue(ctx, Job{To: to, Name: name, Subject: subject, Body: body})
}

func (s *Service) enqueue(ctx context.Context, job Job) error {
	job.Tries = 0
	job.Created = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal email job: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		logger.Errorf("Failed to queue email to %s: %v", job.To, err)
		metrics.RecordEmail(job.Template, "queue_failed")
		return err
	}

	metrics.RecordEmail(job.Template, "queued")
	logger.Infof("Email queued: %s to %s", job.Subject, job.To)
	return nil
}

// SendBookingEmail renders one of the booking templates and queues it.
func (s *Service) SendBookingEmail(ctx context.Context, template string, e BookingEmail) error {
	subject, body, err := s.render(template, e)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, Job{To: e.To, Name: e.MemberName, Template: template, Subject: subject, Body: body})
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Email worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Email worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad email data: %v", err)
		return
	}

	job.Tries++
	logger.Debugf("Sending email to %s (attempt %d)", job.To, job.Tries)
	if err := s.send(job); err != nil {
		logger.Errorf("Failed to send email to %s: %v", job.To, err)

		if job.Tries < maxTries {
			if s.retryDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(s.retryDelay):
				}
			}
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
			logger.Infof("Retrying email to %s (attempt %d)", job.To, job.Tries+1)
		} else {
			logger.Errorf("Email to %s failed after %d attempts", job.To, maxTries)
			metrics.RecordEmail(job.Template, "failed")
			s.saveFailed(job, err)
		}
		return
	}

	metrics.RecordEmail(job.Template, "sent")
	logger.Infof("Email sent successfully to %s", job.To)
}

func (s *Service) sendNow(job Job) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.cfg.FromName, s.cfg.From)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.cfg.SMTPUser != "" && s.cfg.SMTPPass != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	}

	addr := s.cfg.SMTPHost + ":" + s.cfg.SMTPPort
	return smtp.SendMail(addr, auth, s.cfg.From, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(job Job, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, data)
	logger.Errorf("Email moved to failed queue: %s", job.To)
}

func (s *Service) QueueLength(ctx context.Context) (int64, error) {
	return s.redis.LLen(ctx, queueKey).Result()
}
