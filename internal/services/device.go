package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/devicecode"
	"github.com/go-creditgate/creditgate/internal/models"
)

// DeviceAuthorization is the response payload for a new device flow.
type DeviceAuthorization struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int
	Interval                int
}

// DeviceService drives the device authorization flow on top of the
// device code store.
type DeviceService struct {
	codes   devicecode.Store
	config  *config.Config
	audit   *AuditService
	metrics core.Recorder
}

func NewDeviceService(
	codes devicecode.Store,
	cfg *config.Config,
	audit *AuditService,
	m core.Recorder,
) *DeviceService {
	return &DeviceService{
		codes:   codes,
		config:  cfg,
		audit:   audit,
		metrics: m,
	}
}

// Start issues a new device code pair for the requested scopes. Unknown
// scopes are dropped; an empty or fully unknown request falls back to
// the default scope set.
func (s *DeviceService) Start(ctx context.Context, scope string) (*DeviceAuthorization, error) {
	scopes := models.ParseScopes(scope)

	entry, err := s.codes.Issue(scopes)
	if err != nil {
		s.metrics.RecordDeviceCodeGenerated(false)
		return nil, err
	}
	s.metrics.RecordDeviceCodeGenerated(true)

	userCode := devicecode.FormatUserCode(entry.UserCode)
	verificationURI := s.config.BaseURL + "/device"

	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventDeviceCodeGenerated,
			ResourceType: models.ResourceDeviceCode,
			ResourceID:   userCode,
			Success:      true,
			Details: map[string]any{
				"scopes": models.JoinScopes(entry.Scopes),
			},
		})
	}

	return &DeviceAuthorization{
		DeviceCode:              entry.DeviceCode,
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURI + "?user_code=" + userCode,
		ExpiresIn:               entry.SecondsRemaining(),
		Interval:                entry.Interval,
	}, nil
}

// Inspect looks up a pending flow by user code so the verification page
// can show what the device is asking for. The device code itself is
// never returned.
func (s *DeviceService) Inspect(userCode string) (*devicecode.Entry, error) {
	return s.codes.Inspect(userCode)
}

// Approve binds an authenticated user to the pending flow identified by
// the user code. Approving an already approved flow again is a no-op;
// approving a consumed one fails.
func (s *DeviceService) Approve(ctx context.Context, userCode string, userID int64) error {
	err := s.codes.Authorize(userCode, userID)
	if err != nil {
		if s.audit != nil {
			s.audit.Log(ctx, AuditLogEntry{
				ActorUserID:  userID,
				EventType:    models.EventDeviceCodeAuthorized,
				ResourceType: models.ResourceDeviceCode,
				ResourceID:   devicecode.NormalizeUserCode(userCode),
				Success:      false,
				ErrorMessage: err.Error(),
			})
		}
		return err
	}

	s.metrics.RecordDeviceCodeAuthorized()
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:  userID,
			EventType:    models.EventDeviceCodeAuthorized,
			ResourceType: models.ResourceDeviceCode,
			ResourceID:   devicecode.NormalizeUserCode(userCode),
			Success:      true,
		})
	}
	return nil
}

// Consume redeems an authorized device code exactly once. The entry is
// removed on success so concurrent polls race for a single winner.
func (s *DeviceService) Consume(ctx context.Context, deviceCode string) (*devicecode.Entry, error) {
	entry, err := s.codes.Consume(deviceCode)
	if err != nil {
		switch {
		case errors.Is(err, devicecode.ErrAuthorizationPending):
			s.metrics.RecordDeviceCodeValidation("pending")
		case errors.Is(err, devicecode.ErrExpired):
			s.metrics.RecordDeviceCodeValidation("expired")
		case errors.Is(err, devicecode.ErrSlowDown):
			s.metrics.RecordDeviceCodeValidation("slow_down")
		default:
			s.metrics.RecordDeviceCodeValidation("invalid")
		}
		return nil, err
	}

	s.metrics.RecordDeviceCodeValidation("success")
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:  entry.UserID,
			EventType:    models.EventDeviceCodeConsumed,
			ResourceType: models.ResourceDeviceCode,
			ResourceID:   entry.UserCode,
			Success:      true,
		})
	}
	return entry, nil
}

// StartSweeper runs periodic eviction of expired device codes until the
// context is cancelled. It also refreshes the active code gauges.
func (s *DeviceService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.codes.Sweep(); n > 0 {
				log.Printf("[Device] Swept %d expired device codes", n)
			}
			total, pending := s.codes.Stats()
			s.metrics.SetActiveDeviceCodesCount(total, pending)
		}
	}
}
