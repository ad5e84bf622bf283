package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/smartpost/internal/notifications"
	apperrors "github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/logger"
	"github.com/charlesng35/smartpost/pkg/validator"
)

// Device commands.
const (
	CommandOpen  = "open"
	CommandClose = "close"
)

const placeholderCameraURL = "/static/placeholder.jpg"

// DeviceState is the reported state of a parcel box.
type DeviceState struct {
	DeviceID   string            `json:"device_id"`
	DoorState  string            `json:"door_state"`
	WeightG    int               `json:"weight_g"`
	LastUpdate time.Time         `json:"last_update_iso"`
	Cameras    map[string]string `json:"cameras"`
}

// CommandResult acknowledges a device command.
type CommandResult struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
	Message  string `json:"message"`
}

// DeviceService reports device state and accepts door commands. No hardware is attached
// yet, so state is a fixed stub.
type DeviceService struct {
	publisher Publisher
	now       func() time.Time
	log       *zap.Logger
}

// NewDeviceService constructs a DeviceService. publisher may be nil.
func NewDeviceService(publisher Publisher) *DeviceService {
	return &DeviceService{
		publisher: publisher,
		now:       time.Now,
		log:       logger.WithModule("devices"),
	}
}

// State returns the current state of deviceID.
func (s *DeviceService) State(_ context.Context, deviceID string) (*DeviceState, error) {
	deviceID, err := checkDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	return &DeviceState{
		DeviceID:   deviceID,
		DoorState:  "closed",
		WeightG:    0,
		LastUpdate: s.now().UTC(),
		Cameras: map[string]string{
			"cam1": placeholderCameraURL,
			"cam2": placeholderCameraURL,
			"cam3": placeholderCameraURL,
		},
	}, nil
}

// Command accepts an open or close command and announces it best-effort.
func (s *DeviceService) Command(ctx context.Context, actor, deviceID, command string) (*CommandResult, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, apperrors.ErrUnauthorized
	}
	deviceID, err := checkDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	command = strings.TrimSpace(command)
	if command != CommandOpen && command != CommandClose {
		return nil, apperrors.NewBadRequest("command must be 'open' or 'close'")
	}

	s.log.Info("command received",
		zap.String("user", actor),
		zap.String("device", deviceID),
		zap.String("command", command),
	)

	if s.publisher != nil {
		_, perr := s.publisher.PublishForActor(ctx, notifications.PublishInput{
			Type:     "device.command",
			Title:    fmt.Sprintf("Door %s requested", command),
			Body:     fmt.Sprintf("Command '%s' sent to %s.", command, deviceID),
			Severity: string(notifications.SeverityInfo),
			Actor:    actor,
			DeviceID: deviceID,
			Data:     map[string]any{"command": command},
		})
		if perr != nil {
			s.log.Warn("command notification failed", zap.String("device", deviceID), zap.Error(perr))
		}
	}

	return &CommandResult{
		DeviceID: deviceID,
		Command:  command,
		Message:  fmt.Sprintf("Command '%s' received for %s.", command, deviceID),
	}, nil
}

func checkDeviceID(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if !validator.IsIdentifier(deviceID) {
		return "", apperrors.NewBadRequest("device id is invalid")
	}
	return deviceID, nil
}
