package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/device"
)

// ----------------------------
// BLE Service
// ----------------------------

// BLEService is a discovered GATT service bound to the client that found it.
type BLEService struct {
	uuid   string
	svc    *ble.Service
	client ble.Client
	logger *logrus.Logger
}

func newService(svc *ble.Service, client ble.Client, logger *logrus.Logger) *BLEService {
	return &BLEService{
		uuid:   device.NormalizeUUID(svc.UUID.String()),
		svc:    svc,
		client: client,
		logger: logger,
	}
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) Characteristic(uuid string) (device.Characteristic, error) {
	for _, c := range s.svc.Characteristics {
		if device.EqualUUID(c.UUID.String(), uuid) {
			return &BLECharacteristic{uuid: device.NormalizeUUID(c.UUID.String()), char: c, client: s.client, logger: s.logger}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.uuid, uuid}}
}

// ----------------------------
// BLE Characteristic
// ----------------------------

// BLECharacteristic is a discovered characteristic.
type BLECharacteristic struct {
	uuid   string
	char   *ble.Characteristic
	client ble.Client
	logger *logrus.Logger
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

// Subscribe enables notifications. go-ble writes the client characteristic configuration
// descriptor and returns once the write is acknowledged.
func (c *BLECharacteristic) Subscribe(handler device.NotificationHandler) error {
	if c.char.Property&ble.CharNotify == 0 {
		return fmt.Errorf("characteristic %s does not support notifications", c.uuid)
	}
	if c.char.CCCD == nil {
		return &device.NotFoundError{Resource: "descriptor", UUIDs: []string{c.uuid, "2902"}}
	}

	err := NormalizeError(c.client.Subscribe(c.char, false, func(data []byte) {
		handler(data)
	}))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"char_uuid": c.uuid,
			"error":     err,
		}).Error("Failed to subscribe to characteristic")
		return err
	}
	c.logger.WithField("char_uuid", c.uuid).Debug("Subscribed to characteristic")
	return nil
}
